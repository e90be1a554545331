package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
)

func errorRouter(t *testing.T, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()
	router := gin.New()
	router.Use(RecoveryMiddleware(logger), ErrorHandlerMiddleware(logger))
	router.GET("/rooms/:id", handler)
	return router
}

func serve(t *testing.T, router http.Handler) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/x", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestErrorHandlerMiddleware_AppError(t *testing.T) {
	router := errorRouter(t, func(c *gin.Context) {
		_ = c.Error(errors.NewInvalidInputError("room ID has an empty participant segment").WithContext("room_id", "_x"))
	})

	code, body := serve(t, router)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", body["error"])
	assert.Equal(t, map[string]interface{}{"room_id": "_x"}, body["details"])
}

func TestErrorHandlerMiddleware_PlainError(t *testing.T) {
	router := errorRouter(t, func(c *gin.Context) {
		_ = c.Error(stderrors.New("boom"))
	})

	code, body := serve(t, router)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
}

func TestErrorHandlerMiddleware_KeepsWrittenResponse(t *testing.T) {
	router := errorRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "already answered"})
		_ = c.Error(stderrors.New("late"))
	})

	code, body := serve(t, router)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already answered", body["error"])
}

func TestRecoveryMiddleware(t *testing.T) {
	router := errorRouter(t, func(c *gin.Context) {
		panic("handler bug")
	})

	code, body := serve(t, router)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
}
