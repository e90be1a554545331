package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
)

// ErrorHandlerMiddleware renders the last error a relay handler attached with c.Error.
// Client errors log at Warn, the rest at Error.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err

			appErr := errors.GetAppError(err)
			if appErr != nil {
				log := logger.Errorw
				if appErr.HTTPStatus < http.StatusInternalServerError {
					log = logger.Warnw
				}
				log("application error",
					"code", appErr.Code,
					"message", appErr.Message,
					"status", appErr.HTTPStatus,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"context", appErr.Context,
				)

				c.JSON(appErr.HTTPStatus, gin.H{
					"error":   string(appErr.Code),
					"message": appErr.Message,
					"details": appErr.Context,
				})
				return
			}

			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			internal := errors.NewInternalError("Internal server error")
			c.JSON(internal.HTTPStatus, gin.H{
				"error":   string(internal.Code),
				"message": internal.Message,
			})
		}
	}
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				internal := errors.NewInternalError("Internal server error")
				c.AbortWithStatusJSON(internal.HTTPStatus, gin.H{
					"error":   string(internal.Code),
					"message": internal.Message,
				})
			}
		}()

		c.Next()
	}
}

