package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("relay-test-secret")

func guardedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", RelayAuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"participant": c.GetString(ParticipantKey),
			"room":        c.GetString(RoomKey),
		})
	})
	return router
}

func TestRelayAuthMiddleware(t *testing.T) {
	valid, err := IssueRelayToken(testSecret, "alice", "alice_bob", time.Minute)
	require.NoError(t, err)
	unscoped, err := IssueRelayToken(testSecret, "bob", "", time.Minute)
	require.NoError(t, err)
	expired, err := IssueRelayToken(testSecret, "alice", "", -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueRelayToken([]byte("other-secret"), "alice", "", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name            string
		header          string
		query           string
		wantStatus      int
		wantParticipant string
		wantRoom        string
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK, "alice", "alice_bob"},
		{"query token", "", "?token=" + unscoped, http.StatusOK, "bob", ""},
		{"missing token", "", "", http.StatusUnauthorized, "", ""},
		{"malformed header", "Token " + valid, "", http.StatusUnauthorized, "", ""},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, "", ""},
		{"wrong secret", "Bearer " + foreign, "", http.StatusUnauthorized, "", ""},
	}

	router := guardedRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "UNAUTHORIZED", body["error"])
				return
			}
			assert.Equal(t, tt.wantParticipant, body["participant"])
			assert.Equal(t, tt.wantRoom, body["room"])
		})
	}
}

func TestParseRelayToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := RelayClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseRelayToken(testSecret, none)
	assert.Error(t, err)
}

func TestParseRelayToken_RequiresExpiry(t *testing.T) {
	claims := RelayClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseRelayToken(testSecret, raw)
	assert.Error(t, err)
}

func TestIssueRelayToken_RejectsInvalidParticipant(t *testing.T) {
	_, err := IssueRelayToken(testSecret, "alice_bob", "", time.Minute)
	assert.Error(t, err)
}
