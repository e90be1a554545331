package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/validation"
)

// Keys set on the gin context by the relay guard.
const (
	ParticipantKey = "participant_id"
	RoomKey        = "room_id"
)

// RelayClaims identify a participant. Room, when set, limits the token to one room.
type RelayClaims struct {
	Room string `json:"room,omitempty"`
	jwt.RegisteredClaims
}

// IssueRelayToken signs an HS256 token for participant.
func IssueRelayToken(secret []byte, participant, room string, ttl time.Duration) (string, error) {
	if err := validation.ValidateParticipantID(participant); err != nil {
		return "", err
	}
	now := time.Now()
	claims := RelayClaims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participant,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign relay token: %w", err)
	}
	return signed, nil
}

// ParseRelayToken verifies the signature and expiry of raw.
func ParseRelayToken(secret []byte, raw string) (*RelayClaims, error) {
	claims := &RelayClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateParticipantID(claims.Subject); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return claims, nil
}

// bearerToken reads the Authorization header, then the token query parameter
// that browsers use for websocket handshakes.
func bearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("authorization token required")
}

// RelayAuthMiddleware rejects handshakes without a valid token and exposes the
// participant and room claims to the relay handler.
func RelayAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		claims, err := ParseRelayToken(secret, raw)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ParticipantKey, claims.Subject)
		if claims.Room != "" {
			c.Set(RoomKey, claims.Room)
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	appErr := apperrors.NewUnauthorizedError(message)
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
