package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"triage/internal/logger"
	"triage/pkg/logging"
	"triage/pkg/middleware"
)

// OwnerHeader names the caller when token auth is disabled (local runs).
const OwnerHeader = "X-Owner-ID"

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// AuthMiddleware resolves the caller from a bearer JWT signed with secret; the
// owner is the token subject. With enabled=false the owner is read from
// OwnerHeader instead. Requests without an owner are rejected with 401.
func AuthMiddleware(enabled bool, secret string, log logger.Logger) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		var owner string
		if enabled {
			sub, err := subjectFromHeader(c.GetHeader("Authorization"), key)
			if err != nil {
				log.DebugwCtx(c.Request.Context(), "Rejected bearer token", "error", err)
			}
			owner = sub
		} else {
			owner = strings.TrimSpace(c.GetHeader(OwnerHeader))
		}

		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(middleware.OwnerIDKey, owner)
		c.Request = c.Request.WithContext(logging.WithOwnerID(c.Request.Context(), owner))
		c.Next()
	}
}

func subjectFromHeader(header string, key []byte) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errors.New("authorization header must be Bearer <token>")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return key, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

func ownerFrom(c *gin.Context) string {
	return c.GetString(middleware.OwnerIDKey)
}
