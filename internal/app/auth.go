package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userIDKey       = "user_id"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// AuthConfig lists the accepted credentials. StaticTokens maps a bearer
// token to the user it authenticates.
type AuthConfig struct {
	StaticTokens map[string]string
	JWTSecret    string
}

// AuthMiddleware accepts an HMAC-signed JWT whose subject is the user id, or
// one of the static tokens.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		// JWT path
		if jwtSecret != "" {
			var claims jwt.RegisteredClaims
			_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return []byte(jwtSecret), nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil && claims.Subject != "" {
				c.Set(userIDKey, claims.Subject)
				c.Next()
				return
			}
		}

		// static tokens
		if user, ok := cfg.StaticTokens[tokenStr]; ok {
			c.Set(userIDKey, user)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

// UserID is the authenticated caller.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequireSelf rejects requests for another user's :id.
func RequireSelf() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("id") != UserID(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequestLogger stamps every request with an id (reusing the caller's
// X-Request-ID) and logs it when done.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"user_id", UserID(c),
			"latency_ms", time.Since(start).Milliseconds())
	}
}
