package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// authMiddleware validates the inbound `authorization`/`x-api-key` header
// against either a configured static token list or a JWT signed with the
// configured secret, adapted from the teacher's ModelAuthMiddleware
// (internal/server/auth_middleware.go) down to the single-tenant shape
// this proxy needs — one backend, no per-provider token set.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.RequireAuth {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			writeAuthError(c, "missing credentials")
			return
		}

		for _, allowed := range s.cfg.AuthTokens {
			if token == allowed {
				c.Next()
				return
			}
		}

		if s.cfg.JWTSecret != "" {
			parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
				return []byte(s.cfg.JWTSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err == nil && parsed.Valid {
				c.Next()
				return
			}
		}

		writeAuthError(c, "invalid or expired credentials")
	}
}

func bearerToken(c *gin.Context) string {
	if v := c.GetHeader("x-api-key"); v != "" {
		return v
	}
	auth := c.GetHeader("authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

func writeAuthError(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, wire.AnthropicError{
		Type: "error",
		Error: wire.AnthropicErrorDetail{Type: "authentication_error", Message: msg},
	})
	c.Abort()
}
