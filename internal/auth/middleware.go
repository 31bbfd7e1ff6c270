package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const viaCookieContextKey = "auth_via_cookie"

// Middleware requires the access token as a bearer header or cookie.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		token, viaCookie := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "kind": "unauthorized"})
			return
		}
		if !s.Validate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthorized"})
			return
		}
		c.Set(viaCookieContextKey, viaCookie)
		c.Next()
	}
}

// AuthenticatedViaCookie reports whether the request carried the token in a cookie.
func AuthenticatedViaCookie(c *gin.Context) bool {
	return c.GetBool(viaCookieContextKey)
}

func (s *Service) extractToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:]), false
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token, true
	}
	return "", false
}
