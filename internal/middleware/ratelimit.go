package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/ratelimit"
)

// DefaultAuthPrefixes are the paths throttled with the auth policy.
var DefaultAuthPrefixes = []string{"/api/auth", "/login", "/register"}

// EdgeRateLimit throttles every request before routing: auth paths with the auth
// policy, other /api paths with the standard policy. Page routes are not throttled here.
func EdgeRateLimit(set *ratelimit.Set, authPrefixes []string) gin.HandlerFunc {
	auth := set.Auth.Middleware()
	standard := set.Standard.Middleware()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range authPrefixes {
			if strings.HasPrefix(path, prefix) {
				auth(c)
				return
			}
		}
		if strings.HasPrefix(path, "/api/") {
			standard(c)
			return
		}
		c.Next()
	}
}
