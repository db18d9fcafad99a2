package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/security"
)

// RequireCSRF rejects state-changing requests whose token does not match the csrf-token
// cookie. Safe methods pass through.
func RequireCSRF(guard *security.CSRFGuard, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || !security.IsStateChanging(c.Request.Method) {
			c.Next()
			return
		}
		token, err := security.ReadCSRFToken(c.Request)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "The request body is too large."})
			return
		}
		if !guard.Validate(c.Request, token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}

// AllowMethods answers 405 for any verb not listed.
func AllowMethods(methods ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[strings.ToUpper(m)] = struct{}{}
	}
	allowHeader := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		if _, ok := allowed[c.Request.Method]; !ok {
			c.Header("Allow", allowHeader)
			rejectMethod(c)
			return
		}
		c.Next()
	}
}

// MethodNotAllowed is the engine's NoMethod handler.
func MethodNotAllowed() gin.HandlerFunc {
	return rejectMethod
}

func rejectMethod(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}

// LimitBody caps the request body so form parsing cannot exhaust memory or disk.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
