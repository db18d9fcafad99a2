package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a panic into a bare 500. The stack goes to the log, never the client.
func Recovery(log zerolog.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				event := log.Error().
					Str("request_id", RequestIDFrom(c)).
					Str("path", c.Request.URL.Path)
				if !production {
					event = event.Interface("panic", r).Bytes("stack", debug.Stack())
				}
				event.Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
