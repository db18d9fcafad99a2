package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ClearRateLimit empties the limiter store so local testing is not locked out.
func (h HandlerSet) ClearRateLimit(c *gin.Context) {
	if h.cfg.IsProduction() {
		c.JSON(http.StatusForbidden, gin.H{"error": "This endpoint is only available in development mode"})
		return
	}

	if err := h.limits.Clear(c.Request.Context()); err != nil {
		h.reporter.LogError("dev.clear_rate_limit", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear rate limit store"})
		return
	}

	h.log.Info().Msg("rate limit store cleared")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Rate limit store cleared",
	})
}
