package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe is one dependency checked by the health endpoint.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Environment  string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:       "ok",
		Dependencies: make(map[string]string, len(h.probes)),
		Environment:  h.cfg.Environment,
	}
	status := http.StatusOK

	for _, probe := range h.probes {
		if err := probe.Check(ctx); err != nil {
			h.log.Error().Err(err).Str("dependency", probe.Name).Msg("health probe failed")
			resp.Dependencies[probe.Name] = "error"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[probe.Name] = "ok"
	}

	c.JSON(status, resp)
}
