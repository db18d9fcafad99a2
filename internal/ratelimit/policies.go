package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"portfolio/api/internal/config"
)

const (
	PolicyStrict   = "strict"
	PolicyStandard = "standard"
	PolicyAuth     = "auth"
)

// Set is the three named policies sharing one store.
type Set struct {
	Strict   *Limiter
	Standard *Limiter
	Auth     *Limiter

	store Store
}

func NewSet(cfg config.RateLimitConfig, production bool, store Store, log zerolog.Logger) *Set {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	key := DefaultKey(production)

	authMax := cfg.AuthMaxDev
	if production {
		authMax = cfg.AuthMax
	}

	return &Set{
		Strict:   NewLimiter(Policy{Name: PolicyStrict, Window: window, MaxRequests: cfg.StrictMax, KeyFunc: key}, store, log),
		Standard: NewLimiter(Policy{Name: PolicyStandard, Window: window, MaxRequests: cfg.StandardMax, KeyFunc: key}, store, log),
		Auth:     NewLimiter(Policy{Name: PolicyAuth, Window: window, MaxRequests: authMax, KeyFunc: key}, store, log),
		store:    store,
	}
}

// Sweep drops elapsed windows. Requests sweep lazily too; this keeps an idle process
// from holding stale counters.
func (s *Set) Sweep(ctx context.Context) error {
	return s.store.SweepExpired(ctx, time.Now())
}

func (s *Set) Clear(ctx context.Context) error {
	if s.store == nil {
		return errors.New("rate limit store not configured")
	}
	return s.store.Clear(ctx)
}
