package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portfolio/api/internal/apperr"
)

const (
	unknownClient = "unknown"

	// isoMillis matches the ISO-8601 form browsers produce.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// KeyFunc maps a request to the identity that owns a counter.
type KeyFunc func(r *http.Request) string

type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	KeyFunc     KeyFunc
}

// ClientIP returns the first X-Forwarded-For hop, or "unknown".
func ClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return unknownClient
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if first == "" {
		return unknownClient
	}
	return first
}

// DefaultKey keys by client address. Outside production the path is appended so that
// exhausting one endpoint while testing does not lock out the rest.
func DefaultKey(production bool) KeyFunc {
	return func(r *http.Request) string {
		ip := ClientIP(r)
		if production {
			return ip
		}
		return ip + ":" + r.URL.Path
	}
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so clients never retry early.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter is a fixed-window counter for one named policy.
type Limiter struct {
	policy Policy
	store  Store
	log    zerolog.Logger
	now    func() time.Time

	// mu serialises read-modify-write on the store within this process.
	mu sync.Mutex
}

func NewLimiter(policy Policy, store Store, log zerolog.Logger) *Limiter {
	if policy.KeyFunc == nil {
		policy.KeyFunc = DefaultKey(true)
	}
	return &Limiter{
		policy: policy,
		store:  store,
		log:    log,
		now:    time.Now,
	}
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

func (l *Limiter) storeKey(r *http.Request) string {
	return l.policy.Name + ":" + l.policy.KeyFunc(r)
}

func (l *Limiter) Allow(ctx context.Context, r *http.Request) (Decision, error) {
	return l.AllowKey(ctx, l.storeKey(r))
}

// AllowKey counts one request against key.
func (l *Limiter) AllowKey(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if err := l.store.SweepExpired(ctx, now); err != nil {
		return Decision{}, fmt.Errorf("sweep: %w", err)
	}

	entry, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("get %s: %w", key, err)
	}

	if !ok || entry.Expired(now) {
		entry = Entry{Count: 1, ResetAt: now.Add(l.policy.Window)}
	} else {
		entry.Count++
	}

	if err := l.store.Set(ctx, key, entry); err != nil {
		return Decision{}, fmt.Errorf("set %s: %w", key, err)
	}

	remaining := l.policy.MaxRequests - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    entry.Count <= l.policy.MaxRequests,
		Limit:      l.policy.MaxRequests,
		Remaining:  remaining,
		ResetAt:    entry.ResetAt,
		RetryAfter: entry.ResetAt.Sub(now),
	}, nil
}

// Middleware rejects requests over budget with 429 and retry metadata. A failing store
// lets the request through; throttling is not worth an outage.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := l.Allow(c.Request.Context(), c.Request)
		if err != nil {
			l.log.Error().Err(err).Str("policy", l.policy.Name).Msg("rate limit check failed")
			c.Next()
			return
		}

		if !decision.Allowed {
			l.log.Warn().
				Str("policy", l.policy.Name).
				Str("client_ip", ClientIP(c.Request)).
				Str("path", c.Request.URL.Path).
				Msg("rate limit exceeded")
			WriteRejection(c, decision)
			return
		}

		c.Next()
	}
}

func WriteRejection(c *gin.Context, d Decision) {
	retryAfter := d.RetryAfterSeconds()

	h := c.Writer.Header()
	h.Set("Retry-After", strconv.Itoa(retryAfter))
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(isoMillis))

	rejection := apperr.RateLimited("Too many requests")
	c.AbortWithStatusJSON(rejection.Status(), gin.H{
		"error":      rejection.Message,
		"message":    "Rate limit exceeded. Please try again later.",
		"retryAfter": retryAfter,
	})
}
