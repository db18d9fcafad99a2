package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/security"
)

const sessionContextKey = "admin_session_claims"

// SessionVerifier checks a session token's signature and expiry.
type SessionVerifier interface {
	VerifySession(token string) (security.SessionClaims, error)
}

// SessionResolver additionally confirms the principal against the credential store.
type SessionResolver interface {
	SessionVerifier
	ResolveSession(ctx context.Context, token string) (security.SessionClaims, error)
}

// SessionFrom returns the claims a session middleware stored on the context.
func SessionFrom(c *gin.Context) (security.SessionClaims, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return security.SessionClaims{}, false
	}
	claims, ok := v.(security.SessionClaims)
	return claims, ok
}

// RequireSession guards API routes. Failures are JSON 401s; browsers are not redirected.
func RequireSession(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := security.SessionToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized. Please log in."})
			return
		}

		claims, err := verifier.VerifySession(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session. Please log in again."})
			return
		}

		c.Set(sessionContextKey, claims)
		c.Next()
	}
}

type GateConfig struct {
	LoginPath         string
	DashboardHome     string
	ProtectedPrefixes []string
}

// SessionGate protects page routes. It never applies to /api paths, which answer with
// JSON through RequireSession instead.
func SessionGate(cfg GateConfig, resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			c.Next()
			return
		}

		if isProtected(path, cfg.ProtectedPrefixes) {
			token := security.SessionToken(c.Request)
			if token == "" {
				redirect(c, loginURL(cfg.LoginPath, requestTarget(c.Request), false))
				return
			}

			claims, err := resolver.ResolveSession(c.Request.Context(), token)
			switch {
			case errors.Is(err, security.ErrInvalidSession):
				redirect(c, loginURL(cfg.LoginPath, requestTarget(c.Request), false))
				return
			case err != nil:
				redirect(c, loginURL(cfg.LoginPath, path, true))
				return
			}

			c.Set(sessionContextKey, claims)
			c.Next()
			return
		}

		if strings.HasPrefix(path, cfg.LoginPath) {
			if token := security.SessionToken(c.Request); token != "" {
				if _, err := resolver.VerifySession(token); err == nil {
					redirect(c, cfg.DashboardHome)
					return
				}
			}
		}

		c.Next()
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func loginURL(loginPath, next string, noAccess bool) string {
	q := url.Values{}
	q.Set("next", next)
	if noAccess {
		q.Set("error", "no_access")
	}
	return loginPath + "?" + q.Encode()
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusTemporaryRedirect, location)
	c.Abort()
}
