package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookieName = "admin_session"
	CSRFCookieName    = "csrf-token"
)

// CookiePolicy decides the Secure attribute for auth cookies.
type CookiePolicy struct {
	// AlwaysSecure is true in production.
	AlwaysSecure bool
}

func (p CookiePolicy) secure(r *http.Request) bool {
	return p.AlwaysSecure || IsHTTPS(r)
}

// IsHTTPS reports whether the request reached us over TLS, directly or behind a proxy.
func IsHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

func (p CookiePolicy) SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   p.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (p CookiePolicy) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	// MaxAge -1 is serialised as "Max-Age=0".
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken returns the raw session cookie value, or "" when absent.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
