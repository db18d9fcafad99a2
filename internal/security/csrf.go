package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	CSRFHeaderName    = "X-CSRF-Token"
	CSRFFormFieldName = "csrf_token"
	CSRFTokenBytes    = 32
	CSRFTokenMaxAge   = 24 * 60 * 60
)

// CSRFGuard pairs a random anti-forgery token with the browser through the csrf-token
// cookie and checks it on state-changing requests.
type CSRFGuard struct {
	cookies CookiePolicy
}

func NewCSRFGuard(cookies CookiePolicy) *CSRFGuard {
	return &CSRFGuard{cookies: cookies}
}

func GenerateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GetOrCreateToken returns the token bound to this browser, minting and setting the
// cookie on first use.
func (g *CSRFGuard) GetOrCreateToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if token := StoredCSRFToken(r); token != "" {
		return token, nil
	}

	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CSRFTokenMaxAge,
		HttpOnly: true,
		Secure:   g.cookies.secure(r),
		SameSite: http.SameSiteStrictMode,
	})

	return token, nil
}

// Validate fails closed: no stored token, no supplied token, or any difference.
func (g *CSRFGuard) Validate(r *http.Request, supplied string) bool {
	if supplied == "" {
		return false
	}
	stored := StoredCSRFToken(r)
	if stored == "" {
		return false
	}
	return ConstantTimeEqual(supplied, stored)
}

func StoredCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SuppliedCSRFToken reads the header first, then the form field. The body is only
// parsed for form encodings so JSON payloads stay untouched for the handler.
func SuppliedCSRFToken(r *http.Request) string {
	token, _ := ReadCSRFToken(r)
	return token
}

// ReadCSRFToken is SuppliedCSRFToken that also reports a body parse failure, such as
// an *http.MaxBytesError from a capped body.
func ReadCSRFToken(r *http.Request) (string, error) {
	if token := r.Header.Get(CSRFHeaderName); token != "" {
		return token, nil
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return "", err
		}
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return "", err
		}
	default:
		return "", nil
	}
	return r.PostFormValue(CSRFFormFieldName), nil
}

// ConstantTimeEqual compares two tokens without an early exit on the first differing
// byte. Lengths are not secret, so a length mismatch returns immediately.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	var result byte
	for i := 0; i < len(a); i++ {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

func IsStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
