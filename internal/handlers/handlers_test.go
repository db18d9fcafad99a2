package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/config"
	"portfolio/api/internal/models"
	"portfolio/api/internal/ratelimit"
	"portfolio/api/internal/repository"
	"portfolio/api/internal/security"
	"portfolio/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fastArgon = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func fastHasher(pw string) (string, error) {
	return security.HashPasswordWithParams(pw, fastArgon)
}

type memAdmins struct {
	mu     sync.Mutex
	admins map[string]models.Admin
}

func (m *memAdmins) FindByEmail(_ context.Context, email string) (models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return models.Admin{}, repository.ErrAdminNotFound
}

func (m *memAdmins) GetByID(_ context.Context, id string) (models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return models.Admin{}, repository.ErrAdminNotFound
	}
	return a, nil
}

func (m *memAdmins) MatchesIdentity(_ context.Context, id, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	return ok && a.Email == email, nil
}

func (m *memAdmins) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return repository.ErrAdminNotFound
	}
	a.PasswordHash = hash
	m.admins[id] = a
	return nil
}

func (m *memAdmins) UpdateProfile(_ context.Context, id string, u repository.ProfileUpdate) (models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return models.Admin{}, repository.ErrAdminNotFound
	}
	a.FirstName, a.LastName, a.Email = u.FirstName, u.LastName, u.Email
	m.admins[id] = a
	return a, nil
}

type memMedia struct {
	mu      sync.Mutex
	objects map[string]int
}

func (m *memMedia) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = int(n)
	m.mu.Unlock()
	return "https://cdn.example.com/" + key, nil
}

func (m *memMedia) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

type fixture struct {
	engine *gin.Engine
	admins *memAdmins
	media  *memMedia
}

func testConfig(env string) *config.AppConfig {
	cfg := &config.AppConfig{
		Environment: env,
		Security: config.SecurityConfig{
			SessionSecret:     "0123456789abcdef0123456789abcdef",
			SessionTTL:        time.Hour,
			RequireCSRF:       true,
			LoginPath:         "/login",
			DashboardHome:     "/dashboard/profile",
			ProtectedPrefixes: []string{"/dashboard"},
		},
		Storage: config.StorageConfig{MaxUploadBytes: 1 << 20},
		RateLimit: config.RateLimitConfig{
			Backend:     "memory",
			Window:      time.Minute,
			StrictMax:   10,
			StandardMax: 100,
			AuthMax:     10,
			AuthMaxDev:  30,
		},
	}
	return cfg
}

func newFixture(t *testing.T, cfg *config.AppConfig, probes ...Probe) *fixture {
	t.Helper()
	hash, err := fastHasher("old-secret")
	require.NoError(t, err)

	admins := &memAdmins{admins: map[string]models.Admin{
		"1": {ID: "1", Email: "owner@example.com", PasswordHash: hash, FirstName: "Ada", LastName: "Lovelace"},
	}}
	media := &memMedia{objects: make(map[string]int)}

	log := zerolog.Nop()
	reporter := apperr.NewReporter(log, cfg.IsProduction())
	tokens, err := security.NewSessionTokens([]byte(cfg.Security.SessionSecret), cfg.Security.SessionTTL)
	require.NoError(t, err)

	set := ratelimit.NewSet(cfg.RateLimit, cfg.IsProduction(), ratelimit.NewMemoryStore(), log)
	h := NewHandlerSet(Deps{
		Config:   cfg,
		Log:      log,
		Auth:     service.NewAuthService(admins, tokens, reporter, log, service.WithPasswordHasher(fastHasher)),
		Uploads:  service.NewUploadService(media, cfg.Storage.MaxUploadBytes, reporter, log),
		Limits:   set,
		Reporter: reporter,
		Probes:   probes,
	})

	engine := gin.New()
	h.Register(engine)
	return &fixture{engine: engine, admins: admins, media: media}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// browser carries the session and CSRF cookies between requests.
type browser struct {
	session string
	csrf    string
}

func (b browser) attach(req *http.Request) *http.Request {
	if b.session != "" {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: b.session})
	}
	if b.csrf != "" {
		req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: b.csrf})
		req.Header.Set(security.CSRFHeaderName, b.csrf)
	}
	return req
}

func (f *fixture) login(t *testing.T) browser {
	t.Helper()
	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "owner@example.com", "password": "old-secret"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := findCookie(rec, security.SessionCookieName)
	require.NotNil(t, session)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	csrf := findCookie(rec, security.CSRFCookieName)
	require.NotNil(t, csrf)
	assert.Equal(t, csrf.Value, decode(t, rec)["csrfToken"])

	return browser{session: session.Value, csrf: csrf.Value}
}

func TestLoginUnknownAdmin(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "whatever"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password. Admin not found.", decode(t, rec)["error"])
	assert.Nil(t, findCookie(rec, security.SessionCookieName))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "owner@example.com", "password": "old-secret"}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	admin := body["admin"].(map[string]any)
	assert.Equal(t, "owner@example.com", admin["email"])
	assert.NotContains(t, rec.Body.String(), "PasswordHash")

	cookie := findCookie(rec, security.SessionCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(time.Hour/time.Second), cookie.MaxAge)

	check := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	check.AddCookie(cookie)
	rec = f.do(check)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["authenticated"])
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "owner@example.com", "password": "nope"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decode(t, rec)["error"])
}

func TestLoginMalformedBody(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and password are required", decode(t, rec)["error"])
}

func TestCheckSessionWithoutCookie(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/check", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decode(t, rec)["message"])
	cookie := findCookie(rec, security.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestStateChangeWithoutCSRFToken(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)
	b.csrf = ""

	req := b.attach(jsonRequest(http.MethodPost, "/api/auth/profile/update", gin.H{
		"id": "1", "first_name": "Grace", "last_name": "Hopper", "email": "grace@example.com",
	}))
	rec := f.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid CSRF token", decode(t, rec)["error"])
	assert.Equal(t, "Ada", f.admins.admins["1"].FirstName)
}

func TestStateChangeWithoutSession(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/password/change", gin.H{}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized. Please log in.", decode(t, rec)["error"])
}

func TestUpdateProfileAcceptsNumericID(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(jsonRequest(http.MethodPost, "/api/auth/profile/update", map[string]any{
		"id": 1, "first_name": "Grace", "last_name": "Hopper", "email": "Grace@Example.com",
	})))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	admin := decode(t, rec)["admin"].(map[string]any)
	assert.Equal(t, "grace@example.com", admin["email"])
	assert.Equal(t, "Grace", f.admins.admins["1"].FirstName)
}

func TestUpdateProfileOfAnotherAdmin(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(jsonRequest(http.MethodPost, "/api/auth/profile/update", gin.H{
		"id": "2", "first_name": "Grace", "last_name": "Hopper", "email": "grace@example.com",
	})))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You can only update your own profile.", decode(t, rec)["error"])
}

func TestChangePasswordSameAsOld(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	// The current password is wrong here; the comparison runs before it is checked.
	rec := f.do(b.attach(jsonRequest(http.MethodPost, "/api/auth/password/change", gin.H{
		"oldPassword": "unrelated", "newPassword": "unrelated", "confirmPassword": "unrelated",
	})))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["error"], "must be different")
	assert.Equal(t, "newPassword", body["field"])
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(jsonRequest(http.MethodPost, "/api/auth/password/change", gin.H{
		"oldPassword": "old-secret", "newPassword": "new-secret", "confirmPassword": "new-secret",
	})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "owner@example.com", "password": "new-secret"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 64)...)

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadMedia(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(uploadRequest(t, "photo.png", pngBytes)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	media := decode(t, rec)["media"].(map[string]any)
	assert.Equal(t, "image/png", media["mime"])
	key := media["key"].(string)
	assert.True(t, strings.HasPrefix(key, "image/"), key)
	assert.Contains(t, f.media.objects, key)

	del := b.attach(jsonRequest(http.MethodDelete, "/api/media", gin.H{"key": key}))
	rec = f.do(del)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, f.media.objects, key)
}

func TestUploadRejectsUnknownContent(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(uploadRequest(t, "notes.png", []byte("just some plain text here"))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported file type.", decode(t, rec)["error"])
	assert.Empty(t, f.media.objects)
}

func TestDeleteMediaRejectsTraversal(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(jsonRequest(http.MethodDelete, "/api/media", gin.H{"key": "image/../../etc/passwd"})))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid media key.", decode(t, rec)["error"])
}

func TestStrictLimitOnUploads(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	for i := 0; i < 10; i++ {
		rec := f.do(b.attach(uploadRequest(t, "photo.png", pngBytes)))
		require.Equal(t, http.StatusCreated, rec.Code, "request %d: %s", i+1, rec.Body.String())
	}

	rec := f.do(b.attach(uploadRequest(t, "photo.png", pngBytes)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Len(t, f.media.objects, 10)
}

func TestAuthLimitInProduction(t *testing.T) {
	cfg := testConfig("production")
	f := newFixture(t, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		req := jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "x"})
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		last = f.do(req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)

	// A different client is unaffected.
	req := jsonRequest(http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "x"})
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestClearRateLimit(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/dev/clear-rate-limit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/dev/clear-rate-limit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rate limit store cleared", decode(t, rec)["message"])
}

func TestClearRateLimitInProduction(t *testing.T) {
	f := newFixture(t, testConfig("production"))

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/dev/clear-rate-limit", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "This endpoint is only available in development mode", decode(t, rec)["error"])
}

func TestDashboardRequiresSession(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/dashboard/projects?tab=drafts", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login?next=%2Fdashboard%2Fprojects%3Ftab%3Ddrafts", rec.Header().Get("Location"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestDashboardWithSession(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(httptest.NewRequest(http.MethodGet, "/dashboard/projects", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "projects", body["page"])
	assert.Equal(t, "1", body["admin"].(map[string]any)["id"])
}

func TestDashboardAfterAdminRemoved(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)
	delete(f.admins.admins, "1")

	rec := f.do(b.attach(httptest.NewRequest(http.MethodGet, "/dashboard/projects", nil)))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login?error=no_access&next=%2Fdashboard%2Fprojects", rec.Header().Get("Location"))
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/login?next=//evil.example.com&error=no_access", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "", body["next"])
	assert.Equal(t, "no_access", body["error"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/login?next=/dashboard/projects", nil))
	assert.Equal(t, "/dashboard/projects", decode(t, rec)["next"])
}

func TestLoginPageWithSession(t *testing.T) {
	f := newFixture(t, testConfig("development"))
	b := f.login(t)

	rec := f.do(b.attach(httptest.NewRequest(http.MethodGet, "/login", nil)))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/dashboard/profile", rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, testConfig("development"),
		Probe{Name: "postgres", Check: func(context.Context) error { return nil }},
		Probe{Name: "storage", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["postgres"])
	assert.Equal(t, "error", deps["storage"])
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestUnsupportedMethod(t *testing.T) {
	f := newFixture(t, testConfig("development"))

	rec := f.do(httptest.NewRequest(http.MethodPut, "/api/auth/login", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
