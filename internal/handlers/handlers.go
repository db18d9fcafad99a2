package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/config"
	"portfolio/api/internal/middleware"
	"portfolio/api/internal/ratelimit"
	"portfolio/api/internal/security"
	"portfolio/api/internal/service"
)

// uploadBodySlack covers multipart framing and the small form fields sent with a file.
const uploadBodySlack = 1 << 20

type Deps struct {
	Config   *config.AppConfig
	Log      zerolog.Logger
	Auth     *service.AuthService
	Uploads  *service.UploadService
	Limits   *ratelimit.Set
	Reporter *apperr.Reporter
	Probes   []Probe
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	uploads  *service.UploadService
	limits   *ratelimit.Set
	reporter *apperr.Reporter
	cookies  security.CookiePolicy
	csrf     *security.CSRFGuard
	probes   []Probe
}

func NewHandlerSet(deps Deps) HandlerSet {
	cookies := security.CookiePolicy{AlwaysSecure: deps.Config.CookieSecure()}
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		auth:     deps.Auth,
		uploads:  deps.Uploads,
		limits:   deps.Limits,
		reporter: deps.Reporter,
		cookies:  cookies,
		csrf:     security.NewCSRFGuard(cookies),
		probes:   deps.Probes,
	}
}

// Register installs the edge middleware and every route. Order matters: headers come
// first so CORS preflights and rejections carry them, then throttling, then the page gate.
func (h HandlerSet) Register(engine *gin.Engine) {
	sec := h.cfg.Security

	engine.HandleMethodNotAllowed = true
	engine.NoMethod(middleware.MethodNotAllowed())
	engine.Use(
		middleware.SecurityHeaders(),
		middleware.CORS(h.cfg.AllowCORSOrigins),
		middleware.EdgeRateLimit(h.limits, middleware.DefaultAuthPrefixes),
		middleware.SessionGate(middleware.GateConfig{
			LoginPath:         sec.LoginPath,
			DashboardHome:     sec.DashboardHome,
			ProtectedPrefixes: sec.ProtectedPrefixes,
		}, h.auth),
	)

	requireSession := middleware.RequireSession(h.auth)
	requireCSRF := middleware.RequireCSRF(h.csrf, sec.RequireCSRF)

	api := engine.Group("/api")
	api.GET("/healthz", h.Health)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/check", h.CheckSession)
		auth.GET("/csrf", h.CSRFToken)

		account := auth.Group("", requireSession, requireCSRF)
		account.POST("/password/change", h.limits.Strict.Middleware(), h.ChangePassword)
		account.POST("/profile/update", h.UpdateProfile)
	}

	media := api.Group("/media",
		middleware.LimitBody(h.uploads.MaxBytes()+uploadBodySlack),
		requireSession,
		requireCSRF,
	)
	media.POST("/upload", h.limits.Strict.Middleware(), h.UploadMedia)
	media.DELETE("", h.DeleteMedia)

	api.Any("/dev/clear-rate-limit", middleware.AllowMethods(http.MethodPost), h.ClearRateLimit)

	engine.GET(sec.LoginPath, h.LoginPage)
	engine.GET("/dashboard/*page", h.DashboardPage)
}

// respondError writes the client-safe form of err. Field is included for validation errors.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	body := gin.H{"error": apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok && e.Field != "" {
		body["field"] = e.Field
	} else if !ok {
		h.reporter.LogError(c.FullPath(), err)
	}
	c.JSON(apperr.StatusOf(err), body)
}
