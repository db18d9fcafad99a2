package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// MinSessionSecretLen applies in production; HS256 wants at least 256 bits of key.
	MinSessionSecretLen = 32

	developmentSessionSecret = "development-only-session-secret-do-not-deploy"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Region         string
	PublicBaseURL  string
	MaxUploadBytes int64
}

type SecurityConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	// CookieSecure forces the Secure attribute on auth cookies. Production always sets it.
	CookieSecure      bool
	RequireCSRF       bool
	LoginPath         string
	DashboardHome     string
	ProtectedPrefixes []string

	// UsingDevSecret is set by Validate when the development fallback secret was applied.
	UsingDevSecret bool `mapstructure:"-"`
}

type RateLimitConfig struct {
	Backend       string
	Window        time.Duration
	StrictMax     int
	StandardMax   int
	AuthMax       int
	AuthMaxDev    int
	SweepSchedule string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	RateLimit        RateLimitConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PORTFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "portfolio-media")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.maxuploadbytes", 100<<20)

	v.SetDefault("security.sessionsecret", "")
	v.SetDefault("security.sessionttl", "168h") // 7 days
	v.SetDefault("security.cookiesecure", false)
	v.SetDefault("security.requirecsrf", true)
	v.SetDefault("security.loginpath", "/login")
	v.SetDefault("security.dashboardhome", "/dashboard/profile")
	v.SetDefault("security.protectedprefixes", []string{"/dashboard"})

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.strictmax", 10)
	v.SetDefault("ratelimit.standardmax", 100)
	v.SetDefault("ratelimit.authmax", 10)
	v.SetDefault("ratelimit.authmaxdev", 30)
	v.SetDefault("ratelimit.sweepschedule", "@every 1m")

	v.SetDefault("allowcorsorigins", []string{})
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// CookieSecure reports whether auth cookies must always carry the Secure attribute.
// Requests that arrive over HTTPS get it regardless.
func (c *AppConfig) CookieSecure() bool {
	return c.IsProduction() || c.Security.CookieSecure
}

// Validate rejects configurations that would run in an insecure or degraded mode.
func (c *AppConfig) Validate() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}

	var problems []string

	secret := strings.TrimSpace(c.Security.SessionSecret)
	switch {
	case c.IsProduction() && secret == "":
		problems = append(problems, "security.sessionsecret is required in production")
	case c.IsProduction() && len(secret) < MinSessionSecretLen:
		problems = append(problems, fmt.Sprintf("security.sessionsecret must be at least %d bytes", MinSessionSecretLen))
	case secret == "":
		c.Security.SessionSecret = developmentSessionSecret
		c.Security.UsingDevSecret = true
	}

	if c.Security.SessionTTL <= 0 {
		problems = append(problems, "security.sessionttl must be positive")
	}
	if !strings.HasPrefix(c.Security.LoginPath, "/") {
		problems = append(problems, "security.loginpath must start with /")
	}
	for _, prefix := range c.Security.ProtectedPrefixes {
		if strings.HasPrefix(prefix, "/api") {
			problems = append(problems, fmt.Sprintf("security.protectedprefixes: %q must not cover /api", prefix))
		}
	}

	if c.IsProduction() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			problems = append(problems, "postgres.dsn is required in production")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			problems = append(problems, "storage.accesskey and storage.secretkey are required in production")
		}
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			problems = append(problems, "ratelimit.backend=redis requires redis.enabled")
		}
	default:
		problems = append(problems, fmt.Sprintf("ratelimit.backend: unknown backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "ratelimit.window must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
