package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pH0enix46/EMR/pkg/policy"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds all configuration
type Config struct {
	Mode      string          `mapstructure:"mode" validate:"oneof=development production"`
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Policy    policy.Table    `mapstructure:"policy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	AdminPort int    `mapstructure:"admin_port" validate:"min=1,max=65535"`
	ProxyPort int    `mapstructure:"proxy_port" validate:"min=1,max=65535"`
	Host      string `mapstructure:"host"`
}

// UpstreamConfig describes the page/API renderer the router forwards to.
type UpstreamConfig struct {
	URL              string            `mapstructure:"url" validate:"required,url"`
	Timeout          time.Duration     `mapstructure:"timeout" validate:"gt=0"`
	MaxConnsPerHost  int               `mapstructure:"max_conns_per_host" validate:"min=1"`
	ExternalRewrites []ExternalRewrite `mapstructure:"external_rewrites" validate:"dive"`
}

// ExternalRewrite serves Source/* from Destination/* without changing the URL.
type ExternalRewrite struct {
	Source      string `mapstructure:"source" json:"source" validate:"required,startswith=/"`
	Destination string `mapstructure:"destination" json:"destination" validate:"required,url"`
}

type RateLimitConfig struct {
	Backend              string        `mapstructure:"backend" validate:"omitempty,oneof=none memory redis"`
	RedisURL             string        `mapstructure:"redis_url"`
	Limit                int64         `mapstructure:"limit" validate:"gt=0"`
	Window               time.Duration `mapstructure:"window" validate:"gt=0"`
	Timeout              time.Duration `mapstructure:"timeout" validate:"gt=0"`
	KeyPrefix            string        `mapstructure:"key_prefix"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	EnforceInDevelopment bool          `mapstructure:"enforce_in_development"`
}

type CORSConfig struct {
	ProductionOrigin  string `mapstructure:"production_origin" validate:"required"`
	DevelopmentOrigin string `mapstructure:"development_origin" validate:"required"`
}

type MetricsConfig struct {
	EnablePerRoute       bool `mapstructure:"enable_per_route"`
	EnableDetailedStatus bool `mapstructure:"enable_detailed_status"`
}

var validate = validator.New()

// IsProduction reports whether the router runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// AllowedOrigin returns the CORS origin for the configured mode.
func (c *Config) AllowedOrigin() string {
	if c.IsProduction() {
		return c.CORS.ProductionOrigin
	}
	return c.CORS.DevelopmentOrigin
}

// RateLimitEnforced reports whether the rate limit stage should run at all.
// Without a backing store limiting is disabled rather than failing closed.
func (c *Config) RateLimitEnforced() bool {
	switch c.RateLimit.Backend {
	case "", "none":
		return false
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return false
		}
	}
	return c.IsProduction() || c.RateLimit.EnforceInDevelopment
}

// Load reads configuration from path, or from config.yaml in $CONFIG_PATH,
// the working directory or ./config when path is empty. A missing file is not
// an error; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := os.Getenv("CONFIG_PATH"); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Anything but production behaves like development, as NODE_ENV does.
	if strings.ToLower(cfg.Mode) == ModeProduction {
		cfg.Mode = ModeProduction
	} else {
		cfg.Mode = ModeDevelopment
	}
	if cfg.Policy.AllowedOrigin == "" {
		cfg.Policy.AllowedOrigin = cfg.AllowedOrigin()
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeDevelopment)

	v.SetDefault("server.admin_port", 9090)
	v.SetDefault("server.proxy_port", 8080)
	v.SetDefault("server.host", "")

	v.SetDefault("upstream.url", "http://localhost:3000")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.max_conns_per_host", 512)
	v.SetDefault("upstream.external_rewrites", []map[string]interface{}{
		{"source": "/external-api", "destination": "https://api.unsplash.com"},
	})

	v.SetDefault("ratelimit.backend", "redis")
	v.SetDefault("ratelimit.redis_url", "")
	v.SetDefault("ratelimit.limit", 10)
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.timeout", "300ms")
	v.SetDefault("ratelimit.key_prefix", "edge:ratelimit:")
	v.SetDefault("ratelimit.cleanup_interval", "1m")
	v.SetDefault("ratelimit.enforce_in_development", false)

	v.SetDefault("cors.production_origin", "https://yourdomain.com")
	v.SetDefault("cors.development_origin", "http://localhost:3000")

	p := policy.Default()
	v.SetDefault("policy.login_path", p.LoginPath)
	v.SetDefault("policy.home_path", p.HomePath)
	v.SetDefault("policy.forbidden_path", p.ForbiddenPath)
	v.SetDefault("policy.admin_prefix", p.AdminPrefix)
	v.SetDefault("policy.admin_role", p.AdminRole)
	v.SetDefault("policy.api_prefix", p.APIPrefix)
	v.SetDefault("policy.allowed_origin", "")
	v.SetDefault("policy.protected", p.Protected)
	v.SetDefault("policy.public_only", p.PublicOnly)
	v.SetDefault("policy.shared", p.Shared)
	v.SetDefault("policy.rate_limited", p.RateLimited)
	v.SetDefault("policy.tenants", p.Tenants)
	v.SetDefault("policy.default_tenant", p.DefaultTenant)
	v.SetDefault("policy.tenant_root_paths", p.TenantRootPaths)
	v.SetDefault("policy.default_sub_path", p.DefaultSubPath)
	v.SetDefault("policy.asset_prefixes", p.AssetPrefixes)
	v.SetDefault("policy.asset_paths", p.AssetPaths)
	redirects := make([]map[string]interface{}, 0, len(p.Redirects))
	for _, r := range p.Redirects {
		redirects = append(redirects, map[string]interface{}{
			"source": r.Source, "destination": r.Destination, "permanent": r.Permanent,
		})
	}
	v.SetDefault("policy.redirects", redirects)
	v.SetDefault("policy.strip_trailing_slash", p.StripTrailingSlash)

	v.SetDefault("metrics.enable_per_route", false)
	v.SetDefault("metrics.enable_detailed_status", false)
}

// bindEnv maps EDGE_* variables onto config keys, plus the names the front
// end deployment already exports.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("edge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("mode", "EDGE_MODE", "APP_ENV", "NODE_ENV")
	// Connection strings only. UPSTASH_REDIS_REST_URL is an HTTPS endpoint,
	// not something the redis client can dial, and is not read.
	_ = v.BindEnv("ratelimit.redis_url", "EDGE_RATELIMIT_REDIS_URL", "REDIS_URL", "UPSTASH_REDIS_URL")
}
