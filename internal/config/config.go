// Package config loads the server configuration.
//
// SOURCES, HIGHEST PRIORITY FIRST:
//  1. Environment variables (PORT=9090 ./server)
//  2. An optional .env file in the working directory
//  3. The defaults in setDefaults
//
// The .env file is read with godotenv into viper's config layer instead of
// being exported into the process environment, so loading it has no side
// effects on anything else that reads os.Getenv.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is the .env path cmd/server passes to Load.
const DefaultEnvFile = ".env"

type Config struct {
	Port        int
	DBPath      string
	LogLevel    slog.Level
	ServiceName string

	JWT       JWTConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	GitHub    GitHubConfig
	Telemetry TelemetryConfig
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// RedisConfig is optional. With an empty Addr, the token blacklist and the
// rate limiter keep their state in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig applies per client IP to the login and register endpoints.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// GitHubConfig is optional. GitHub sign-in routes are only mounted when both
// ClientID and ClientSecret are set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// TelemetryConfig is optional. Tracing is off when Endpoint is empty.
type TelemetryConfig struct {
	Endpoint string
}

// Load reads the configuration. envFile may be empty or point at a missing
// file; both mean "no .env file".
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileValues := make(map[string]any, len(values))
			for k, val := range values {
				fileValues[strings.ToLower(k)] = val
			}
			if err := v.MergeConfigMap(fileValues); err != nil {
				return nil, fmt.Errorf("config: merging %s: %w", envFile, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// optional
		default:
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		DBPath:      v.GetString("DB_PATH"),
		ServiceName: v.GetString("SERVICE_NAME"),
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
		GitHub: GitHubConfig{
			ClientID:     v.GetString("GITHUB_CLIENT_ID"),
			ClientSecret: v.GetString("GITHUB_CLIENT_SECRET"),
			CallbackURL:  v.GetString("GITHUB_CALLBACK_URL"),
		},
		Telemetry: TelemetryConfig{
			Endpoint: v.GetString("OTEL_ENDPOINT"),
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "data/ideas.db")
	v.SetDefault("SERVICE_NAME", "idea-match")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_TTL", "1h")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("config: DB_PATH is required")
	}
	if len(cfg.JWT.Secret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be set to at least 16 characters (try: openssl rand -hex 32)")
	}
	if cfg.JWT.TTL <= 0 {
		return fmt.Errorf("config: JWT_TTL must be positive, got %s", cfg.JWT.TTL)
	}
	if cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
