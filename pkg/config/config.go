// Package config loads process configuration from the environment and the
// model profile from YAML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/abdhe/chat-router/pkg/provider"
)

// Config holds all process configuration parsed from environment variables.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"dev"`
	GRPCPort  string `env:"GRPC_PORT" envDefault:"50051"`
	HTTPPort  string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	GoogleAPIKeys     []string `env:"GOOGLE_API_KEYS" envSeparator:","`
	OpenRouterAPIKey  string   `env:"OPENROUTER_API_KEY"`
	SambaNovaAPIKey   string   `env:"SAMBANOVA_API_KEY"`
	GeminiBaseURL     string   `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	OpenRouterBaseURL string   `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	SambaNovaBaseURL  string   `env:"SAMBANOVA_BASE_URL" envDefault:"https://api.sambanova.ai/v1"`
	OpenRouterReferer string   `env:"OPENROUTER_REFERER"`
	OpenRouterTitle   string   `env:"OPENROUTER_TITLE" envDefault:"Chat Router"`

	// ProfilePath points at the YAML model profile; empty uses the defaults.
	ProfilePath string `env:"PROFILE_PATH"`

	// Redis log sink; disabled when RedisAddr is empty.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	LogSinkKey    string `env:"LOG_SINK_KEY" envDefault:"chatrouter:logs"`
	LogSinkMaxLen int64  `env:"LOG_SINK_MAX_LEN" envDefault:"1000"`

	// CORSAllowOrigins lists the origins allowed on the HTTP surface.
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	MaxRecvMsgSize  int           `env:"GRPC_MAX_RECV_MSG_SIZE" envDefault:"33554432"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.LogSinkMaxLen <= 0 {
		return Config{}, fmt.Errorf("op=config.Load: LOG_SINK_MAX_LEN must be positive, got %d", cfg.LogSinkMaxLen)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// LogSinkEnabled reports whether log entries are published to Redis.
func (c Config) LogSinkEnabled() bool { return c.RedisAddr != "" }

// GeminiOptions returns the provider options for Gemini.
func (c Config) GeminiOptions() []provider.Option {
	return []provider.Option{provider.WithBaseURL(c.GeminiBaseURL)}
}

// OpenRouterOptions returns the provider options for OpenRouter, including
// the attribution headers.
func (c Config) OpenRouterOptions() []provider.Option {
	return []provider.Option{
		provider.WithBaseURL(c.OpenRouterBaseURL),
		provider.WithHeader("HTTP-Referer", c.OpenRouterReferer),
		provider.WithHeader("X-Title", c.OpenRouterTitle),
	}
}

// SambaNovaOptions returns the provider options for SambaNova.
func (c Config) SambaNovaOptions() []provider.Option {
	return []provider.Option{provider.WithBaseURL(c.SambaNovaBaseURL)}
}
