// Chat Router: main entry point
//
// Configuration comes from the environment (optionally a .env file) and a
// YAML profile:
//   GOOGLE_API_KEYS     - Comma-separated Gemini API keys
//   OPENROUTER_API_KEY  - OpenRouter API key
//   SAMBANOVA_API_KEY   - SambaNova API key
//   PROFILE_PATH        - Model profile (system prompt, memory, model lists)
//   GRPC_PORT           - gRPC server port (default: 50051)
//   HTTP_PORT           - HTTP server port (default: 8080)
//   REDIS_ADDR          - Redis log sink address (disabled when empty)
//   LOG_LEVEL           - Process log level (default: info)
//   LOG_FORMAT          - json or text (default: json)
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdhe/chat-router/pkg/config"
	"github.com/abdhe/chat-router/pkg/logsink"
	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/router"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "chatrouter",
	Short: "Routes chat requests to Gemini, OpenRouter and SambaNova",
	Long: `Chat Router picks a provider for each request, rotates Gemini API keys,
falls back across models in auto mode and grounds answers with web search.

Examples:
  chatrouter serve
  chatrouter ask --model auto-gemini-flash "What is a monad?"
  chatrouter models`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, askCmd, modelsCmd, logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// services is everything the commands share.
type services struct {
	cfg     config.Config
	profile config.Profile
	log     *logrus.Logger
	router  *router.Router
	app     router.AppConfig
}

// loadServices reads the configuration and builds the router. A non-empty
// logFormat overrides LOG_FORMAT; opts are applied after the configured ones.
func loadServices(logFormat string, opts ...router.Option) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logFormat == "" {
		logFormat = cfg.LogFormat
	}
	log, err := logsink.NewLogger(cfg.LogLevel, logFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}

	r := router.New(append([]router.Option{
		router.WithGemini(provider.NewGeminiProvider(cfg.GeminiOptions()...)),
		router.WithOpenRouter(provider.NewOpenRouterProvider(cfg.OpenRouterOptions()...)),
		router.WithSambaNova(provider.NewSambaNovaProvider(cfg.SambaNovaOptions()...)),
		router.WithStrategies(profile.RouterStrategies()...),
		router.WithLogger(log),
	}, opts...)...)

	app := cfg.AppConfig(profile)
	log.WithFields(logrus.Fields{
		"google_keys": len(app.GoogleKeys),
		"openrouter":  app.OpenRouterKey != "",
		"sambanova":   app.SambaNovaKey != "",
		"strategies":  len(r.Strategies()),
	}).Debug("configuration loaded")

	return &services{cfg: cfg, profile: profile, log: log, router: r, app: app}, nil
}

// openSink connects the Redis log sink. It returns nil when the sink is
// disabled or Redis is unreachable.
func (s *services) openSink() *logsink.RedisSink {
	if !s.cfg.LogSinkEnabled() {
		return nil
	}
	sink := logsink.NewRedisSink(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, s.cfg.LogSinkKey, s.cfg.LogSinkMaxLen).
		WithLogger(s.log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("Redis connection failed, log sink disabled")
		_ = sink.Close()
		return nil
	}
	s.log.WithField("key", sink.Key()).Info("log sink enabled")
	return sink
}
