// Package proxy exposes the router over gRPC and HTTP.
package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/abdhe/chat-router/pkg/logsink"
	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/router"
)

// ErrInvalidRequest is returned for requests that fail validation.
var ErrInvalidRequest = errors.New("invalid request")

// GenerateRequest is the inbound request of both transports.
type GenerateRequest struct {
	Model    string             `json:"model" validate:"required"`
	Messages []provider.Message `json:"messages" validate:"required,min=1,dive"`
}

// Handler runs generation requests for the transports.
type Handler struct {
	router   *router.Router
	app      router.AppConfig
	sink     *logsink.RedisSink
	validate *validator.Validate
	log      logrus.FieldLogger
}

// Config holds the handler configuration.
type Config struct {
	Router *router.Router
	App    router.AppConfig
	Sink   *logsink.RedisSink // optional
	Logger logrus.FieldLogger
}

// NewHandler creates a new proxy handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Router == nil {
		cfg.Router = router.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Handler{
		router:   cfg.Router,
		app:      cfg.App,
		sink:     cfg.Sink,
		validate: validator.New(),
		log:      cfg.Logger,
	}
}

// Validate checks a request before any provider is contacted.
func (h *Handler) Validate(req GenerateRequest) error {
	if err := h.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Stream validates req and starts generating. The returned channel follows
// the router.Stream contract. Log entries are also published to the sink,
// when one is configured, under the returned request id.
func (h *Handler) Stream(ctx context.Context, req GenerateRequest) (string, <-chan provider.Event, error) {
	if err := h.Validate(req); err != nil {
		return "", nil, err
	}

	requestID := uuid.NewString()
	log := h.log.WithFields(logrus.Fields{"request_id": requestID, "model": req.Model})
	log.WithField("messages", len(req.Messages)).Info("generation started")

	events := provider.Pipe(ctx, func(emit provider.Emitter) (provider.Result, error) {
		if h.sink != nil {
			emit = h.sink.Forward(requestID, req.Model, emit)
		}
		return h.router.Generate(ctx, req.Messages, req.Model, h.app, emit)
	})
	return requestID, events, nil
}

// Strategies lists the auto strategies clients may request.
func (h *Handler) Strategies() []router.AutoModeConfig {
	return h.router.Strategies()
}
