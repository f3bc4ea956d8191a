// Package logsink publishes consumer log entries to Redis and builds the
// process logger.
package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/abdhe/chat-router/pkg/provider"
)

// publishTimeout bounds a single fire-and-forget publication.
const publishTimeout = 2 * time.Second

// Record is one published log entry.
type Record struct {
	RequestID string            `json:"request_id"`
	Model     string            `json:"model,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Level     provider.LogLevel `json:"level"`
	Message   string            `json:"message"`
}

// RedisSink appends log records to a capped Redis list and publishes them on
// a channel of the same name.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
	log    logrus.FieldLogger
}

// NewRedisSink creates a sink backed by a new Redis client.
func NewRedisSink(addr, password string, db int, key string, maxLen int64) *RedisSink {
	return NewRedisSinkFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), key, maxLen)
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client *redis.Client, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = "chatrouter:logs"
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen, log: logrus.StandardLogger()}
}

// WithLogger sets where publication failures are reported.
func (s *RedisSink) WithLogger(log logrus.FieldLogger) *RedisSink {
	if log != nil {
		s.log = log
	}
	return s
}

// Key returns the list key, which is also the channel name.
func (s *RedisSink) Key() string { return s.key }

// Publish stores rec and notifies subscribers in one transaction.
func (s *RedisSink) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("logsink: marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	pipe.Publish(ctx, s.key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("logsink: publish: %w", err)
	}
	return nil
}

// Forward returns an Emitter that publishes every log event of one request
// before passing all events on to next. Publication failures are only logged.
func (s *RedisSink) Forward(requestID, model string, next provider.Emitter) provider.Emitter {
	return func(ev provider.Event) {
		if ev.Kind == provider.EventLog {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := s.Publish(ctx, Record{
				RequestID: requestID,
				Model:     model,
				Timestamp: ev.Log.Time,
				Level:     ev.Log.Level,
				Message:   ev.Log.Message,
			})
			cancel()
			if err != nil {
				s.log.WithError(err).WithField("request_id", requestID).Debug("log sink unavailable")
			}
		}
		next.Emit(ev)
	}
}

// Recent returns up to n of the newest records, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	vals, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("logsink: read: %w", err)
	}
	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
