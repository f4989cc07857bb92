// Package events notifies downstream services about finished runs.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RunCompleted is emitted when a run finished and met its thresholds.
	RunCompleted = "smoke.run_completed"
	// RunFailed is emitted when a run finished below its check threshold.
	RunFailed = "smoke.run_failed"

	// PublishTimeout bounds a single enqueue.
	PublishTimeout = 2 * time.Second
)

// Envelope is the message format read by the notification service.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publisher enqueues run events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// listPusher is the subset of the redis client the publisher needs.
type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisPublisher pushes JSON envelopes onto a Redis list.
type RedisPublisher struct {
	client listPusher
	queue  string
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher writing to queue.
func NewRedisPublisher(client listPusher, queue string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client: client,
		queue:  queue,
		logger: logger.With(zap.String("component", "events.publisher")),
	}
}

// Publish marshals the envelope and LPUSHes it to the queue.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, data any) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	if err := p.client.LPush(ctx, p.queue, string(payload)).Err(); err != nil {
		return fmt.Errorf("push event to %s: %w", p.queue, err)
	}
	p.logger.Debug("event published", zap.String("type", eventType), zap.String("queue", p.queue))
	return nil
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type noop struct{}

// NewNoop returns a Publisher that drops every event.
func NewNoop() Publisher { return noop{} }

func (noop) Publish(context.Context, string, any) error { return nil }
