// Package publisher emits ingest run events on a Redis stream so other
// services can follow a rebuild.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Event types published during a run.
const (
	EventRunStarted      = "run_started"
	EventSourceCompleted = "source_completed"
	EventSourceSkipped   = "source_skipped"
	EventRunCompleted    = "run_completed"
	EventRunFailed       = "run_failed"
)

// Event is one run lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends run events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// RedisStreamPublisher publishes events to a Redis stream
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisStreamPublisher creates a publisher from an existing client.
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream}
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(redisURL, stream string) (*RedisStreamPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStreamPublisher(client, stream), nil
}

// Publish appends ev to the stream.
func (p *RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
}

// Close closes the Redis connection
func (p *RedisStreamPublisher) Close() error {
	return p.client.Close()
}

func streamValues(ev Event) (map[string]any, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return map[string]any{
		"type":      ev.Type,
		"run_id":    ev.RunID,
		"data":      string(data),
		"timestamp": ev.Timestamp.Unix(),
	}, nil
}

// NopPublisher drops every event. It is used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
