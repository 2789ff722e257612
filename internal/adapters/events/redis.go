package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

// Channel carries committed license changes as JSON LicenseEvent payloads.
const Channel = "licenses:events"

type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisPublisher(addr string, password string, db int, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: rdb, logger: logger}
}

// Publish broadcasts event to every subscriber of Channel.
func (r *RedisPublisher) Publish(ctx context.Context, event domain.LicenseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode license event: %w", err)
	}
	return r.client.Publish(ctx, Channel, payload).Err()
}

func (r *RedisPublisher) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Subscribe returns decoded events until ctx is cancelled. Malformed payloads are skipped.
func (r *RedisPublisher) Subscribe(ctx context.Context) (<-chan domain.LicenseEvent, error) {
	pubsub := r.client.Subscribe(ctx, Channel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	out := make(chan domain.LicenseEvent)
	go func() {
		defer close(out)
		defer func() {
			if errClose := pubsub.Close(); errClose != nil {
				r.logger.Warn("failed to close subscription", "error", errClose)
			}
		}()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.LicenseEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Warn("dropping malformed license event", "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

// NoopPublisher discards events. licensectl uses it when no Redis address is configured.
// The server passes a nil publisher instead so /health omits the events check.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.LicenseEvent) error { return nil }

func (NoopPublisher) Ping(context.Context) error { return nil }

var (
	_ ports.EventPublisher = (*RedisPublisher)(nil)
	_ ports.EventPublisher = NoopPublisher{}
)
