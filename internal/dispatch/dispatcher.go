package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/Rajchodisetti/market-monitor/internal/observ"
)

const (
	defaultQueueKey    = "signals:pending"
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
)

// Publisher pushes queue messages to the work queue. Implemented by
// RedisPublisher in production and by test doubles elsewhere.
type Publisher interface {
	Publish(ctx context.Context, msg QueueMessage) error
}

// RedisPublisher delivers messages over a Redis list with at-least-once
// semantics: transient failures are retried with bounded backoff, and a
// message that exhausts its retries is dropped loudly rather than blocking
// the scheduler tick.
type RedisPublisher struct {
	client      redis.Cmdable
	queueKey    string
	maxAttempts int
	baseDelay   time.Duration
}

type PublisherOption func(*RedisPublisher)

func WithQueueKey(key string) PublisherOption {
	return func(p *RedisPublisher) { p.queueKey = key }
}

func WithMaxAttempts(n int) PublisherOption {
	return func(p *RedisPublisher) { p.maxAttempts = n }
}

func WithBaseDelay(d time.Duration) PublisherOption {
	return func(p *RedisPublisher) { p.baseDelay = d }
}

func NewRedisPublisher(client redis.Cmdable, opts ...PublisherOption) *RedisPublisher {
	p := &RedisPublisher{
		client:      client,
		queueKey:    defaultQueueKey,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish pushes the encoded message onto the queue. On exhaustion it records
// the drop and returns the last transport error so callers can log context.
func (p *RedisPublisher) Publish(ctx context.Context, msg QueueMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.client.LPush(ctx, p.queueKey, payload).Err(); err == nil {
			observ.DispatchAttempts.WithLabelValues(msg.Kind, "ok").Inc()
			log.Debug().
				Str("kind", msg.Kind).
				Strs("tickers", msg.Tickers).
				Str("priority", msg.Priority).
				Int("attempt", attempt).
				Msg("queue message published")
			return nil
		} else {
			lastErr = err
		}
		observ.DispatchAttempts.WithLabelValues(msg.Kind, "error").Inc()

		if attempt < p.maxAttempts {
			delay := p.baseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				observ.DispatchDrops.WithLabelValues(msg.Kind).Inc()
				return fmt.Errorf("publish canceled after %d attempts: %w", attempt, ctx.Err())
			}
		}
	}

	observ.DispatchDrops.WithLabelValues(msg.Kind).Inc()
	log.Error().
		Err(lastErr).
		Str("kind", msg.Kind).
		Strs("tickers", msg.Tickers).
		Int("attempts", p.maxAttempts).
		Msg("queue message dropped after retry exhaustion")
	return fmt.Errorf("publish failed after %d attempts: %w", p.maxAttempts, lastErr)
}
