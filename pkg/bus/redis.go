package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for bus queues
	keyPrefix = "sdnlb:bus:"

	// How long a consumer blocks on an empty queue before rechecking ctx
	defaultBlockTimeout = 2 * time.Second

	// Pause before retrying after a failed receive
	defaultRetryDelay = 5 * time.Second
)

// RedisBus implements Bus on Redis lists.
//
// Publish pushes onto the head of the channel's list. A consumer moves the
// tail element onto a processing list, runs the handler and then removes it
// from the processing list. Anything left on the processing list when a
// consumer starts was never acknowledged and is moved back for redelivery.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger

	blockTimeout time.Duration
	retryDelay   time.Duration
}

// NewRedisBus connects to Redis at redisURL. A non-empty password overrides
// the one in the URL.
func NewRedisBus(redisURL, password string, logger *slog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis connection failed: %v", ErrUnavailable, err)
	}

	return &RedisBus{
		client:       client,
		logger:       logger.With("component", "bus", "backend", "redis"),
		blockTimeout: defaultBlockTimeout,
		retryDelay:   defaultRetryDelay,
	}, nil
}

func queueKey(channel string) string      { return keyPrefix + channel }
func processingKey(channel string) string { return keyPrefix + channel + ":processing" }

// Publish pushes payload onto the channel's queue.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.LPush(ctx, queueKey(channel), payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrUnavailable, channel, err)
	}
	return nil
}

// Consume delivers messages from channel to h until ctx is done.
func (b *RedisBus) Consume(ctx context.Context, channel string, h Handler) error {
	queue := queueKey(channel)
	processing := processingKey(channel)

	if n, err := b.requeue(ctx, processing, queue); err != nil {
		b.logger.Warn("failed to requeue unacknowledged messages", "channel", channel, "error", err)
	} else if n > 0 {
		b.logger.Info("requeued unacknowledged messages", "channel", channel, "count", n)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		data, err := b.client.BLMove(ctx, queue, processing, "RIGHT", "LEFT", b.blockTimeout).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("receive failed, backing off", "channel", channel, "error", err, "retry_in", b.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		if err := h(ctx, data); err != nil {
			b.logger.Warn("handler failed", "channel", channel, "error", err)
		}

		// Ack even if the consumer is shutting down
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := b.client.LRem(ackCtx, processing, 1, data).Err(); err != nil {
			b.logger.Warn("failed to acknowledge message", "channel", channel, "error", err)
		}
		cancel()
	}
}

// requeue moves every element of processing back onto queue.
func (b *RedisBus) requeue(ctx context.Context, processing, queue string) (int, error) {
	n := 0
	for {
		err := b.client.LMove(ctx, processing, queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Len returns the number of messages waiting on channel.
func (b *RedisBus) Len(ctx context.Context, channel string) (int64, error) {
	return b.client.LLen(ctx, queueKey(channel)).Result()
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
