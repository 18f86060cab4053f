package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const memoryQueueSize = 1024

// MemoryBus is an in-process Bus for tests and single-process deployments.
// Messages on a channel are delivered to exactly one of its consumers.
type MemoryBus struct {
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		logger: logger.With("component", "bus", "backend", "memory"),
		queues: make(map[string]chan []byte),
		closed: make(chan struct{}),
	}
}

func (b *MemoryBus) queue(channel string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[channel]
	if !ok {
		q = make(chan []byte, memoryQueueSize)
		b.queues[channel] = q
	}
	return q
}

// Publish enqueues a copy of payload. It blocks while the channel is full.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	select {
	case <-b.closed:
		return fmt.Errorf("%w: bus closed", ErrUnavailable)
	default:
	}

	msg := append([]byte(nil), payload...)
	select {
	case b.queue(channel) <- msg:
		return nil
	case <-b.closed:
		return fmt.Errorf("%w: bus closed", ErrUnavailable)
	case <-ctx.Done():
		return fmt.Errorf("%w: publish to %s: %v", ErrUnavailable, channel, ctx.Err())
	}
}

// Len returns the number of messages waiting on channel.
func (b *MemoryBus) Len(ctx context.Context, channel string) (int64, error) {
	return int64(len(b.queue(channel))), nil
}

// Consume delivers messages from channel to h until ctx is done or the bus is
// closed.
func (b *MemoryBus) Consume(ctx context.Context, channel string, h Handler) error {
	q := b.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		case msg := <-q:
			if err := h(ctx, msg); err != nil {
				b.logger.Warn("handler failed", "channel", channel, "error", err)
			}
		}
	}
}

// Close stops consumers and rejects further publishes.
func (b *MemoryBus) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}
