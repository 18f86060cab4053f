package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream that retains both channels.
	StreamName = "SDNLB"

	// Messages pulled per fetch
	natsFetchBatch = 16
)

// NATSBus implements Bus on NATS JetStream. Each channel is a subject in one
// stream and each consumer is a durable pull consumer with manual ack, so
// unacknowledged messages are redelivered after AckWait.
type NATSBus struct {
	nc     *natsgo.Conn
	js     natsgo.JetStreamContext
	logger *slog.Logger

	fetchWait  time.Duration
	retryDelay time.Duration
}

// NewNATSBus connects to the NATS server at url and ensures the stream exists.
// A non-empty token authenticates the connection.
func NewNATSBus(url, token string, logger *slog.Logger) (*NATSBus, error) {
	opts := []natsgo.Option{
		natsgo.Name("sdnlb"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
	}
	if token != "" {
		opts = append(opts, natsgo.Token(token))
	}

	nc, err := natsgo.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: nats connection failed: %v", ErrUnavailable, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: jetstream: %v", ErrUnavailable, err)
	}

	_, err = js.AddStream(&natsgo.StreamConfig{
		Name:     StreamName,
		Subjects: []string{ChannelReports, ChannelDirectives + ".>"},
		Storage:  natsgo.FileStorage,
	})
	if err != nil && !errors.Is(err, natsgo.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("%w: creating stream %s: %v", ErrUnavailable, StreamName, err)
	}

	return &NATSBus{
		nc:         nc,
		js:         js,
		logger:     logger.With("component", "bus", "backend", "nats"),
		fetchWait:  2 * time.Second,
		retryDelay: defaultRetryDelay,
	}, nil
}

// Publish stores payload on the channel's subject.
func (b *NATSBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if _, err := b.js.Publish(channel, payload, natsgo.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrUnavailable, channel, err)
	}
	return nil
}

// Consume delivers messages from channel to h until ctx is done.
func (b *NATSBus) Consume(ctx context.Context, channel string, h Handler) error {
	sub, err := b.js.PullSubscribe(channel, durableName(channel), natsgo.ManualAck())
	if err != nil {
		return fmt.Errorf("%w: subscribe to %s: %v", ErrUnavailable, channel, err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, b.fetchWait)
		msgs, err := sub.Fetch(natsFetchBatch, natsgo.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, natsgo.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			b.logger.Warn("fetch failed, backing off", "channel", channel, "error", err, "retry_in", b.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, msg := range msgs {
			if err := h(ctx, msg.Data); err != nil {
				b.logger.Warn("handler failed", "channel", channel, "error", err)
			}
			if err := msg.Ack(); err != nil {
				b.logger.Warn("failed to acknowledge message", "channel", channel, "error", err)
			}
		}
	}
}

// Close drains the connection, letting in-flight acks complete.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}

var durableReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// durableName derives a JetStream durable consumer name from a subject.
// Durable names cannot contain dots or wildcards.
func durableName(channel string) string {
	return "sdnlb_" + durableReplacer.Replace(channel)
}
