// Package bus carries metric snapshots and migration directives between
// controller agents and the coordination service.
//
// Delivery is at-least-once and unordered. A message is acknowledged after its
// handler returns, whatever the handler's result; handlers must tolerate
// redelivery.
package bus

import (
	"context"
	"errors"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Logical channels.
const (
	// ChannelReports carries MetricSnapshots from agents to the coordinator.
	ChannelReports = "controller-reports"

	// ChannelDirectives is the prefix of the per-controller directive channels.
	ChannelDirectives = "migration-directives"
)

var (
	// ErrUnavailable is returned when the bus cannot be reached.
	ErrUnavailable = errors.New("bus unavailable")

	// ErrMalformed is returned when a payload cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// Bus is a publish/consume message transport.
type Bus interface {
	// Publish sends payload on channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Consume delivers messages on channel to h until ctx is done.
	// It returns nil on cancellation.
	Consume(ctx context.Context, channel string, h Handler) error

	// Close releases connections held by the bus.
	Close() error
}

// Depth is implemented by backends that can report how many messages are
// waiting on a channel.
type Depth interface {
	Len(ctx context.Context, channel string) (int64, error)
}

// DirectiveChannel returns the directive channel addressed to controller id.
func DirectiveChannel(id types.ControllerID) string {
	return ChannelDirectives + "." + string(id)
}
