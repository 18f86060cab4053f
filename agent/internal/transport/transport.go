// Package transport talks to the switches a controller manages.
//
// The agent needs three things from the switch side: per-switch flow
// statistics for a monitor round, the ability to point a switch at another
// controller, and notification when switches connect or disconnect. The
// Transport interface captures exactly that; OVS implements it for Open
// vSwitch bridges driven through ovs-ofctl and ovs-vsctl.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// ErrTransport is returned when the switch side cannot be reached or refuses
// a request.
var ErrTransport = errors.New("transport error")

// StatsReply is one switch's answer to a stats request.
type StatsReply struct {
	Switch types.SwitchID
	Flows  []types.FlowSample

	// RequestedAt is when the request actually left for the switch, after
	// any client-side queuing. Zero if the transport does not track it.
	RequestedAt time.Time
	ReceivedAt  time.Time
}

// EventKind says what happened to a switch.
type EventKind int

const (
	SwitchConnected EventKind = iota
	SwitchDisconnected
)

func (k EventKind) String() string {
	if k == SwitchDisconnected {
		return "disconnected"
	}
	return "connected"
}

// Event reports a change in a switch's connection to this controller.
type Event struct {
	Kind   EventKind
	Switch types.SwitchID
}

// Transport is the switch-management collaborator.
type Transport interface {
	// PollStats requests flow statistics from sw.
	PollStats(ctx context.Context, sw types.SwitchID) (*StatsReply, error)

	// ReassignController points sw at the controller reachable at target.
	ReassignController(ctx context.Context, sw types.SwitchID, target string) error

	// Watch calls emit for every connect and disconnect until ctx is done.
	// It returns nil on cancellation.
	Watch(ctx context.Context, emit func(Event)) error

	// Close releases connections held by the transport.
	Close() error
}
