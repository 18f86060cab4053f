package classifier

import (
	"context"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// ThresholdClassifier flags a flow as attack traffic when its packet rate
// exceeds a fixed limit.
type ThresholdClassifier struct {
	PacketRate float64 // packets per second
}

// NewThresholdClassifier creates a packet-rate classifier.
func NewThresholdClassifier(packetRate float64) *ThresholdClassifier {
	return &ThresholdClassifier{PacketRate: packetRate}
}

// Classify labels each sample by its packet rate.
func (c *ThresholdClassifier) Classify(ctx context.Context, samples []types.FlowSample) ([]Label, error) {
	labels := make([]Label, len(samples))
	for i, s := range samples {
		if s.PacketsPerSec > c.PacketRate {
			labels[i] = Attack
		}
	}
	return labels, nil
}
