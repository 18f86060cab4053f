// Package classifier labels flow samples as legitimate or attack traffic.
//
// Two implementations exist: an HTTP client for an external model service and
// a built-in packet-rate heuristic used when no model service is configured.
package classifier

import (
	"context"
	"errors"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// ErrClassifier is returned when a batch cannot be classified.
var ErrClassifier = errors.New("classifier failed")

// Label is the classification of a single flow sample. The numeric values
// match the model service's output encoding.
type Label int

const (
	Legitimate Label = 0
	Attack     Label = 1
)

func (l Label) String() string {
	if l == Attack {
		return "attack"
	}
	return "legitimate"
}

// Classifier labels a batch of flow samples. The returned slice has one label
// per sample, in order.
type Classifier interface {
	Classify(ctx context.Context, samples []types.FlowSample) ([]Label, error)
}
