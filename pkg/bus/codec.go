package bus

import (
	"encoding/json"
	"fmt"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Encode serializes a message for the wire.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses and validates a MetricSnapshot payload.
// Failures wrap ErrMalformed.
func DecodeSnapshot(data []byte) (types.MetricSnapshot, error) {
	var s types.MetricSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: snapshot: %v", ErrMalformed, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w: snapshot: %v", ErrMalformed, err)
	}
	return s, nil
}

// DecodeDirective parses and validates a MigrationDirective payload.
// Failures wrap ErrMalformed.
func DecodeDirective(data []byte) (types.MigrationDirective, error) {
	var d types.MigrationDirective
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("%w: directive: %v", ErrMalformed, err)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("%w: directive: %v", ErrMalformed, err)
	}
	return d, nil
}
