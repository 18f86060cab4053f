package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// HTTPClassifier sends batches to an external model service.
//
// Request:  {"controller_id": "1", "samples": [FlowSample, ...]}
// Response: {"labels": [0, 1, ...]}  (0 = legitimate, 1 = attack)
type HTTPClassifier struct {
	url          string
	controllerID types.ControllerID
	httpClient   *http.Client
}

// HTTPConfig for the HTTP classifier.
type HTTPConfig struct {
	URL          string
	ControllerID types.ControllerID
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// NewHTTPClassifier creates a classifier backed by a model service.
func NewHTTPClassifier(cfg HTTPConfig) *HTTPClassifier {
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClassifier{
		url:          cfg.URL,
		controllerID: cfg.ControllerID,
		httpClient:   cfg.HTTPClient,
	}
}

type classifyRequest struct {
	ControllerID types.ControllerID `json:"controller_id"`
	Samples      []types.FlowSample `json:"samples"`
}

type classifyResponse struct {
	Labels []Label `json:"labels"`
}

// Classify posts the batch and returns one label per sample.
func (c *HTTPClassifier) Classify(ctx context.Context, samples []types.FlowSample) ([]Label, error) {
	data, err := json.Marshal(classifyRequest{ControllerID: c.controllerID, Samples: samples})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrClassifier, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrClassifier, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sdnlb-agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: request failed with status %d: %s", ErrClassifier, resp.StatusCode, string(body))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrClassifier, err)
	}
	if len(result.Labels) != len(samples) {
		return nil, fmt.Errorf("%w: got %d labels for %d samples", ErrClassifier, len(result.Labels), len(samples))
	}

	return result.Labels, nil
}
