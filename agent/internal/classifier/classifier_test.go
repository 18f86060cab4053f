package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func TestThresholdClassifier(t *testing.T) {
	c := NewThresholdClassifier(100)
	samples := []types.FlowSample{
		{FlowID: "a", PacketsPerSec: 10},
		{FlowID: "b", PacketsPerSec: 100},
		{FlowID: "c", PacketsPerSec: 500},
	}

	labels, err := c.Classify(context.Background(), samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Label{Legitimate, Legitimate, Attack}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("sample %d: expected %s, got %s", i, want[i], labels[i])
		}
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.ControllerID != "1" {
			t.Errorf("expected controller 1, got %s", req.ControllerID)
		}

		labels := make([]int, len(req.Samples))
		for i, s := range req.Samples {
			if s.DstIP == "10.0.0.5" {
				labels[i] = 1
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"labels": labels})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(HTTPConfig{URL: srv.URL, ControllerID: "1"})
	labels, err := c.Classify(context.Background(), []types.FlowSample{
		{DstIP: "10.0.0.1"},
		{DstIP: "10.0.0.5"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[0] != Legitimate || labels[1] != Attack {
		t.Errorf("unexpected labels: %v", labels)
	}
}

func TestHTTPClassifier_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"label count mismatch", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"labels":[0]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewHTTPClassifier(HTTPConfig{URL: srv.URL})
			_, err := c.Classify(context.Background(), []types.FlowSample{{}, {}})
			if !errors.Is(err, ErrClassifier) {
				t.Errorf("expected ErrClassifier, got %v", err)
			}
		})
	}
}
