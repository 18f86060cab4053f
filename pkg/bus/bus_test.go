package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDirectiveChannel(t *testing.T) {
	if got := DirectiveChannel("2"); got != "migration-directives.2" {
		t.Errorf("unexpected channel: %s", got)
	}
}

func TestDurableName(t *testing.T) {
	got := durableName(DirectiveChannel("ctl.a"))
	if got != "sdnlb_migration-directives_ctl_a" {
		t.Errorf("unexpected durable name: %s", got)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	payload := []byte(`{"controller_id":"1","total_switches":2,"avg_latency_ms":12.5,` +
		`"total_load":40,"connected_switches":["s1","s2"],"timestamp":"2024-01-01T00:00:00Z","extra":true}`)

	s, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Controller != "1" || s.TotalLoad != 40 || len(s.ConnectedSwitches) != 2 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		decode  func([]byte) error
	}{
		{"snapshot not json", `{{`, func(b []byte) error { _, err := DecodeSnapshot(b); return err }},
		{"snapshot missing id", `{"total_load":3}`, func(b []byte) error { _, err := DecodeSnapshot(b); return err }},
		{"directive wrong type", `{"from":1}`, func(b []byte) error { _, err := DecodeDirective(b); return err }},
		{"directive missing to", `{"from":"1"}`, func(b []byte) error { _, err := DecodeDirective(b); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode([]byte(tt.payload))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestMemoryBus_PublishConsume(t *testing.T) {
	b := NewMemoryBus(testLogger())
	defer b.Close()

	d := types.NewMigrationDirective("1", "2", "s4")
	data, err := Encode(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := b.Publish(context.Background(), DirectiveChannel("1"), data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan types.MigrationDirective, 1)
	go b.Consume(ctx, DirectiveChannel("1"), func(ctx context.Context, payload []byte) error {
		d, err := DecodeDirective(payload)
		if err != nil {
			return err
		}
		got <- d
		return nil
	})

	select {
	case r := <-got:
		if r.ID != d.ID || r.Switch != "s4" {
			t.Errorf("unexpected directive: %+v", r)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for directive")
	}

	if n, _ := b.Len(context.Background(), DirectiveChannel("2")); n != 0 {
		t.Errorf("expected nothing on another controller's channel, got %d", n)
	}
}

func TestMemoryBus_HandlerErrorDoesNotStopConsumer(t *testing.T) {
	b := NewMemoryBus(testLogger())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b.Publish(ctx, ChannelReports, []byte("garbage"))
	b.Publish(ctx, ChannelReports, []byte(`{"controller_id":"1"}`))

	got := make(chan types.ControllerID, 1)
	go b.Consume(ctx, ChannelReports, func(ctx context.Context, payload []byte) error {
		s, err := DecodeSnapshot(payload)
		if err != nil {
			return err
		}
		got <- s.Controller
		return nil
	})

	select {
	case id := <-got:
		if id != "1" {
			t.Errorf("unexpected controller: %s", id)
		}
	case <-ctx.Done():
		t.Fatal("consumer stopped after malformed message")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus(testLogger())
	b.Close()

	err := b.Publish(context.Background(), ChannelReports, []byte("{}"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	// Consume returns immediately on a closed bus
	if err := b.Consume(context.Background(), ChannelReports, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "kafka"}, testLogger()); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(Config{Backend: BackendRedis}, testLogger()); err == nil {
		t.Error("expected error for redis without url")
	}
	b, err := New(Config{Backend: BackendMemory}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Close()
}

func TestMemoryBus_Len(t *testing.T) {
	b := NewMemoryBus(testLogger())
	defer b.Close()
	ctx := context.Background()

	var depth Depth = b
	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, ChannelReports, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	n, err := depth.Len(ctx, ChannelReports)
	if err != nil || n != 3 {
		t.Errorf("expected 3 waiting, got %d (%v)", n, err)
	}
	if n, _ := depth.Len(ctx, "empty"); n != 0 {
		t.Errorf("expected empty channel, got %d", n)
	}
}
