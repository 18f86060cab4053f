package bus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Requires a Redis server; set SDNLB_TEST_REDIS_URL to run.
func newTestRedisBus(t *testing.T) (*RedisBus, string) {
	t.Helper()
	url := os.Getenv("SDNLB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SDNLB_TEST_REDIS_URL not set")
	}

	b, err := NewRedisBus(url, "", testLogger())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	b.blockTimeout = 100 * time.Millisecond
	b.retryDelay = 100 * time.Millisecond

	channel := "test-" + uuid.NewString()
	t.Cleanup(func() {
		b.client.Del(context.Background(), queueKey(channel), processingKey(channel))
		b.Close()
	})
	return b, channel
}

// consume runs Consume in the background and returns a func that stops it
// and waits for it to return.
func consume(t *testing.T, b *RedisBus, channel string, h Handler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Consume(ctx, channel, h) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Consume returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Consume did not return after cancel")
		}
	}
}

func waitFor(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestRedisBus_PublishConsume(t *testing.T) {
	b, channel := newTestRedisBus(t)
	ctx := context.Background()

	for _, msg := range []string{"one", "two"} {
		if err := b.Publish(ctx, channel, []byte(msg)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if n, err := b.Len(ctx, channel); err != nil || n != 2 {
		t.Fatalf("expected 2 waiting, got %d (%v)", n, err)
	}

	got := make(chan []byte, 2)
	stop := consume(t, b, channel, func(ctx context.Context, payload []byte) error {
		got <- payload
		return nil
	})
	defer stop()

	// Oldest first
	if msg := waitFor(t, got); string(msg) != "one" {
		t.Errorf("expected one, got %s", msg)
	}
	if msg := waitFor(t, got); string(msg) != "two" {
		t.Errorf("expected two, got %s", msg)
	}
}

func TestRedisBus_HandlerErrorStillAcknowledges(t *testing.T) {
	b, channel := newTestRedisBus(t)
	ctx := context.Background()

	handled := make(chan []byte, 1)
	stop := consume(t, b, channel, func(ctx context.Context, payload []byte) error {
		handled <- payload
		return errors.New("bad snapshot")
	})

	if err := b.Publish(ctx, channel, []byte("poison")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, handled)

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := b.client.LLen(ctx, processingKey(channel)).Result()
		if err != nil {
			t.Fatalf("LLen: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message still on processing list after handler error")
		}
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	if n, _ := b.Len(ctx, channel); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
}

func TestRedisBus_RedeliversUnacknowledged(t *testing.T) {
	b, channel := newTestRedisBus(t)
	ctx := context.Background()

	// A consumer that died mid-handler leaves its message on the processing list
	if err := b.client.LPush(ctx, processingKey(channel), "orphan").Err(); err != nil {
		t.Fatalf("LPush: %v", err)
	}

	got := make(chan []byte, 1)
	stop := consume(t, b, channel, func(ctx context.Context, payload []byte) error {
		got <- payload
		return nil
	})

	if msg := waitFor(t, got); string(msg) != "orphan" {
		t.Errorf("expected orphan to be redelivered, got %s", msg)
	}
	stop()

	if n, _ := b.client.LLen(ctx, processingKey(channel)).Result(); n != 0 {
		t.Errorf("expected redelivered message acknowledged, %d left", n)
	}
}

func TestRedisBus_UnreachableServer(t *testing.T) {
	_, err := NewRedisBus("redis://127.0.0.1:1/0", "", testLogger())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
