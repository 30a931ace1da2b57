package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTripsAfterThreshold(t *testing.T) {
	b := New("test", 3, time.Minute, time.Second)
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Call(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	invoked := false
	err := b.Call(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Fatalf("operation must not run while the circuit is open")
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond, time.Second)
	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Call(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open attempt to run: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after half-open success, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.Failures())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond, time.Second)
	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after half-open failure, got %s", b.State())
	}
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b := New("test", 1, time.Minute, 10*time.Millisecond)
	err := b.Call(context.Background(), func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after timeout with threshold 1, got %s", b.State())
	}
}
