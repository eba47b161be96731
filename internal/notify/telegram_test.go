package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"quakebot/pkg/logx"
)

func testNotifier(attempts int, send func(ctx context.Context, path, caption string) error) *Telegram {
	t := &Telegram{
		cfg: applyDefaults(Config{Attempts: attempts, RetryDelay: time.Millisecond}),
		log: logx.Nop(),
	}
	t.send = send
	return t
}

func TestSendPhotoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	n := testNotifier(5, func(ctx context.Context, path, caption string) error {
		calls++
		return nil
	})
	if err := n.SendPhoto(context.Background(), "a.png", "cap"); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestSendPhotoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	n := testNotifier(5, func(ctx context.Context, path, caption string) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err := n.SendPhoto(context.Background(), "a.png", "cap"); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendPhotoExhaustsRetries(t *testing.T) {
	calls := 0
	n := testNotifier(5, func(ctx context.Context, path, caption string) error {
		calls++
		return errors.New("down")
	})
	err := n.SendPhoto(context.Background(), "a.png", "cap")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", calls)
	}
}

func TestSendPhotoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	n := testNotifier(5, func(ctx context.Context, path, caption string) error {
		calls++
		cancel()
		return errors.New("down")
	})
	err := n.SendPhoto(ctx, "a.png", "cap")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cancellation after 1 attempt, got %d", calls)
	}
}
