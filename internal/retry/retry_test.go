package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastBackoff(3).Do(context.Background(), func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastBackoff(5).Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastBackoff(4).Do(context.Background(), func(int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the last op error", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := Backoff{InitialDelay: time.Hour, Multiplier: 2, MaxAttempts: 0}
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(int) error { return errors.New("transient") })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_DelayCapped(t *testing.T) {
	b := Backoff{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 10, MaxAttempts: 5}
	start := time.Now()
	b.Do(context.Background(), func(int) error { return errors.New("x") })
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do took %s, delay cap not applied", elapsed)
	}
}
