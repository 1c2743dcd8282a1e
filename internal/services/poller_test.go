package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerRunsImmediatelyAndOnInterval(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	poller := NewPoller()
	poller.Every("counter", 20*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, expected at least the immediate run plus one tick", ticks.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	poller.Wait()
}

func TestPollerSurvivesJobErrors(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	poller := NewPoller()
	poller.Every("flaky", 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return errors.New("relay hiccup")
	})

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("failing job stopped being retried after %d runs", ticks.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	poller.Wait()
}

func TestPollerStopsOnCancel(t *testing.T) {
	t.Parallel()

	poller := NewPoller()
	poller.Every("idle", time.Hour, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		poller.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancellation")
	}
}
