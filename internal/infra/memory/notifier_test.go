package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifierDeliversToMatchSubscribers(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()

	got := make(chan struct{}, 4)
	other := make(chan struct{}, 4)
	sub, _ := n.Subscribe(ctx, "m-1", func() { got <- struct{}{} })
	defer sub.Unsubscribe()
	sub2, _ := n.Subscribe(ctx, "m-2", func() { other <- struct{}{} })
	defer sub2.Unsubscribe()

	_ = n.Publish(ctx, "m-1")
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("expected signal for m-1")
	}
	select {
	case <-other:
		t.Fatalf("m-2 subscriber must not be signalled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierUnsubscribeStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()

	var calls atomic.Int32
	sub, _ := n.Subscribe(ctx, "m-1", func() { calls.Add(1) })
	sub.Unsubscribe()
	sub.Unsubscribe()

	if n.Subscribers("m-1") != 0 {
		t.Fatalf("expected no subscribers after unsubscribe")
	}
	_ = n.Publish(ctx, "m-1")
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("callback ran after unsubscribe")
	}
}

func TestNotifierUnsubscribeFromCallback(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()

	done := make(chan struct{})
	var sub interface{ Unsubscribe() }
	sub, _ = n.Subscribe(ctx, "m-1", func() {
		sub.Unsubscribe()
		close(done)
	})
	_ = n.Publish(ctx, "m-1")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("callback did not run")
	}
	if n.Subscribers("m-1") != 0 {
		t.Fatalf("expected subscription removed")
	}
}

func TestNotifierPublishDoesNotBlockOnSlowObserver(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()

	release := make(chan struct{})
	sub, _ := n.Subscribe(ctx, "m-1", func() { <-release })
	defer sub.Unsubscribe()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = n.Publish(ctx, "m-1")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow observer")
	}
	close(release)
}
