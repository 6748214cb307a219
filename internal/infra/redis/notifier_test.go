package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestNotifierFansOutOverPubSub(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	// two clients stand in for two server processes
	publisher := NewNotifier(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	observer := NewNotifier(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	got := make(chan struct{}, 4)
	sub, err := observer.Subscribe(ctx, "m-1", func() { got <- struct{}{} })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := publisher.Publish(ctx, "m-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change signal")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = publisher.Publish(ctx, "m-1")
	select {
	case <-got:
		t.Fatalf("callback ran after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifierSubscribeFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	n := NewNotifier(client)
	n.confirmTimeout = 500 * time.Millisecond
	if _, err := n.Subscribe(context.Background(), "m-1", func() {}); err == nil {
		t.Fatalf("expected subscribe to fail")
	}
	if err := n.Publish(context.Background(), "m-1"); err == nil {
		t.Fatalf("expected publish to fail")
	}
}
