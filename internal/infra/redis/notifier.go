package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"duel-trivia-service/internal/app"
	"github.com/redis/go-redis/v9"
)

const changedMessage = "changed"

// Notifier fans change signals out over Redis pub/sub, one channel per match,
// so observers connected to any server process see every mutation.
type Notifier struct {
	client         *redis.Client
	confirmTimeout time.Duration
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client, confirmTimeout: 3 * time.Second}
}

func (n *Notifier) Publish(ctx context.Context, matchID string) error {
	if err := n.client.Publish(ctx, channelName(matchID), changedMessage).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", matchID, err)
	}
	return nil
}

// Subscribe returns an error when the subscription is not confirmed in time, which
// lets app.ResilientNotifier switch to polling.
func (n *Notifier) Subscribe(ctx context.Context, matchID string, onChange func()) (app.Subscription, error) {
	pubsub := n.client.Subscribe(context.Background(), channelName(matchID))

	confirmCtx, cancel := context.WithTimeout(ctx, n.confirmTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", matchID, err)
	}

	sub := &subscription{
		pubsub:   pubsub,
		messages: pubsub.Channel(),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type subscription struct {
	pubsub   *redis.PubSub
	messages <-chan *redis.Message
	onChange func()
	done     chan struct{}
	once     sync.Once
	stopped  atomic.Bool
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-s.messages:
			if !ok || s.stopped.Load() {
				return
			}
			s.onChange()
		}
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		_ = s.pubsub.Close()
	})
}

func channelName(matchID string) string {
	return "match:" + matchID + ":changed"
}
