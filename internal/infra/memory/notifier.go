package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"duel-trivia-service/internal/app"
)

// Notifier is an in-process change hub. Each subscription owns a goroutine and a
// one-slot signal buffer, so a burst of publishes collapses into one pending signal
// and a slow observer never blocks Publish.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[*subscription]struct{})}
}

func (n *Notifier) Subscribe(_ context.Context, matchID string, onChange func()) (app.Subscription, error) {
	sub := &subscription{
		hub:      n,
		matchID:  matchID,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	n.mu.Lock()
	if n.subs[matchID] == nil {
		n.subs[matchID] = make(map[*subscription]struct{})
	}
	n.subs[matchID][sub] = struct{}{}
	n.mu.Unlock()

	go sub.run()
	return sub, nil
}

func (n *Notifier) Publish(_ context.Context, matchID string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for sub := range n.subs[matchID] {
		select {
		case sub.signal <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
	return nil
}

// Subscribers reports how many live subscriptions matchID has.
func (n *Notifier) Subscribers(matchID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[matchID])
}

func (n *Notifier) remove(sub *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if set, ok := n.subs[sub.matchID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(n.subs, sub.matchID)
		}
	}
}

type subscription struct {
	hub      *Notifier
	matchID  string
	onChange func()
	signal   chan struct{}
	done     chan struct{}
	once     sync.Once
	stopped  atomic.Bool
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			if s.stopped.Load() {
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
		s.hub.remove(s)
	})
}
