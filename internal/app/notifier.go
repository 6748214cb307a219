package app

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Subscription is the handle returned by Notifier.Subscribe.
// Unsubscribe is idempotent and may be called from any goroutine, including
// from inside the onChange callback. No callback starts after it returns.
type Subscription interface {
	Unsubscribe()
}

// Notifier delivers "match changed" signals. It never carries the state itself;
// observers re-read it with MatchService.GetGameState.
type Notifier interface {
	Subscribe(ctx context.Context, matchID string, onChange func()) (Subscription, error)
	Publish(ctx context.Context, matchID string) error
}

// ResilientNotifier subscribes through the push transport and falls back to
// polling when a push channel cannot be established.
type ResilientNotifier struct {
	push Notifier
	poll Notifier
	log  logrus.FieldLogger
}

func NewResilientNotifier(push, poll Notifier, log logrus.FieldLogger) *ResilientNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResilientNotifier{push: push, poll: poll, log: log.WithField("component", "notifier")}
}

func (n *ResilientNotifier) Subscribe(ctx context.Context, matchID string, onChange func()) (Subscription, error) {
	sub, err := n.push.Subscribe(ctx, matchID, onChange)
	if err == nil {
		return sub, nil
	}
	n.log.WithError(err).WithField("match_id", matchID).Warn("push channel unavailable, polling instead")
	return n.poll.Subscribe(ctx, matchID, onChange)
}

func (n *ResilientNotifier) Publish(ctx context.Context, matchID string) error {
	return n.push.Publish(ctx, matchID)
}
