package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// DefaultPollInterval is how often a polling subscription fires.
const DefaultPollInterval = 5 * time.Second

// Poller is a Notifier that fires every subscription on a fixed interval.
type Poller struct {
	sched    gocron.Scheduler
	interval time.Duration
}

func NewPoller(interval time.Duration) (*Poller, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create poll scheduler: %w", err)
	}
	sched.Start()
	return &Poller{sched: sched, interval: interval}, nil
}

func (p *Poller) Subscribe(_ context.Context, matchID string, onChange func()) (Subscription, error) {
	sub := &pollSubscription{sched: p.sched}
	job, err := p.sched.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if !sub.stopped.Load() {
				onChange()
			}
		}),
		gocron.WithName("poll:"+matchID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule poll for %s: %w", matchID, err)
	}
	sub.jobID = job.ID()
	return sub, nil
}

// Publish is a no-op: polling subscribers find changes on their next tick.
func (p *Poller) Publish(context.Context, string) error {
	return nil
}

// Close stops every polling job.
func (p *Poller) Close() error {
	return p.sched.Shutdown()
}

type pollSubscription struct {
	sched   gocron.Scheduler
	jobID   uuid.UUID
	once    sync.Once
	stopped atomic.Bool
}

func (s *pollSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		_ = s.sched.RemoveJob(s.jobID)
	})
}
