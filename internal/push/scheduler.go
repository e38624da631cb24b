package push

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
)

// passTimeout bounds one full scheduled sync pass.
const passTimeout = 5 * time.Minute

// AllSyncer runs a full account pass. Satisfied by *engine.Engine.
type AllSyncer interface {
	SyncAll(ctx context.Context, account *model.Account) error
}

// Scheduler syncs an account on a fixed interval, for accounts that opt
// out of push. Trigger forces an immediate pass between ticks.
type Scheduler struct {
	syncer  AllSyncer
	log     *logrus.Logger
	account *model.Account

	interval  time.Duration
	triggerCh chan struct{}

	mu     gosync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewScheduler builds a stopped scheduler for the account.
func NewScheduler(syncer AllSyncer, account *model.Account, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	interval := time.Duration(account.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		syncer:    syncer,
		log:       log,
		account:   account,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the interval loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopCh = stop
	s.done = done

	go s.loop(stop, done)
}

// Stop halts the loop, waiting for any in-progress pass to finish. A
// stopped scheduler can be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopCh, s.done
	s.stopCh = nil
	s.done = nil
	s.mu.Unlock()

	close(stop)
	<-done
}

// Trigger requests an immediate pass without waiting for the next tick.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial pass right away.
	s.pass()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pass()
		case <-s.triggerCh:
			s.pass()
		}
	}
}

func (s *Scheduler) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	if err := s.syncer.SyncAll(ctx, s.account); err != nil {
		s.log.WithField("account", s.account.ID).WithError(err).Warn("scheduled sync failed")
	}
}
