package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
)

// DefaultSweepInterval is how often stale entries are evicted.
const DefaultSweepInterval = time.Minute

// Sweeper periodically evicts stale rate limit entries and runs any extra
// maintenance jobs registered with it. It is independent of request traffic.
type Sweeper struct {
	interval time.Duration
	cron     *cron.Cron

	mu       sync.Mutex
	profiles []*Profiles
	jobs     []func()
	running  bool
	entry    cron.EntryID
}

// NewSweeper creates a stopped sweeper for the given profiles.
func NewSweeper(interval time.Duration, profiles ...*Profiles) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		interval: interval,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		profiles: profiles,
	}
}

// AddJob registers fn to run on every sweep tick after store eviction.
func (s *Sweeper) AddJob(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, fn)
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.RunOnce)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.running = true
	logger.Component("ratelimit").WithField("interval", s.interval.String()).Info("rate limit sweeper started")
	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep or ctx expiry.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cron.Remove(s.entry)
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep synchronously.
func (s *Sweeper) RunOnce() {
	s.mu.Lock()
	profiles := append([]*Profiles(nil), s.profiles...)
	jobs := append([]func(){}, s.jobs...)
	s.mu.Unlock()

	removed := 0
	for _, p := range profiles {
		p.Each(func(l *Limiter) {
			removed += l.Store().Sweep()
			metrics.SetEntries(l.Name(), l.Store().Len())
		})
	}
	for _, job := range jobs {
		job()
	}
	if removed > 0 {
		logger.Component("ratelimit").WithField("removed", removed).Debug("swept stale rate limit entries")
	}
}
