// Package scheduler runs the adaptive refresh loop: the job collection is
// re-fetched quickly while the external worker has jobs in flight, and
// slowly otherwise.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobmate/dashboard-service/internal/jobs"
)

// Default polling intervals.
const (
	DefaultFastInterval = 10 * time.Second
	DefaultSlowInterval = 60 * time.Second
)

// Fetcher is the part of the job repository the poller drives.
type Fetcher interface {
	Fetch(ctx context.Context, opts jobs.FetchOptions) error
	Pending() int
}

// Poller wraps robfig/cron with a single re-armable entry.
type Poller struct {
	cron *cron.Cron
	repo Fetcher
	log  *slog.Logger
	fast time.Duration
	slow time.Duration
	job  cron.Job

	mu       sync.Mutex
	ctx      context.Context
	entry    cron.EntryID
	interval time.Duration
	started  bool
	stopped  bool
	initial  sync.WaitGroup
}

// New creates a Poller. Non-positive intervals fall back to the defaults.
func New(repo Fetcher, fast, slow time.Duration, log *slog.Logger) *Poller {
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if slow <= 0 {
		slow = DefaultSlowInterval
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Poller{
		cron: cron.New(cron.WithLogger(cronLogger{log})),
		repo: repo,
		log:  log,
		fast: fast,
		slow: slow,
	}
	// One wrapped job shared by every entry, so a tick still running from
	// before a re-arm also blocks the next one.
	p.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{log})).Then(cron.FuncJob(p.tick))
	return p
}

// Interval returns the polling interval for the given number of in-flight
// jobs.
func (p *Poller) Interval(pending int) time.Duration {
	if pending > 0 {
		return p.fast
	}
	return p.slow
}

// Start registers the entry and starts the scheduler. Also runs one fetch
// immediately so the collection is populated without waiting for the first
// tick.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	p.started = true
	p.ctx = ctx
	p.rearmLocked(p.Interval(p.repo.Pending()), false)
	p.cron.Start()
	p.initial.Add(1)
	p.mu.Unlock()

	p.log.Info("poller started", "interval", p.CurrentInterval())

	// Run immediately on startup (non-blocking)
	go func() {
		defer p.initial.Done()
		p.job.Run()
	}()
	return nil
}

// Stop removes the entry and waits for a running fetch to finish. No fetch
// starts afterwards.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.entry != 0 {
		p.cron.Remove(p.entry)
		p.entry = 0
	}
	p.mu.Unlock()

	<-p.cron.Stop().Done()
	p.initial.Wait()
	p.log.Info("poller stopped")
}

// Rearm reschedules the entry when the interval for pending differs from
// the current one.
func (p *Poller) Rearm(pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return
	}
	p.rearmLocked(p.Interval(pending), false)
}

// Reset reschedules the entry unconditionally, so the next tick is a full
// interval for pending away.
func (p *Poller) Reset(pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return
	}
	p.rearmLocked(p.Interval(pending), true)
}

// OnChange is a jobs.Repository subscriber. Every material change of the
// collection restarts the timer.
func (p *Poller) OnChange(c jobs.Change) { p.Reset(c.Pending) }

// CurrentInterval returns the interval of the live entry, zero when none.
func (p *Poller) CurrentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entry == 0 {
		return 0
	}
	return p.interval
}

func (p *Poller) rearmLocked(iv time.Duration, force bool) {
	if !force && p.entry != 0 && iv == p.interval {
		return
	}
	if p.entry != 0 {
		p.cron.Remove(p.entry)
	}
	p.entry = p.cron.Schedule(cron.Every(iv), p.job)
	p.interval = iv
	p.log.Debug("poll interval set", "interval", iv)
}

func (p *Poller) tick() {
	p.mu.Lock()
	ctx, stopped := p.ctx, p.stopped
	p.mu.Unlock()
	if stopped || ctx.Err() != nil {
		return
	}

	err := p.repo.Fetch(ctx, jobs.FetchOptions{Silent: true})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrAuth):
		p.log.Debug("poll skipped, not authenticated")
	default:
		p.log.Warn("poll fetch failed", "err", err)
	}
	p.Rearm(p.repo.Pending())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, "err", err)...)
}
