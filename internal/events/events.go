// Package events publishes repository changes to Redis pub/sub so that
// other services (the gateway's SSE fan-out) can refresh their views.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/dashboard-service/internal/jobs"
)

// Channel names.
const (
	ChannelJobPatched    = "EVENT_JOB_PATCHED"
	ChannelJobsRefreshed = "EVENT_JOBS_REFRESHED"
	ChannelJobsCleared   = "EVENT_JOBS_CLEARED"
)

// Event is the published message body.
type Event struct {
	Type    string    `json:"type"`
	IDs     []string  `json:"ids,omitempty"`
	Size    int       `json:"size"`
	Pending int       `json:"pending"`
	At      time.Time `json:"at"`
}

// FromChange maps a repository change to its event.
func FromChange(c jobs.Change, now time.Time) Event {
	typ := ChannelJobsRefreshed
	switch c.Kind {
	case jobs.ChangePatched:
		typ = ChannelJobPatched
	case jobs.ChangeCleared:
		typ = ChannelJobsCleared
	}
	return Event{Type: typ, IDs: c.IDs, Size: c.Size, Pending: c.Pending, At: now.UTC()}
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Redis publishes each event on the channel named by its type.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Redis publisher.
func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	if err := r.rdb.Publish(ctx, ev.Type, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Forwarder relays repository changes to a Publisher off the notifying
// goroutine. Changes are dropped with a warning when the buffer is full.
type Forwarder struct {
	pub  Publisher
	ch   chan jobs.Change
	done chan struct{}
	log  *slog.Logger
	now  func() time.Time
}

// NewForwarder starts a forwarder with the given buffer size.
func NewForwarder(pub Publisher, buffer int, log *slog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	f := &Forwarder{
		pub:  pub,
		ch:   make(chan jobs.Change, buffer),
		done: make(chan struct{}),
		log:  log,
		now:  time.Now,
	}
	go f.run()
	return f
}

// Notify is a jobs.Repository subscriber.
func (f *Forwarder) Notify(c jobs.Change) {
	select {
	case f.ch <- c:
	default:
		f.log.Warn("event buffer full, dropping change", "kind", c.Kind)
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for c := range f.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := f.pub.Publish(ctx, FromChange(c, f.now())); err != nil {
			f.log.Warn("publish failed", "kind", c.Kind, "err", err)
		}
		cancel()
	}
}

// Close flushes buffered changes and stops the forwarder. Notify must not
// be called after Close.
func (f *Forwarder) Close() {
	close(f.ch)
	<-f.done
}
