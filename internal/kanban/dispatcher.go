// Package kanban maps user actions on job cards to optimistic status
// changes and external triggers, and exposes them over HTTP.
package kanban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobmate/dashboard-service/internal/journal"
	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
	"jobmate/dashboard-service/internal/trigger"
)

// User actions.
const (
	ActionRefuse      = "REFUSE"
	ActionKeep        = "KEEP"
	ActionValidate    = "VALIDATE"
	ActionSaveDraft   = "SAVE_DRAFT"
	ActionRejectDraft = "REJECT_DRAFT"
	ActionMarkSent    = trigger.ActionMarkSent
	ActionSendEmail   = trigger.ActionSendEmail
)

// Actions lists the actions Dispatch understands.
var Actions = []string{
	ActionRefuse, ActionKeep, ActionValidate, ActionSaveDraft,
	ActionRejectDraft, ActionMarkSent, ActionSendEmail,
}

// BatchID is the job id sent with collection-wide triggers.
const BatchID = "batch"

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
)

// Jobs is the part of the job repository the dispatcher drives.
type Jobs interface {
	Find(id string) (model.JobRecord, bool)
	UpdateStatus(ctx context.Context, id string, status pipeline.Status, extra map[string]string, skipPersist bool) bool
	SaveDraft(ctx context.Context, id string, draft model.DraftContent) error
}

// Outcome reports what a dispatch did locally. Triggers run afterwards and
// report failures through notices.
type Outcome struct {
	Action  string `json:"action"`
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
	Warning string `json:"warning,omitempty"`
	Err     error  `json:"-"`
}

// ─── Options ────────────────────────────────────────────────────────────────

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of trigger workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize bounds the trigger queue.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithJournal records every dispatch.
func WithJournal(j journal.Journal) Option { return func(d *Dispatcher) { d.journal = j } }

// WithNotices sets the notice sink.
func WithNotices(n *Notices) Option { return func(d *Dispatcher) { d.notices = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.log = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// ─── Dispatcher ─────────────────────────────────────────────────────────────

// call is one trigger invocation.
type call struct {
	ctx     context.Context
	action  string
	id      string
	payload map[string]any
	// noticeKey is the user action the failure is reported under.
	noticeKey string
}

// Dispatcher executes user actions. Triggers issued by one dispatch run in
// issue order on a single worker.
type Dispatcher struct {
	jobs      Jobs
	trig      trigger.Trigger
	journal   journal.Journal
	notices   *Notices
	log       *slog.Logger
	now       func() time.Time
	workers   int
	queueSize int

	queue   chan []call
	workWG  sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the trigger workers. Call Close to stop them.
func NewDispatcher(jobs Jobs, trig trigger.Trigger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		jobs:      jobs,
		trig:      trig,
		journal:   journal.NewMemory(0),
		log:       slog.Default(),
		now:       time.Now,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
	}
	for _, o := range opts {
		o(d)
	}
	if d.notices == nil {
		d.notices = NewNotices(DefaultNoticeTTL, d.now)
	}
	d.queue = make(chan []call, d.queueSize)
	for range d.workers {
		d.workWG.Add(1)
		go d.work()
	}
	return d
}

// Notices returns the notice set failures are reported to.
func (d *Dispatcher) Notices() *Notices { return d.notices }

// Dispatch runs action for job id. payload is the action's JSON body; for
// VALIDATE and SAVE_DRAFT it is the draft {cv, lm, message}.
func (d *Dispatcher) Dispatch(ctx context.Context, action, id string, payload json.RawMessage) Outcome {
	out := d.dispatch(ctx, action, id, payload)
	d.record(ctx, out, payload)
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, action, id string, raw json.RawMessage) Outcome {
	out := Outcome{Action: action, ID: id}

	payload, err := decodePayload(raw)
	if err != nil {
		out.Err = &ValidationError{Msg: "payload must be a JSON object"}
		return out
	}

	switch action {
	case ActionRefuse, ActionRejectDraft:
		d.enqueue(ctx, action, call{action: action, id: id, payload: payload})
		out.Applied = d.jobs.UpdateStatus(ctx, id, pipeline.StatusDeclined, nil, false)

	case ActionKeep:
		// KEEP and ENRICH_JOB share one batch so they reach the worker in order.
		d.enqueue(ctx, action,
			call{action: action, id: id, payload: payload},
			call{action: trigger.ActionEnrichJob, id: id},
		)
		out.Applied = d.jobs.UpdateStatus(ctx, id, pipeline.StatusAwaitingReview, nil, false)

	case ActionValidate:
		draft, err := decodeDraft(raw)
		if err != nil {
			out.Err = err
			return out
		}
		if err := d.jobs.SaveDraft(ctx, id, draft); err != nil {
			d.notices.Raise(action, fmt.Sprintf("draft not saved, PDF generation skipped: %v", err))
			out.Err = err
			return out
		}
		// The worker reads the draft cells itself; it only needs the id.
		d.enqueue(ctx, action, call{action: trigger.ActionGeneratePDF, id: id, payload: map[string]any{}})
		out.Applied = d.jobs.UpdateStatus(ctx, id, pipeline.StatusAwaitingReview, nil, true)

	case ActionSaveDraft:
		draft, err := decodeDraft(raw)
		if err != nil {
			out.Err = err
			return out
		}
		d.enqueue(ctx, action, call{action: action, id: id, payload: payload})
		if err := d.jobs.SaveDraft(ctx, id, draft); err != nil {
			d.notices.Raise(action, fmt.Sprintf("draft not saved: %v", err))
			out.Err = err
			return out
		}
		out.Applied = true

	case ActionMarkSent, ActionSendEmail:
		d.enqueue(ctx, action, call{action: action, id: id, payload: payload})
		sentAt := d.now().UTC().Format(time.RFC3339)
		out.Applied = d.jobs.UpdateStatus(ctx, id, pipeline.StatusSent,
			map[string]string{model.FieldSentAt: sentAt}, false)

	default:
		out.Warning = fmt.Sprintf("unknown action %q", action)
		d.log.Warn("unknown action", "action", action, "id", id)
		return out
	}

	if !out.Applied && out.Err == nil {
		out.Warning = fmt.Sprintf("job %s not in collection", id)
	}
	return out
}

// Move performs a manual kanban move, validated against the transition
// graph, and persists it.
func (d *Dispatcher) Move(ctx context.Context, id, rawStatus string) (model.JobRecord, error) {
	to, err := pipeline.ParseStatus(rawStatus)
	if err != nil {
		return model.JobRecord{}, &ValidationError{Msg: err.Error()}
	}
	job, ok := d.jobs.Find(id)
	if !ok {
		return model.JobRecord{}, ErrNotFound
	}
	if !pipeline.IsTransitionAllowed(job.Status, to) {
		return model.JobRecord{}, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", job.Status, to),
		}
	}
	d.jobs.UpdateStatus(ctx, id, to, nil, false)
	d.record(ctx, Outcome{Action: "MOVE", ID: id, Applied: true}, nil)

	job, _ = d.jobs.Find(id)
	return job, nil
}

// RecalculateScores asks the worker to rescore the whole collection and
// waits for its acknowledgement.
func (d *Dispatcher) RecalculateScores(ctx context.Context) error {
	_, err := d.trig.Fire(ctx, trigger.ActionRecalculateScores, BatchID, nil)
	out := Outcome{Action: trigger.ActionRecalculateScores, ID: BatchID, Applied: err == nil, Err: err}
	if err != nil {
		d.notices.Raise(trigger.ActionRecalculateScores, fmt.Sprintf("score recalculation failed: %v", err))
	}
	d.record(ctx, out, nil)
	return err
}

func (d *Dispatcher) record(ctx context.Context, out Outcome, payload json.RawMessage) {
	e := journal.Entry{
		Action:  out.Action,
		JobID:   out.ID,
		Applied: out.Applied,
		Warning: out.Warning,
		Payload: payload,
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := d.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		d.log.Warn("journal record failed", "action", out.Action, "err", err)
	}
}

// ─── Trigger queue ──────────────────────────────────────────────────────────

func (d *Dispatcher) enqueue(ctx context.Context, noticeKey string, calls ...call) {
	detached := context.WithoutCancel(ctx)
	for i := range calls {
		calls[i].ctx = detached
		calls[i].noticeKey = noticeKey
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping triggers", "action", noticeKey)
		return
	}
	d.pending.Add(1)
	select {
	case d.queue <- calls:
	case <-ctx.Done():
		d.pending.Done()
		d.notices.Raise(noticeKey, "request cancelled before the trigger was queued")
	}
}

func (d *Dispatcher) work() {
	defer d.workWG.Done()
	for batch := range d.queue {
		for _, c := range batch {
			d.fire(c)
		}
		d.pending.Done()
	}
}

func (d *Dispatcher) fire(c call) {
	_, err := d.trig.Fire(c.ctx, c.action, c.id, c.payload)
	switch {
	case err == nil:
	case errors.Is(err, trigger.ErrNotConfigured):
		d.log.Debug("no webhook for action", "action", c.action)
	default:
		d.notices.Raise(c.noticeKey, fmt.Sprintf("%s failed: %v", c.action, err))
	}
}

// Drain waits until every queued trigger has run.
func (d *Dispatcher) Drain() { d.pending.Wait() }

// Close stops accepting triggers, runs the queued ones and stops the
// workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.workWG.Wait()
}

// ─── Payload decoding ───────────────────────────────────────────────────────

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeDraft(raw json.RawMessage) (model.DraftContent, error) {
	var draft model.DraftContent
	if len(raw) == 0 {
		return draft, nil
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		return draft, &ValidationError{Msg: "draft must be an object with cv, lm and message"}
	}
	return draft, nil
}

// ─── Errors ─────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a job is not in the collection.
var ErrNotFound = errors.New("job not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
