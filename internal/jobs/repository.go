// Package jobs owns the in-memory job collection and reconciles it with the
// spreadsheet. State is two-tier: the last fetched snapshot, plus optimistic
// patches that are overlaid on reads until a later fetch supersedes them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
	"jobmate/dashboard-service/internal/sheets"
)

const (
	defaultWriteTimeout = 30 * time.Second
	fetchKey            = "fetch"
)

// Credential is the session the repository checks before reading and clears
// when the store rejects it.
type Credential interface {
	Authenticated() bool
	Clear(ctx context.Context) error
}

// FetchOptions tunes a single fetch.
type FetchOptions struct {
	// Silent fetches do not raise the loading flag.
	Silent bool
}

// ChangeKind tells subscribers why the collection changed.
type ChangeKind string

const (
	ChangeRefreshed ChangeKind = "refreshed"
	ChangePatched   ChangeKind = "patched"
	ChangeCleared   ChangeKind = "cleared"
)

// Change is delivered to subscribers whenever the collection size or any
// job status changes.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	IDs     []string   `json:"ids,omitempty"`
	Size    int        `json:"size"`
	Pending int        `json:"pending"`
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(r *Repository) { r.log = l } }

// WithPatchTTL stops overlaying patches older than ttl. Zero keeps them
// until a fetch supersedes them.
func WithPatchTTL(ttl time.Duration) Option { return func(r *Repository) { r.patchTTL = ttl } }

// WithWriteTimeout bounds each fire-and-forget write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Repository) { r.now = now } }

// Repository is safe for concurrent use.
type Repository struct {
	store        sheets.Store
	cred         Credential
	log          *slog.Logger
	patchTTL     time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	snapshot  []model.JobRecord
	index     map[string]int
	settings  model.Settings
	patches   patchSet
	seq       uint64
	epoch     uint64 // bumped by Logout
	loading   int
	lastErr   error
	lastFetch time.Time

	flight singleflight.Group
	writes sync.WaitGroup

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// New returns an empty repository reading and writing through store.
func New(store sheets.Store, cred Credential, opts ...Option) *Repository {
	r := &Repository{
		store:        store,
		cred:         cred,
		log:          slog.Default(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		index:        map[string]int{},
		patches:      patchSet{},
		subs:         map[int]func(Change){},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Fetch replaces the snapshot and settings with a fresh batch read.
// Concurrent calls share one read.
func (r *Repository) Fetch(ctx context.Context, opts FetchOptions) error {
	if !opts.Silent {
		r.mu.Lock()
		r.loading++
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			r.loading--
			r.mu.Unlock()
		}()
	}
	_, err, _ := r.flight.Do(fetchKey, func() (any, error) {
		return nil, r.fetch(ctx)
	})
	return err
}

func (r *Repository) fetch(ctx context.Context) error {
	if r.cred != nil && !r.cred.Authenticated() {
		return ErrAuth
	}

	r.mu.RLock()
	startSeq, epoch := r.seq, r.epoch
	r.mu.RUnlock()

	ranges, err := r.store.BatchRead(ctx, model.FetchRanges)
	if err != nil {
		if errors.Is(err, sheets.ErrUnauthorized) {
			r.log.Warn("credential rejected, logging out", "error", err)
			r.Logout(ctx)
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return r.fetchFailed(&FetchError{Err: err})
	}
	if len(ranges) != len(model.FetchRanges) {
		return r.fetchFailed(&FetchError{
			Err: fmt.Errorf("batch read returned %d ranges, want %d", len(ranges), len(model.FetchRanges)),
		})
	}

	records := model.ParseJobRows(ranges[0])
	settings := model.ParseSettings(ranges[1], ranges[2], ranges[3], ranges[4])

	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		r.log.Debug("discarding read started before logout")
		return ErrAuth
	}
	before := r.statusesLocked()
	r.snapshot = records
	r.index = make(map[string]int, len(records))
	for i, rec := range records {
		r.index[rec.ID] = i
	}
	r.settings = settings
	r.patches.supersede(startSeq)
	r.patches.expire(r.now(), r.patchTTL)
	r.lastErr = nil
	r.lastFetch = r.now()
	after := r.statusesLocked()
	change := Change{Kind: ChangeRefreshed, Size: len(after), Pending: pendingOf(after)}
	r.mu.Unlock()

	r.log.Debug("fetched jobs", "count", len(records), "filters", len(settings.Filters))
	if materialChange(before, after) {
		r.notify(change)
	}
	return nil
}

func (r *Repository) fetchFailed(err *FetchError) error {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.log.Error("fetch failed", "error", err.Err)
	return err
}

// Logout clears the credential and the collection.
func (r *Repository) Logout(ctx context.Context) {
	if r.cred != nil {
		if err := r.cred.Clear(ctx); err != nil {
			r.log.Warn("clear credential", "error", err)
		}
	}
	r.mu.Lock()
	r.epoch++
	hadJobs := len(r.snapshot) > 0
	r.snapshot = nil
	r.index = map[string]int{}
	r.settings = model.Settings{}
	r.patches = patchSet{}
	r.mu.Unlock()

	if hadJobs {
		r.notify(Change{Kind: ChangeCleared})
	}
}

// UpdateStatus optimistically sets the status of a job, merging extra
// fields, and unless skipPersist is set writes the status cell in the
// background. Write failures are logged, never rolled back. It reports
// false when id is unknown.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status pipeline.Status, extra map[string]string, skipPersist bool) bool {
	r.mu.Lock()
	i, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	row := r.snapshot[i].RowPosition
	prev := r.viewLocked(i).Status
	r.seq++
	r.patches.add(id, patch{seq: r.seq, at: r.now(), status: status, fields: extra})
	statuses := r.statusesLocked()
	r.mu.Unlock()

	if prev != status {
		r.notify(Change{Kind: ChangePatched, IDs: []string{id}, Size: len(statuses), Pending: pendingOf(statuses)})
	}
	if !skipPersist {
		r.persist(ctx, "update status", model.StatusCell(row), [][]string{{string(status)}})
	}
	return true
}

// persist writes in the background, detached from ctx cancellation but
// bounded by the write timeout.
func (r *Repository) persist(ctx context.Context, op, rng string, rows [][]string) {
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
		defer cancel()
		if err := r.store.Write(wctx, rng, rows); err != nil {
			r.log.Error("persist failed", "error", &WriteError{Op: op, Range: rng, Err: err})
		}
	}()
}

// SaveDraft patches the draft of a job and writes its three cells,
// waiting for the write.
func (r *Repository) SaveDraft(ctx context.Context, id string, draft model.DraftContent) error {
	cells := draft.Cells()

	r.mu.Lock()
	i, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := r.snapshot[i].RowPosition
	r.seq++
	r.patches.add(id, patch{seq: r.seq, at: r.now(), draft: cells})
	r.mu.Unlock()

	rng := model.DraftRange(row)
	if err := r.store.Write(ctx, rng, [][]string{cells}); err != nil {
		werr := &WriteError{Op: "save draft", Range: rng, Err: err}
		r.log.Error("persist failed", "error", werr)
		return werr
	}
	return nil
}

// UpdateRange writes rows at rng then refreshes. The refresh runs only when
// the write succeeds.
func (r *Repository) UpdateRange(ctx context.Context, rng string, rows [][]string) error {
	if err := r.store.Write(ctx, rng, rows); err != nil {
		werr := &WriteError{Op: "update range", Range: rng, Err: err}
		r.log.Error("persist failed", "error", werr)
		return werr
	}
	return r.Fetch(ctx, FetchOptions{})
}

// AppendRow appends row to table then refreshes.
func (r *Repository) AppendRow(ctx context.Context, table string, row []string) error {
	if err := r.store.Append(ctx, table, row); err != nil {
		werr := &WriteError{Op: "append row", Range: table, Err: err}
		r.log.Error("persist failed", "error", werr)
		return werr
	}
	return r.Fetch(ctx, FetchOptions{})
}

// Drain waits for outstanding background writes.
func (r *Repository) Drain() { r.writes.Wait() }

// Subscribe registers fn for change notifications and returns a function
// that unregisters it. fn runs on the goroutine that made the change and
// must not call back into Fetch.
func (r *Repository) Subscribe(fn func(Change)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Repository) notify(c Change) {
	r.subMu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Jobs returns the collection in row order with patches overlaid.
func (r *Repository) Jobs() []model.JobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.JobRecord, len(r.snapshot))
	for i := range r.snapshot {
		out[i] = r.viewLocked(i)
	}
	return out
}

// Find returns the job with the given id.
func (r *Repository) Find(id string) (model.JobRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return model.JobRecord{}, false
	}
	return r.viewLocked(i), true
}

// Settings returns the last fetched configuration tables.
func (r *Repository) Settings() model.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Counts returns the number of jobs per status.
func (r *Repository) Counts() map[pipeline.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[pipeline.Status]int, len(pipeline.Statuses))
	for _, s := range r.statusesLocked() {
		counts[s]++
	}
	return counts
}

// Pending returns the number of jobs an external worker is processing.
func (r *Repository) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pendingOf(r.statusesLocked())
}

// Loading reports whether a non-silent fetch is running.
func (r *Repository) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading > 0
}

// LastError returns the error of the last failed fetch, cleared by the next
// successful one.
func (r *Repository) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// LastFetch returns the time of the last successful fetch.
func (r *Repository) LastFetch() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastFetch
}

func (r *Repository) viewLocked(i int) model.JobRecord {
	return r.patches.overlay(r.snapshot[i], r.now(), r.patchTTL)
}

// statusesLocked maps each id to its visible status.
func (r *Repository) statusesLocked() map[string]pipeline.Status {
	out := make(map[string]pipeline.Status, len(r.snapshot))
	for i := range r.snapshot {
		out[r.snapshot[i].ID] = r.viewLocked(i).Status
	}
	return out
}

func pendingOf(statuses map[string]pipeline.Status) int {
	n := 0
	for _, s := range statuses {
		if pipeline.IsInFlight(s) {
			n++
		}
	}
	return n
}

func materialChange(before, after map[string]pipeline.Status) bool {
	if len(before) != len(after) {
		return true
	}
	for id, s := range after {
		if prev, ok := before[id]; !ok || prev != s {
			return true
		}
	}
	return false
}
