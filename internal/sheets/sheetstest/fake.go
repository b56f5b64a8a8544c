// Package sheetstest provides an in-memory sheets.Store for tests.
package sheetstest

import (
	"context"
	"slices"
	"sync"

	"jobmate/dashboard-service/internal/model"
)

// Call is one recorded write or append.
type Call struct {
	Op    string // "write" or "append"
	Range string
	Rows  [][]string
}

// Fake serves canned ranges and records writes. The zero value is not
// usable; call New.
type Fake struct {
	mu     sync.Mutex
	ranges map[string][][]string
	calls  []Call
	reads  int

	// ReadErr, WriteErr and AppendErr, when set, are returned by the
	// corresponding operation.
	ReadErr   error
	WriteErr  error
	AppendErr error

	// BeforeRead, when set, runs inside BatchRead before the ranges are
	// copied. Tests use it to hold a fetch open.
	BeforeRead func()

	// OnCall, when set, is invoked for each recorded call.
	OnCall func(Call)
}

// New returns a Fake with empty ranges.
func New() *Fake {
	return &Fake{ranges: map[string][][]string{}}
}

// SetJobs replaces the Annonces range.
func (f *Fake) SetJobs(rows ...[]string) {
	f.Set(model.FetchRanges[0], rows)
}

// Set replaces the rows served for rng.
func (f *Fake) Set(rng string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges[rng] = rows
}

// BatchRead implements sheets.Store.
func (f *Fake) BatchRead(ctx context.Context, ranges []string) ([][][]string, error) {
	if f.BeforeRead != nil {
		f.BeforeRead()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	out := make([][][]string, len(ranges))
	for i, r := range ranges {
		out[i] = slices.Clone(f.ranges[r])
	}
	return out, nil
}

// Write implements sheets.Store.
func (f *Fake) Write(ctx context.Context, rng string, rows [][]string) error {
	return f.record(Call{Op: "write", Range: rng, Rows: rows}, f.WriteErr)
}

// Append implements sheets.Store.
func (f *Fake) Append(ctx context.Context, table string, row []string) error {
	return f.record(Call{Op: "append", Range: table, Rows: [][]string{row}}, f.AppendErr)
}

func (f *Fake) record(c Call, err error) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.OnCall
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

// Calls returns the recorded writes and appends in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Reads returns the number of BatchRead calls.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// JobRow builds an Annonces row with id and status set at their columns.
func JobRow(id, status string) []string {
	row := make([]string, model.JobColumns.CombinedPDFURL+1)
	row[model.JobColumns.ID] = id
	row[model.JobColumns.Status] = status
	return row
}
