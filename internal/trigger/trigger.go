// Package trigger fires side-effect actions at the external automation
// worker. Firing is one-way: results come back through the spreadsheet.
package trigger

import (
	"context"
	"errors"
	"fmt"
)

// Action names understood by the worker.
const (
	ActionEnrichJob         = "ENRICH_JOB"
	ActionGeneratePDF       = "GENERATE_PDF"
	ActionMarkSent          = "MARK_SENT"
	ActionSendEmail         = "SEND_EMAIL"
	ActionRecalculateScores = "RECALCULATE_SCORES"
)

var (
	// ErrNotConfigured is returned when no URL is configured for an action.
	ErrNotConfigured = errors.New("trigger: no URL configured")
	// ErrPlaceholder is returned when the configured URL is a template
	// placeholder that was never filled in.
	ErrPlaceholder = errors.New("trigger: placeholder URL")
)

// Result is the worker's acknowledgement.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// Trigger fires an action for a job id with an optional payload.
type Trigger interface {
	Fire(ctx context.Context, action, id string, payload map[string]any) (Result, error)
}

// Error is a non-2xx response from the worker.
type Error struct {
	Action     string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("trigger %s: HTTP error %d", e.Action, e.StatusCode)
}

// Nop accepts every action without doing anything.
type Nop struct{}

func (Nop) Fire(context.Context, string, string, map[string]any) (Result, error) {
	return Result{Success: true}, nil
}
