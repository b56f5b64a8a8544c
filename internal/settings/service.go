// Package settings edits the scoring rules of the Config_Filtres table.
package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"jobmate/dashboard-service/internal/model"
)

// filterColumns is the width of a Config_Filtres row (A..G).
const filterColumns = 7

// deletePadding is the number of blank rows written after the shifted table
// so stale rows at the bottom are overwritten.
const deletePadding = 3

// ErrNoRule is returned for an index that does not address a rule row.
var ErrNoRule = errors.New("no filter rule at index")

// ValidationError lists the rule fields that failed validation.
type ValidationError struct{ Fields []string }

func (e *ValidationError) Error() string {
	return "invalid filter rule: " + strings.Join(e.Fields, ", ")
}

// Store is the part of the job repository the service writes through.
type Store interface {
	Settings() model.Settings
	UpdateRange(ctx context.Context, rng string, rows [][]string) error
	AppendRow(ctx context.Context, table string, row []string) error
}

// Service is safe for concurrent use as long as its Store is.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

// New returns a Service over store. now defaults to time.Now.
func New(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, validate: validator.New(), now: now}
}

// Snapshot returns the last fetched settings.
func (s *Service) Snapshot() model.Settings { return s.store.Settings() }

// UpdateFilter rewrites the rule at index. Columns A..F are written; the
// creation date in G is left as is unless rule carries one.
func (s *Service) UpdateFilter(ctx context.Context, index int, rule model.FilterRule) error {
	if err := s.check(rule); err != nil {
		return err
	}
	if _, err := s.row(index); err != nil {
		return err
	}
	return s.store.UpdateRange(ctx, model.FilterRowRange(index), [][]string{model.FilterRuleRow(rule)})
}

// AddFilter appends an active rule dated today (dd/mm/yyyy).
func (s *Service) AddFilter(ctx context.Context, rule model.FilterRule) error {
	if err := s.check(rule); err != nil {
		return err
	}
	rule.Active = true
	rule.Created = s.now().Format("02/01/2006")
	return s.store.AppendRow(ctx, model.FiltersTable, model.FilterRuleRow(rule))
}

// DeleteFilter removes the rule at index by rewriting the table from its
// first data row with the remaining rows shifted up.
func (s *Service) DeleteFilter(ctx context.Context, index int) error {
	rows, err := s.row(index)
	if err != nil {
		return err
	}
	rows = slices.Delete(slices.Clone(rows), index, index+1)
	for range deletePadding {
		rows = append(rows, make([]string, filterColumns))
	}
	return s.store.UpdateRange(ctx, model.FilterTableStart, rows)
}

// row checks index against the raw table and returns the rows.
func (s *Service) row(index int) ([][]string, error) {
	rows := s.store.Settings().FilterRows
	if index < 0 || index >= len(rows) {
		return nil, fmt.Errorf("%w %d", ErrNoRule, index)
	}
	for _, r := range s.store.Settings().Filters {
		if r.Index == index {
			return rows, nil
		}
	}
	// Index addresses the header row.
	return nil, fmt.Errorf("%w %d", ErrNoRule, index)
}

func (s *Service) check(rule model.FilterRule) error {
	err := s.validate.Struct(rule)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
		}
		return &ValidationError{Fields: fields}
	}
	return err
}
