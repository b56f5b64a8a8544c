// Package sheets is the record store adapter: batch range reads, single
// range writes and row appends against the backing spreadsheet. It holds no
// business rules.
package sheets

import (
	"context"
	"errors"
)

// Store is the narrow read/write contract the repository depends on.
type Store interface {
	// BatchRead returns one row set per requested range, in request order.
	BatchRead(ctx context.Context, ranges []string) ([][][]string, error)
	// Write overwrites the cells of rng with rows.
	Write(ctx context.Context, rng string, rows [][]string) error
	// Append inserts row after the last data row of table.
	Append(ctx context.Context, table string, row []string) error
}

// ErrUnauthorized is returned when the store rejects the bearer credential
// (HTTP 401/403) or no credential is available.
var ErrUnauthorized = errors.New("sheets: credential rejected")
