package repository

import (
	"context"

	"github.com/rpattn/reportengine/internal/domain"
)

// RowStore executes a read-only parameterized query and returns every row.
type RowStore interface {
	QueryRows(ctx context.Context, sql string, args []any) ([]domain.Row, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
