package repository

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/reportengine/internal/domain"
)

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxPinger interface {
	Ping(ctx context.Context) error
}

// pgxRowStore implements RowStore on a pgx pool
type pgxRowStore struct {
	pool pgxQuerier
}

// NewPgxRowStore creates a row store backed by a pgx pool or connection.
func NewPgxRowStore(pool pgxQuerier) RowStore {
	return &pgxRowStore{pool: pool}
}

// QueryRows runs sql once and collects every row as a column name map.
func (s *pgxRowStore) QueryRows(ctx context.Context, sql string, args []any) ([]domain.Row, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute report query: %w", err)
	}
	records, err := pgx.CollectRows(rows, collectRow)
	if err != nil {
		return nil, fmt.Errorf("failed to read report rows: %w", err)
	}
	return records, nil
}

// Ping checks the pool when it supports it.
func (s *pgxRowStore) Ping(ctx context.Context) error {
	if p, ok := s.pool.(pgxPinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func collectRow(row pgx.CollectableRow) (domain.Row, error) {
	values, err := row.Values()
	if err != nil {
		return nil, err
	}
	return buildRow(row.FieldDescriptions(), values), nil
}

func buildRow(fields []pgconn.FieldDescription, values []any) domain.Row {
	record := make(domain.Row, len(fields))
	for i, field := range fields {
		if i >= len(values) {
			break
		}
		record[field.Name] = normalizeValue(values[i])
	}
	return record
}

// normalizeValue converts driver specific types into plain Go values so
// column functions can work across stores.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		return string(v)
	case driver.Valuer:
		plain, err := v.Value()
		if err != nil {
			return domain.DisplayString(v)
		}
		if b, ok := plain.([]byte); ok {
			return string(b)
		}
		return plain
	default:
		return v
	}
}
