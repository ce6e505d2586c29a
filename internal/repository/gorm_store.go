package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/rpattn/reportengine/internal/domain"
)

// gormRowStore implements RowStore on a gorm connection (MySQL deployments)
type gormRowStore struct {
	db *gorm.DB
}

// NewGormRowStore creates a row store backed by gorm.
func NewGormRowStore(db *gorm.DB) RowStore {
	return &gormRowStore{db: db}
}

// QueryRows runs sql once through gorm's raw interface.
func (s *gormRowStore) QueryRows(ctx context.Context, sql string, args []any) ([]domain.Row, error) {
	rows, err := s.db.WithContext(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to execute report query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read report columns: %w", err)
	}

	records := make([]domain.Row, 0)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		record := make(domain.Row, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	return records, nil
}

// Ping checks the underlying database/sql pool.
func (s *gormRowStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
