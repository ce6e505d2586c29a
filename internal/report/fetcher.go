// Package report executes entity queries against the configured row store.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/query"
	"github.com/rpattn/reportengine/internal/repository"
)

// Fetcher builds and runs report queries.
type Fetcher struct {
	builder *query.Builder
	store   repository.RowStore
	log     *logrus.Entry
}

// NewFetcher wires a fetcher. A nil logger discards output.
func NewFetcher(builder *query.Builder, store repository.RowStore, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Fetcher{
		builder: builder,
		store:   store,
		log:     logger.WithField("module", "report"),
	}
}

// Fetch resolves key, builds its query and executes it exactly once. The
// returned definition is the one used to build the query.
func (f *Fetcher) Fetch(ctx context.Context, key string, payload domain.FilterPayload) ([]domain.Row, *domain.EntityDefinition, error) {
	built, err := f.builder.Build(key, payload)
	if err != nil {
		return nil, nil, err
	}
	return f.run(ctx, built)
}

// FetchFor runs the query for a definition the caller already resolved.
func (f *Fetcher) FetchFor(ctx context.Context, def *domain.EntityDefinition, payload domain.FilterPayload) ([]domain.Row, *domain.EntityDefinition, error) {
	built, err := f.builder.BuildFor(def, payload)
	if err != nil {
		return nil, nil, err
	}
	return f.run(ctx, built)
}

func (f *Fetcher) run(ctx context.Context, built domain.BuiltQuery) ([]domain.Row, *domain.EntityDefinition, error) {
	start := time.Now()
	rows, err := f.store.QueryRows(ctx, built.SQL, built.Args)
	if err != nil {
		f.log.WithError(err).WithFields(logrus.Fields{
			"entity": built.Def.Key,
			"args":   len(built.Args),
		}).Error("report query failed")
		return nil, nil, fmt.Errorf("%w: entity %q: %w", domain.ErrQueryExecutionFailed, built.Def.Key, err)
	}
	f.log.WithFields(logrus.Fields{
		"entity":   built.Def.Key,
		"rows":     len(rows),
		"duration": time.Since(start).String(),
	}).Debug("report query completed")
	return rows, built.Def, nil
}
