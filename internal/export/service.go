// Package export turns report rows into delivery formats: HTML, PDF and XLSX.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/render"
	"github.com/rpattn/reportengine/internal/report"
)

// Renderer names reported in Artifact.Renderer.
const (
	RendererTemplate = "template"
	RendererChrome   = "chrome"
	RendererTable    = "table"
	RendererExcel    = "excel"
)

// HTMLPrinter produces PDF bytes from an HTML document.
type HTMLPrinter interface {
	HTMLToPDF(ctx context.Context, html string) ([]byte, error)
}

// TablePrinter produces PDF bytes from a projected table.
type TablePrinter interface {
	SimpleTablePDF(table domain.Table) ([]byte, error)
}

// EntityLookup resolves report definitions.
type EntityLookup interface {
	Lookup(key string) (*domain.EntityDefinition, error)
	Keys() []string
}

// Artifact is an exported document ready for delivery.
type Artifact struct {
	Filename    string
	ContentType string
	Format      Format
	Renderer    string
	Rows        int
	Data        []byte
}

// Request describes one export.
type Request struct {
	Entity  string
	Filters domain.FilterPayload
	Format  Format
}

// Service runs the fetch, render and export steps for one request at a time.
// It keeps no per-request state and is safe for concurrent use.
type Service struct {
	entities EntityLookup
	fetcher  *report.Fetcher
	renderer *render.Renderer
	primary  HTMLPrinter
	fallback TablePrinter
	now      func() time.Time
	log      *logrus.Entry
}

// Option customizes a Service.
type Option func(*Service)

// WithPrimaryPDF sets the browser based PDF printer.
func WithPrimaryPDF(p HTMLPrinter) Option {
	return func(s *Service) {
		s.primary = p
	}
}

// WithFallbackPDF sets the printer used when the primary one is unavailable.
func WithFallbackPDF(p TablePrinter) Option {
	return func(s *Service) {
		s.fallback = p
	}
}

// WithClock overrides the clock used for filenames.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger.WithField("module", "export")
		}
	}
}

// NewService wires the export pipeline.
func NewService(entities EntityLookup, fetcher *report.Fetcher, renderer *render.Renderer, opts ...Option) *Service {
	silent := logrus.New()
	silent.SetLevel(logrus.PanicLevel)
	service := &Service{
		entities: entities,
		fetcher:  fetcher,
		renderer: renderer,
		now:      time.Now,
		log:      silent.WithField("module", "export"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Definition returns the definition registered under key.
func (s *Service) Definition(key string) (*domain.EntityDefinition, error) {
	return s.entities.Lookup(key)
}

// Definitions returns every registered definition in key order.
func (s *Service) Definitions() []*domain.EntityDefinition {
	keys := s.entities.Keys()
	defs := make([]*domain.EntityDefinition, 0, len(keys))
	for _, key := range keys {
		if def, err := s.entities.Lookup(key); err == nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// Export fetches the report rows and encodes them in req.Format.
func (s *Service) Export(ctx context.Context, req Request) (Artifact, error) {
	def, err := s.entities.Lookup(req.Entity)
	if err != nil {
		return Artifact{}, err
	}
	rows, def, err := s.fetcher.FetchFor(ctx, def, req.Filters)
	if err != nil {
		return Artifact{}, err
	}

	artifact := Artifact{
		Filename:    SafeFilename(def.Title, req.Format, s.now()),
		ContentType: req.Format.ContentType(),
		Format:      req.Format,
		Rows:        len(rows),
	}
	switch req.Format {
	case FormatHTML:
		html, err := s.renderer.Render(def, rows, req.Filters)
		if err != nil {
			return Artifact{}, err
		}
		artifact.Data = []byte(html)
		artifact.Renderer = RendererTemplate
	case FormatXLSX:
		data, err := ToWorkbookBuffer(domain.TableFor(def, rows))
		if err != nil {
			return Artifact{}, err
		}
		artifact.Data = data
		artifact.Renderer = RendererExcel
	case FormatPDF:
		data, renderer, err := s.pdf(ctx, def, rows, req.Filters)
		if err != nil {
			return Artifact{}, err
		}
		artifact.Data = data
		artifact.Renderer = renderer
	default:
		return Artifact{}, fmt.Errorf("unsupported export format %q", req.Format)
	}

	s.log.WithFields(logrus.Fields{
		"entity":   def.Key,
		"format":   req.Format,
		"renderer": artifact.Renderer,
		"rows":     artifact.Rows,
		"bytes":    len(artifact.Data),
	}).Info("report exported")
	return artifact, nil
}

// pdf tries the browser printer first and falls back to the table printer
// with the same rows when the browser is unavailable.
func (s *Service) pdf(ctx context.Context, def *domain.EntityDefinition, rows []domain.Row, filters domain.FilterPayload) ([]byte, string, error) {
	primaryErr := fmt.Errorf("%w: no browser printer configured", domain.ErrRenderingEngineUnavailable)
	if s.primary != nil {
		html, err := s.renderer.Render(def, rows, filters)
		if err != nil {
			return nil, "", err
		}
		data, err := s.primary.HTMLToPDF(ctx, html)
		if err == nil {
			return data, RendererChrome, nil
		}
		if !errors.Is(err, domain.ErrRenderingEngineUnavailable) {
			return nil, "", err
		}
		primaryErr = err
	}
	if s.fallback == nil {
		return nil, "", primaryErr
	}
	s.log.WithError(primaryErr).WithField("entity", def.Key).Warn("browser pdf unavailable, using table renderer")
	data, err := s.fallback.SimpleTablePDF(domain.TableFor(def, rows))
	if err != nil {
		return nil, "", err
	}
	return data, RendererTable, nil
}
