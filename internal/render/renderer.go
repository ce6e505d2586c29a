// Package render projects report rows into an HTML document.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"time"

	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/query"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

const generatedLayout = "02/01/2006 15:04:05"

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

type header struct {
	Label string
	Width string
}

type filterEcho struct {
	Name  string
	Value string
}

type document struct {
	Title       string
	GeneratedAt string
	RowCount    int
	Filters     []filterEcho
	Headers     []header
	Rows        [][]string
}

// Renderer fills the report template. It holds no per-request state.
type Renderer struct {
	loc *time.Location
	now func() time.Time
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithLocation sets the time zone for the generation timestamp.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock overrides the clock used for the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer returns a renderer using the shared compiled template.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render projects rows through def's columns and returns the HTML document.
// It echoes the supplied filters and the generation time.
func (r *Renderer) Render(def *domain.EntityDefinition, rows []domain.Row, payload domain.FilterPayload) (string, error) {
	doc := document{
		Title:       def.Title,
		GeneratedAt: r.now().In(r.loc).Format(generatedLayout),
		RowCount:    len(rows),
		Filters:     echoFilters(def, payload),
		Headers:     headers(def.Table),
		Rows:        make([][]string, 0, len(rows)),
	}
	for _, cells := range def.Table.Project(rows) {
		text := make([]string, len(cells))
		for i, cell := range cells {
			text[i] = domain.DisplayString(cell)
		}
		doc.Rows = append(doc.Rows, text)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("%w: render %q: %w", domain.ErrExportEncodingFailed, def.Key, err)
	}
	return buf.String(), nil
}

func headers(layout domain.TableLayout) []header {
	total := 0.0
	for _, w := range layout.Widths {
		if w > 0 {
			total += w
		}
	}
	out := make([]header, len(layout.Headers))
	for i, label := range layout.Headers {
		share := 100.0 / float64(len(layout.Headers))
		if total > 0 && layout.Widths[i] > 0 {
			share = layout.Widths[i] / total * 100
		}
		out[i] = header{Label: label, Width: strconv.FormatFloat(share, 'f', 2, 64)}
	}
	return out
}

// echoFilters lists the supplied values of declared filters, sorted by name.
func echoFilters(def *domain.EntityDefinition, payload domain.FilterPayload) []filterEcho {
	names := make([]string, 0, len(payload))
	for name, value := range payload {
		if _, declared := def.Filter(name); !declared {
			continue
		}
		if query.Supplied(value, true) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]filterEcho, len(names))
	for i, name := range names {
		out[i] = filterEcho{Name: name, Value: domain.DisplayString(payload[name])}
	}
	return out
}
