package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/query"
	"github.com/rpattn/reportengine/internal/registry"
	"github.com/rpattn/reportengine/internal/render"
	"github.com/rpattn/reportengine/internal/report"
	"github.com/rpattn/reportengine/internal/repository"
)

type stubStore struct {
	rows  []domain.Row
	err   error
	calls int
}

func (s *stubStore) QueryRows(ctx context.Context, sql string, args []any) ([]domain.Row, error) {
	s.calls++
	return s.rows, s.err
}

type stubPrinter struct {
	data  []byte
	err   error
	calls int
	html  string
}

func (p *stubPrinter) HTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	p.calls++
	p.html = html
	return p.data, p.err
}

type recordingTablePrinter struct {
	inner *TablePDF
	table domain.Table
	calls int
}

func (p *recordingTablePrinter) SimpleTablePDF(table domain.Table) ([]byte, error) {
	p.calls++
	p.table = table
	return p.inner.SimpleTablePDF(table)
}

var fixedNow = time.Date(2024, 1, 31, 22, 15, 7, 0, time.UTC)

func logRows(n int) []domain.Row {
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{
			"created_at": fixedNow.Add(-time.Duration(i) * time.Hour),
			"user_name":  "דנה",
			"action":     "login",
			"subject":    "auth",
			"details":    "דוח",
		}
	}
	return rows
}

func newTestService(t *testing.T, store repository.RowStore, opts ...Option) *Service {
	t.Helper()
	reg, err := registry.Default(time.UTC)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	fetcher := report.NewFetcher(query.NewBuilder(reg, query.Postgres), store, nil)
	renderer := render.NewRenderer(render.WithClock(func() time.Time { return fixedNow }))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(reg, fetcher, renderer, opts...)
}

func TestExport_HTML(t *testing.T) {
	store := &stubStore{rows: logRows(2)}
	artifact, err := newTestService(t, store).Export(context.Background(), Request{
		Entity:  "logs",
		Filters: domain.FilterPayload{"subject": "auth"},
		Format:  FormatHTML,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Renderer != RendererTemplate || artifact.Rows != 2 {
		t.Fatalf("unexpected artifact metadata: %+v", artifact)
	}
	if !strings.HasSuffix(artifact.Filename, "_2024-02-01_00-15-07.html") {
		t.Fatalf("unexpected filename %q", artifact.Filename)
	}
	if !strings.Contains(string(artifact.Data), "דנה") {
		t.Fatalf("rendered document missing row data")
	}
}

func TestExport_Workbook(t *testing.T) {
	store := &stubStore{rows: logRows(3)}
	artifact, err := newTestService(t, store).Export(context.Background(), Request{Entity: "logs", Format: FormatXLSX})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.ContentType != FormatXLSX.ContentType() || !strings.HasSuffix(artifact.Filename, ".xlsx") {
		t.Fatalf("unexpected artifact: %s %s", artifact.ContentType, artifact.Filename)
	}
	f, err := excelize.OpenReader(bytes.NewReader(artifact.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(workbookSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3+3 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}
}

func TestExport_PDFPrefersBrowser(t *testing.T) {
	primary := &stubPrinter{data: []byte("%PDF-chrome")}
	fallback := &recordingTablePrinter{inner: newTestTablePDF(t, nil)}
	svc := newTestService(t, &stubStore{rows: logRows(1)}, WithPrimaryPDF(primary), WithFallbackPDF(fallback))

	artifact, err := svc.Export(context.Background(), Request{Entity: "logs", Format: FormatPDF})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Renderer != RendererChrome || fallback.calls != 0 {
		t.Fatalf("expected browser path only, renderer=%s fallback calls=%d", artifact.Renderer, fallback.calls)
	}
	if !strings.Contains(primary.html, "<table") {
		t.Fatalf("browser printer did not receive the rendered document")
	}
}

func TestExport_PDFFallsBackWhenBrowserUnavailable(t *testing.T) {
	primary := &stubPrinter{err: domain.ErrRenderingEngineUnavailable}
	fallback := &recordingTablePrinter{inner: newTestTablePDF(t, nil)}
	store := &stubStore{rows: logRows(4)}
	svc := newTestService(t, store, WithPrimaryPDF(primary), WithFallbackPDF(fallback))

	artifact, err := svc.Export(context.Background(), Request{Entity: "logs", Format: FormatPDF})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Renderer != RendererTable {
		t.Fatalf("expected table renderer, got %s", artifact.Renderer)
	}
	if !bytes.HasPrefix(artifact.Data, []byte("%PDF-")) {
		t.Fatalf("fallback did not produce a PDF")
	}
	if store.calls != 1 {
		t.Fatalf("expected rows fetched once, got %d", store.calls)
	}
	if len(fallback.table.Rows) != 4 || fallback.table.Title != "דוח יומן פעילות" {
		t.Fatalf("fallback received unexpected table: %d rows, title %q", len(fallback.table.Rows), fallback.table.Title)
	}
}

func TestExport_PDFDoesNotFallBackOnOtherErrors(t *testing.T) {
	boom := errors.New("printer exploded")
	fallback := &recordingTablePrinter{inner: newTestTablePDF(t, nil)}
	svc := newTestService(t, &stubStore{}, WithPrimaryPDF(&stubPrinter{err: boom}), WithFallbackPDF(fallback))

	_, err := svc.Export(context.Background(), Request{Entity: "logs", Format: FormatPDF})
	if !errors.Is(err, boom) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback must not run for non-availability errors")
	}
}

func TestExport_PDFWithoutPrinters(t *testing.T) {
	_, err := newTestService(t, &stubStore{}).Export(context.Background(), Request{Entity: "logs", Format: FormatPDF})
	if !errors.Is(err, domain.ErrRenderingEngineUnavailable) {
		t.Fatalf("expected ErrRenderingEngineUnavailable, got %v", err)
	}
}

func TestExport_Errors(t *testing.T) {
	store := &stubStore{err: errors.New("connection reset")}
	svc := newTestService(t, store)

	if _, err := svc.Export(context.Background(), Request{Entity: "nope", Format: FormatHTML}); !errors.Is(err, domain.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("unknown entity must not reach the store")
	}
	if _, err := svc.Export(context.Background(), Request{Entity: "users", Format: FormatHTML}); !errors.Is(err, domain.ErrQueryExecutionFailed) {
		t.Fatalf("expected ErrQueryExecutionFailed, got %v", err)
	}
}

func TestDefinitionsSortedByKey(t *testing.T) {
	defs := newTestService(t, &stubStore{}).Definitions()
	if len(defs) != 2 || defs[0].Key != "logs" || defs[1].Key != "users" {
		t.Fatalf("unexpected definitions: %v", defs)
	}
}
