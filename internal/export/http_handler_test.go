package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/auth"
	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/middleware"
)

type filterCapturingStore struct {
	stubStore
	lastArgs []any
}

func (s *filterCapturingStore) QueryRows(ctx context.Context, sql string, args []any) ([]domain.Row, error) {
	s.lastArgs = args
	return s.stubStore.QueryRows(ctx, sql, args)
}

func serve(t *testing.T, h http.Handler, req *http.Request, perms ...string) *httptest.ResponseRecorder {
	t.Helper()
	if perms != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.NewPrincipal("tester", perms...)))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListShowsPermittedEntities(t *testing.T) {
	h := NewHTTPHandler(newTestService(t, &stubStore{}))
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/reports", nil), "reports.users")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []entitySummary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Key != "users" {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestHandler_ListRequiresPrincipal(t *testing.T) {
	h := NewHTTPHandler(newTestService(t, &stubStore{}))
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/reports", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_ExportHTML(t *testing.T) {
	store := &filterCapturingStore{stubStore: stubStore{rows: logRows(2)}}
	h := NewHTTPHandler(newTestService(t, store))

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/reports/logs/html?subject=auth&ignored=1", nil), "reports.logs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != FormatHTML.ContentType() {
		t.Fatalf("content type = %q", ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, "inline; filename=\"") || !strings.Contains(disposition, "filename*=UTF-8''") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if rec.Header().Get(rendererHeader) != RendererTemplate || rec.Header().Get(rowsHeader) != "2" {
		t.Fatalf("unexpected report headers: %v", rec.Header())
	}
	if len(store.lastArgs) != 1 || store.lastArgs[0] != "auth" {
		t.Fatalf("unexpected query args %v", store.lastArgs)
	}
}

func TestHandler_ExportPostBodyOverridesQuery(t *testing.T) {
	store := &filterCapturingStore{}
	h := NewHTTPHandler(newTestService(t, store))
	body := strings.NewReader(`{"filters":{"subject":"billing","user_id":7}}`)
	req := httptest.NewRequest(http.MethodPost, "/reports/logs/xlsx?subject=auth", body)
	rec := serve(t, h, req, "reports.logs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(store.lastArgs) != 2 || store.lastArgs[0] != "billing" || store.lastArgs[1] != float64(7) {
		t.Fatalf("unexpected query args %v", store.lastArgs)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("xlsx must be served as attachment")
	}
}

func TestHandler_StatusMapping(t *testing.T) {
	h := NewHTTPHandler(newTestService(t, &stubStore{err: errors.New("db down")}))
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		perms  []string
		want   int
	}{
		{"unknown entity", http.MethodGet, "/reports/audit/pdf", "", []string{"*"}, http.StatusBadRequest},
		{"forbidden", http.MethodGet, "/reports/logs/html", "", []string{"reports.users"}, http.StatusForbidden},
		{"no principal", http.MethodGet, "/reports/logs/html", "", nil, http.StatusUnauthorized},
		{"unsupported format", http.MethodGet, "/reports/logs/docx", "", []string{"*"}, http.StatusNotFound},
		{"query failure", http.MethodGet, "/reports/logs/html", "", []string{"*"}, http.StatusInternalServerError},
		{"bad body", http.MethodPost, "/reports/logs/html", "{", []string{"*"}, http.StatusBadRequest},
		{"nested filter", http.MethodPost, "/reports/logs/html", `{"filters":{"q":{"a":1}}}`, []string{"*"}, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/reports/logs/html", "", []string{"*"}, http.StatusMethodNotAllowed},
		{"too deep", http.MethodGet, "/reports/logs/html/extra", "", []string{"*"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := serve(t, h, req, tc.perms...)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_InternalErrorsAreNotEchoed(t *testing.T) {
	h := NewHTTPHandler(newTestService(t, &stubStore{err: errors.New("pq: relation logs_secret does not exist")}))
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/reports/logs/html", nil), "*")
	if strings.Contains(rec.Body.String(), "logs_secret") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestContentDisposition(t *testing.T) {
	got := contentDisposition("attachment", "דוח_2024-02-01_00-15-07.pdf")
	want := "attachment; filename=\"____2024-02-01_00-15-07.pdf\"; filename*=UTF-8''%D7%93%D7%95%D7%97_2024-02-01_00-15-07.pdf"
	if got != want {
		t.Fatalf("contentDisposition = %q, want %q", got, want)
	}
}

func TestHandler_FailedExportLogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	h := NewHTTPHandler(newTestService(t, &stubStore{err: errors.New("db down")}), WithHandlerLogger(logger))
	h = middleware.LoggingMiddleware(logger)(h)

	requestID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/reports/logs/html", nil)
	req.Header.Set(middleware.RequestIDHeader, requestID)
	rec := serve(t, h, req, "*")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	found := false
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if entry["msg"] == "report export failed" {
			found = true
			if entry["request_id"] != requestID {
				t.Fatalf("request_id = %v, want %s", entry["request_id"], requestID)
			}
		}
	}
	if !found {
		t.Fatalf("no export failure logged:\n%s", buf.String())
	}
}
