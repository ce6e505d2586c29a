package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/auth"
	"github.com/rpattn/reportengine/internal/domain"
	"github.com/rpattn/reportengine/internal/middleware"
)

const (
	routePrefix     = "/reports"
	maxFilterBody   = 1 << 20
	rendererHeader  = "X-Report-Renderer"
	rowsHeader      = "X-Report-Rows"
	defaultDeadline = 2 * time.Minute
)

type Handler struct {
	service *Service
	timeout time.Duration
	log     *logrus.Entry
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithRequestTimeout bounds the time spent producing one report.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHandlerLogger attaches a logger for failed requests.
func WithHandlerLogger(logger *logrus.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.log = logger.WithField("module", "http")
		}
	}
}

func NewHTTPHandler(service *Service, opts ...HandlerOption) http.Handler {
	silent := logrus.New()
	silent.SetLevel(logrus.PanicLevel)
	h := &Handler{service: service, timeout: defaultDeadline, log: silent.WithField("module", "http")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, routePrefix), "/")
	segments := strings.Split(path, "/")
	switch {
	case path == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
		return
	case len(segments) == 2 && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		h.handleExport(w, r, segments[0], segments[1])
		return
	case len(segments) == 2:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type entitySummary struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Filters []string `json:"filters"`
	Formats []Format `json:"formats"`
}

type filterRequestPayload struct {
	Filters map[string]any `json:"filters"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
		writeError(w, auth.ErrUnauthenticated)
		return
	}
	summaries := make([]entitySummary, 0)
	for _, def := range h.service.Definitions() {
		if auth.EnforcePermission(r.Context(), def.RBAC.Perm) != nil {
			continue
		}
		filters := make([]string, 0, len(def.Filters))
		for _, rule := range def.Filters {
			filters = append(filters, rule.Name)
		}
		summaries = append(summaries, entitySummary{
			Key:     def.Key,
			Title:   def.Title,
			Filters: filters,
			Formats: []Format{FormatHTML, FormatPDF, FormatXLSX},
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, entity, rawFormat string) {
	format, ok := ParseFormat(rawFormat)
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported format %q", rawFormat), http.StatusNotFound)
		return
	}
	def, err := h.service.Definition(entity)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnforcePermission(r.Context(), def.RBAC.Perm); err != nil {
		writeError(w, err)
		return
	}
	filters, err := readFilters(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	artifact, err := h.service.Export(ctx, Request{Entity: def.Key, Filters: filters, Format: format})
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.RequestIDFromContext(r.Context()),
			"entity":     def.Key,
			"format":     format,
		}).Error("report export failed")
		writeError(w, err)
		return
	}

	disposition := "attachment"
	if format == FormatHTML {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(disposition, artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set(rendererHeader, artifact.Renderer)
	w.Header().Set(rowsHeader, strconv.Itoa(artifact.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

// readFilters collects filters from the query string, then overlays the JSON
// body of a POST request.
func readFilters(r *http.Request) (domain.FilterPayload, error) {
	filters := domain.FilterPayload{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return filters, nil
	}
	defer r.Body.Close()
	var payload filterRequestPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFilterBody)).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return filters, nil
		}
		return nil, err
	}
	for key, value := range payload.Filters {
		switch value.(type) {
		case nil, string, bool, float64:
			filters[key] = value
		default:
			return nil, fmt.Errorf("filter %q must be a string, number, boolean or null", key)
		}
	}
	return filters, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownEntity):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRenderingEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal errors are logged by the caller and not echoed.
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// contentDisposition emits an ASCII filename plus the RFC 5987 UTF-8 form.
func contentDisposition(disposition, filename string) string {
	var fallback strings.Builder
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' || r == '%' {
			fallback.WriteByte('_')
			continue
		}
		fallback.WriteRune(r)
	}
	return fmt.Sprintf("%s; filename=\"%s\"; filename*=UTF-8''%s", disposition, fallback.String(), url.PathEscape(filename))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
