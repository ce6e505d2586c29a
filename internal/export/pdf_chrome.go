package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/domain"
)

// A4 paper size in inches, as expected by Page.printToPDF.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

var chromeCandidates = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// ChromeRenderer prints HTML documents to PDF with a headless browser. Every
// call launches its own browser process with a private profile directory.
type ChromeRenderer struct {
	execPath   string
	noSandbox  bool
	timeout    time.Duration
	idleWindow time.Duration
	pollEvery  time.Duration
	tempRoot   string
	launch     browserLauncher
	log        *logrus.Entry
}

// ChromeOption customizes a ChromeRenderer.
type ChromeOption func(*ChromeRenderer)

// WithExecPath pins the browser binary instead of searching PATH.
func WithExecPath(path string) ChromeOption {
	return func(r *ChromeRenderer) {
		r.execPath = strings.TrimSpace(path)
	}
}

// WithNoSandbox disables the browser's sandbox, needed when running as root
// inside some containers.
func WithNoSandbox(disabled bool) ChromeOption {
	return func(r *ChromeRenderer) {
		r.noSandbox = disabled
	}
}

// WithRenderTimeout bounds a single capture, launch included.
func WithRenderTimeout(timeout time.Duration) ChromeOption {
	return func(r *ChromeRenderer) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithChromeLogger attaches a logger.
func WithChromeLogger(logger *logrus.Logger) ChromeOption {
	return func(r *ChromeRenderer) {
		if logger != nil {
			r.log = logger.WithField("module", "pdf.chrome")
		}
	}
}

// NewChromeRenderer returns a renderer with a 60 second capture timeout.
func NewChromeRenderer(opts ...ChromeOption) *ChromeRenderer {
	silent := logrus.New()
	silent.SetLevel(logrus.PanicLevel)
	r := &ChromeRenderer{
		timeout:    60 * time.Second,
		idleWindow: 500 * time.Millisecond,
		pollEvery:  50 * time.Millisecond,
		log:        silent.WithField("module", "pdf.chrome"),
	}
	r.launch = r.launchChrome
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HTMLToPDF loads html, waits until the network has been idle for half a
// second and prints an A4 page with backgrounds. Failures of the browser
// itself are reported as domain.ErrRenderingEngineUnavailable.
func (r *ChromeRenderer) HTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	var pdf []byte
	err := r.withBrowser(ctx, func(browserCtx context.Context, workDir string) error {
		documentPath := filepath.Join(workDir, "report.html")
		if err := os.WriteFile(documentPath, []byte(html), 0o600); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		tracker := newInflightTracker()
		chromedp.ListenTarget(browserCtx, tracker.observe)
		return chromedp.Run(browserCtx,
			network.Enable(),
			chromedp.ActionFunc(func(ctx context.Context) error {
				tracker.touch()
				return chromedp.Navigate("file://" + documentPath).Do(ctx)
			}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				return tracker.waitIdle(ctx, r.idleWindow, r.pollEvery)
			}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				data, _, err := page.PrintToPDF().
					WithPrintBackground(true).
					WithPaperWidth(a4WidthInches).
					WithPaperHeight(a4HeightInches).
					WithPreferCSSPageSize(true).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("print to pdf: %w", err)
				}
				pdf = data
				return nil
			}),
		)
	})
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: browser returned an empty document", domain.ErrExportEncodingFailed)
	}
	return pdf, nil
}

// browserLauncher starts a browser with its profile under workDir. The
// returned release func stops it and must be called exactly once.
type browserLauncher func(ctx context.Context, execPath, workDir string) (context.Context, context.CancelFunc, error)

// withBrowser acquires a browser for exactly one use. The process, its
// contexts and the temporary directory are released on every return path.
func (r *ChromeRenderer) withBrowser(ctx context.Context, use func(context.Context, string) error) error {
	execPath, err := r.resolveExecPath()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRenderingEngineUnavailable, err)
	}

	workDir, err := os.MkdirTemp(r.tempRoot, "report-pdf-*")
	if err != nil {
		return fmt.Errorf("%w: create work dir: %w", domain.ErrRenderingEngineUnavailable, err)
	}
	defer os.RemoveAll(workDir)

	runCtx, cancelRun := context.WithTimeout(ctx, r.timeout)
	defer cancelRun()

	start := time.Now()
	browserCtx, release, err := r.launch(runCtx, execPath, workDir)
	if err != nil {
		r.log.WithError(err).WithField("exec_path", execPath).Warn("browser launch failed")
		return r.engineError(ctx, "launch browser", err)
	}
	defer release()

	if err := use(browserCtx, workDir); err != nil {
		r.log.WithError(err).Warn("browser capture failed")
		return r.engineError(ctx, "capture", err)
	}
	r.log.WithField("duration", time.Since(start).String()).Debug("browser capture completed")
	return nil
}

func (r *ChromeRenderer) launchChrome(ctx context.Context, execPath, workDir string) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.UserDataDir(filepath.Join(workDir, "profile")),
		chromedp.DisableGPU,
	)
	if r.noSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	release := func() {
		cancelBrowser()
		cancelAlloc()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		release()
		return nil, nil, err
	}
	return browserCtx, release, nil
}

// engineError classifies err. Cancellation by the caller is returned as is;
// everything else is an engine failure.
func (r *ChromeRenderer) engineError(parent context.Context, step string, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRenderingEngineUnavailable, step, err)
}

func (r *ChromeRenderer) resolveExecPath() (string, error) {
	if r.execPath != "" {
		path, err := exec.LookPath(r.execPath)
		if err != nil {
			return "", fmt.Errorf("browser %q not found: %w", r.execPath, err)
		}
		return path, nil
	}
	for _, candidate := range chromeCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome or chromium binary found on PATH")
}

// inflightTracker counts outstanding network requests so the capture can
// wait for an idle network.
type inflightTracker struct {
	mu           sync.Mutex
	pending      map[network.RequestID]struct{}
	lastActivity time.Time
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{pending: make(map[network.RequestID]struct{}), lastActivity: time.Now()}
}

func (t *inflightTracker) observe(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.pending[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.pending, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.pending, e.RequestID)
	default:
		return
	}
	t.lastActivity = time.Now()
}

func (t *inflightTracker) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// idleFor returns how long no request has been outstanding.
func (t *inflightTracker) idleFor(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		return 0
	}
	return now.Sub(t.lastActivity)
}

func (t *inflightTracker) waitIdle(ctx context.Context, window, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if t.idleFor(time.Now()) >= window {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
