// Package cleaner runs the dark pattern engine against live pages and
// static HTML documents.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/browser"
	"github.com/Rorqualx/darkpattern-remover/internal/cdpdom"
	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/engine"
	"github.com/Rorqualx/darkpattern-remover/internal/htmldoc"
	"github.com/Rorqualx/darkpattern-remover/internal/metrics"
	"github.com/Rorqualx/darkpattern-remover/internal/patterns"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
	"github.com/Rorqualx/darkpattern-remover/internal/types"
)

// Cleaner owns the collaborators shared by every clean.
type Cleaner struct {
	pool     *browser.Pool
	settings store.Store
	stats    *stats.Manager
	cfg      *config.Config
	patterns *patterns.Set
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithPatterns overrides the process-wide pattern set for every clean.
func WithPatterns(set *patterns.Set) Option {
	return func(c *Cleaner) {
		c.patterns = set
	}
}

// New creates a Cleaner. pool may be nil, in which case only CleanHTML is
// available. statsMgr may be nil to disable per-host statistics.
func New(pool *browser.Pool, settings store.Store, statsMgr *stats.Manager, cfg *config.Config, opts ...Option) *Cleaner {
	c := &Cleaner{
		pool:     pool,
		settings: settings,
		stats:    statsMgr,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageOptions describes one live page clean.
type PageOptions struct {
	URL          string
	Timeout      time.Duration
	Settle       time.Duration
	Screenshot   bool
	DisableMedia bool
	Viewport     dom.Viewport
}

// Result is the outcome of a clean.
type Result struct {
	URL        string
	HTML       string
	Truncated  bool
	Report     *engine.Report
	Screenshot []byte
}

func (c *Cleaner) engineOptions(extra ...engine.Option) []engine.Option {
	opts := make([]engine.Option, 0, len(extra)+1)
	if c.patterns != nil {
		opts = append(opts, engine.WithPatterns(c.patterns))
	}
	return append(opts, extra...)
}

func (c *Cleaner) viewportOrDefault(v dom.Viewport) dom.Viewport {
	if v.Width > 0 && v.Height > 0 {
		return v
	}
	return dom.Viewport{
		Width:  float64(c.cfg.ViewportWidth),
		Height: float64(c.cfg.ViewportHeight),
	}
}

// CleanURL loads a page in a pooled browser, removes dark patterns, keeps
// watching for late insertions during the settle window and returns the
// cleaned page.
func (c *Cleaner) CleanURL(ctx context.Context, opts *PageOptions) (*Result, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("browser pool is not configured")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", opts.Timeout)
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = c.cfg.SettleTime
	}
	viewport := c.viewportOrDefault(opts.Viewport)

	log.Info().
		Str("url", opts.URL).
		Dur("timeout", opts.Timeout).
		Dur("settle", settle).
		Bool("disable_media", opts.DisableMedia).
		Msg("Starting page clean")

	start := time.Now()

	b, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, types.NewPoolAcquireError("failed to acquire browser", err)
	}
	defer func() {
		c.pool.Release(b)
		metrics.UpdatePoolMetrics(c.pool.Size(), c.pool.Available())
	}()

	cleanCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	page, err := browser.NewPage(b, int(viewport.Width), int(viewport.Height))
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if c.cfg.UserAgent != "" {
		if err := browser.SetUserAgent(page, c.cfg.UserAgent); err != nil {
			log.Warn().Err(err).Msg("Failed to set user agent")
		}
	}

	if opts.DisableMedia {
		cleanup, err := browser.BlockMedia(cleanCtx, page)
		if err == nil {
			defer cleanup()
		}
	}

	if err := page.Context(cleanCtx).Navigate(opts.URL); err != nil {
		return nil, types.NewNavigationError(opts.URL, err)
	}
	if err := page.Context(cleanCtx).WaitLoad(); err != nil {
		log.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}

	finalURL := opts.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}
	host := stats.ExtractHost(finalURL)

	report := c.runLive(cleanCtx, page, host, settle)

	result := &Result{URL: finalURL, Report: report}

	html, err := page.Context(cleanCtx).HTML()
	if err != nil {
		return nil, &types.CleanError{
			Stage:   "render",
			URL:     finalURL,
			Message: "Failed to read cleaned page: " + err.Error(),
			Err:     err,
		}
	}
	result.HTML, result.Truncated = truncate(html, c.cfg.MaxHTMLBytes)

	if opts.Screenshot {
		shot, err := browser.Screenshot(page.Context(cleanCtx))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to capture screenshot")
		} else {
			result.Screenshot = shot
		}
	}

	c.record(report, time.Since(start))

	log.Info().
		Str("host", host).
		Int("removed", len(report.Removals)).
		Bool("excluded", report.Excluded).
		Dur("duration", time.Since(start)).
		Msg("Page clean finished")

	return result, nil
}

// runLive runs the engine on a loaded page. The initial scan is bounded only
// by ctx; the settle window starts once it has finished.
func (c *Cleaner) runLive(ctx context.Context, page *rod.Page, host string, settle time.Duration) *engine.Report {
	runCtx, afterScan, stop := settleWindow(ctx, settle)
	defer stop()

	doc := cdpdom.New(page.Context(ctx))
	defer doc.Close()

	return engine.New(doc, c.engineOptions(engine.WithAfterScan(afterScan))...).Run(runCtx, host, c.settings)
}

// settleWindow returns a context that ends settle after afterScan is called,
// or when parent ends. stop releases the timer.
func settleWindow(parent context.Context, settle time.Duration) (ctx context.Context, afterScan func(), stop func()) {
	ctx, cancel := context.WithCancel(parent)

	var mu sync.Mutex
	var timer *time.Timer
	stopped := false

	afterScan = func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped || timer != nil {
			return
		}
		timer = time.AfterFunc(settle, cancel)
	}
	stop = func() {
		mu.Lock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
	}
	return ctx, afterScan, stop
}

// CleanHTML removes dark patterns from a static document. host is matched
// against the exclusion list; viewport sizes overlay geometry and falls
// back to the configured viewport when zero.
//
// Insertions published while the initial scan runs are still processed;
// the watch phase ends as soon as they are drained.
func (c *Cleaner) CleanHTML(ctx context.Context, src, host string, viewport dom.Viewport) (*Result, error) {
	if src == "" {
		return nil, types.ErrHTMLRequired
	}
	if c.cfg.MaxHTMLBytes > 0 && len(src) > c.cfg.MaxHTMLBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", types.ErrHTMLTooLarge, len(src), c.cfg.MaxHTMLBytes)
	}

	start := time.Now()

	doc, err := htmldoc.ParseString(src, c.viewportOrDefault(viewport))
	if err != nil {
		return nil, errors.Join(types.ErrHTMLParse, err)
	}
	defer doc.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := engine.New(doc, c.engineOptions(engine.WithAfterScan(cancel))...).
		Run(runCtx, host, c.settings)

	out, err := doc.HTML()
	if err != nil {
		return nil, &types.CleanError{
			Stage:   "render",
			Message: "Failed to render cleaned document: " + err.Error(),
			Err:     err,
		}
	}

	c.record(report, time.Since(start))

	log.Debug().
		Str("host", host).
		Int("scanned", report.Scanned).
		Int("removed", len(report.Removals)).
		Msg("HTML clean finished")

	return &Result{HTML: out, Report: report}, nil
}

// CheckHost reports whether host is excluded and by which pattern.
func (c *Cleaner) CheckHost(ctx context.Context, host string) (string, bool) {
	return excludedBy(ctx, c.settings, host)
}

func (c *Cleaner) record(report *engine.Report, latency time.Duration) {
	if report == nil {
		return
	}

	reasons := make([]string, 0, len(report.Removals))
	hidden := 0
	for _, r := range report.Removals {
		reasons = append(reasons, string(r.Reason))
		if r.Hidden {
			hidden++
		}
	}
	metrics.RecordRun(report.Excluded, report.Scanned, reasons, hidden)

	if c.stats != nil {
		c.stats.RecordReport(report, latency)
		metrics.UpdateTrackedHosts(c.stats.Len())
	}
}

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	return s[:limit], true
}
