// Package browser manages the headless browsers used to clean live pages.
// Browsers are launched once and reused across requests.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/types"
)

// Pool manages a fixed set of reusable browser instances.
//
// Lock ordering: mu guards browsers and the closed/available hand-off.
// Never hold mu while performing slow browser I/O.
type Pool struct {
	mu        sync.Mutex
	browsers  []*browserEntry
	available chan *rod.Browser
	config    *config.Config
	closed    atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	availableCount atomic.Int32
	stats          PoolStats
}

type browserEntry struct {
	browser   *rod.Browser
	createdAt time.Time
	useCount  atomic.Int64
}

// PoolStats provides statistics about pool usage.
type PoolStats struct {
	Acquired atomic.Int64
	Released atomic.Int64
	Recycled atomic.Int64
	Errors   atomic.Int64
}

// PoolStatsSnapshot holds a point-in-time snapshot of pool statistics.
type PoolStatsSnapshot struct {
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Recycled int64 `json:"recycled"`
	Errors   int64 `json:"errors"`
}

// NewPool creates a browser pool and pre-warms it.
// Browsers are launched concurrently; if any fails, every browser already
// started is closed and the error is returned.
func NewPool(cfg *config.Config) (*Pool, error) {
	log.Info().
		Int("pool_size", cfg.BrowserPoolSize).
		Bool("headless", cfg.Headless).
		Str("browser_path", cfg.BrowserPath).
		Msg("Initializing browser pool")

	pool := &Pool{
		config:    cfg,
		available: make(chan *rod.Browser, cfg.BrowserPoolSize),
		browsers:  make([]*browserEntry, 0, cfg.BrowserPoolSize),
		stopCh:    make(chan struct{}),
	}

	spawned := make([]*rod.Browser, cfg.BrowserPoolSize)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := range spawned {
		eg.Go(func() error {
			b, err := pool.spawnBrowser(ctx)
			if err != nil {
				return fmt.Errorf("failed to spawn browser %d: %w", i, err)
			}
			spawned[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Failed to pre-warm browser pool")
		for _, b := range spawned {
			if b != nil {
				_ = b.Close()
			}
		}
		return nil, err
	}

	for _, b := range spawned {
		pool.browsers = append(pool.browsers, &browserEntry{browser: b, createdAt: time.Now()})
		pool.available <- b
	}
	pool.availableCount.Store(int32(cfg.BrowserPoolSize))

	pool.wg.Add(1)
	go func() {
		defer pool.wg.Done()
		pool.healthCheckRoutine()
	}()

	log.Info().Int("pool_size", cfg.BrowserPoolSize).Msg("Browser pool initialized successfully")
	return pool, nil
}

// createLauncher builds a launcher for one browser process.
// Launchers can only launch once.
func (p *Pool) createLauncher() *launcher.Launcher {
	l := launcher.New()

	if p.config.BrowserPath != "" {
		l = l.Bin(p.config.BrowserPath)
	}

	if p.config.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	// Container flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	// Banner scripts often sniff for automation and render differently.
	l = l.Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	l = l.Set("accept-lang", "en-US,en;q=0.9").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen").
		Set("window-size", strconv.Itoa(p.config.ViewportWidth)+","+strconv.Itoa(p.config.ViewportHeight))

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("js-flags", "--max-old-space-size=256").
		Set("disable-renderer-backgrounding").
		Set("disable-gpu-sandbox")

	if isARM() {
		l = l.Set("disable-gpu-compositing")
	}

	return l
}

func (p *Pool) spawnBrowser(ctx context.Context) (*rod.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug().Msg("Spawning new browser instance")

	url, err := p.createLauncher().Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Debug().Str("url", url).Msg("Browser spawned successfully")
	return browser, nil
}

// Acquire obtains a browser from the pool. It blocks until a browser is
// available, ctx ends, or the pool timeout elapses.
//
// The caller MUST call Release when done:
//
//	browser, err := pool.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(browser)
func (p *Pool) Acquire(ctx context.Context) (*rod.Browser, error) {
	if p.closed.Load() {
		return nil, types.ErrBrowserPoolClosed
	}

	const maxRetries = 3

	timeout := time.NewTimer(p.config.BrowserPoolTimeout)
	defer timeout.Stop()

	for retry := 0; retry < maxRetries; retry++ {
		select {
		case browser, ok := <-p.available:
			if !ok || p.closed.Load() {
				if browser != nil {
					_ = browser.Close()
				}
				return nil, types.ErrBrowserPoolClosed
			}

			p.stats.Acquired.Add(1)

			if !p.isHealthy(browser) {
				log.Warn().Int("retry", retry).Msg("Acquired unhealthy browser, recycling")
				p.stats.Errors.Add(1)
				go p.recycleBrowser(browser)
				continue
			}

			p.availableCount.Add(-1)
			p.mu.Lock()
			for _, entry := range p.browsers {
				if entry.browser == browser {
					entry.useCount.Add(1)
					break
				}
			}
			p.mu.Unlock()

			return browser, nil

		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())

		case <-timeout.C:
			p.stats.Errors.Add(1)
			return nil, types.ErrBrowserPoolTimeout
		}
	}

	p.stats.Errors.Add(1)
	return nil, fmt.Errorf("%w: all browsers unhealthy after %d retries", types.ErrBrowserUnhealthy, maxRetries)
}

// Release closes every page of browser and returns it to the pool.
// It is safe to call with a nil browser.
func (p *Pool) Release(browser *rod.Browser) {
	if browser == nil {
		return
	}

	if p.closed.Load() {
		_ = browser.Close()
		return
	}
	p.stats.Released.Add(1)

	pages, err := browser.Pages()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list pages for cleanup, recycling browser")
		go p.recycleBrowser(browser)
		return
	}
	for _, page := range pages {
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close page during cleanup, recycling browser")
			go p.recycleBrowser(browser)
			return
		}
	}

	p.addBrowserToPool(browser)
}

func (p *Pool) isHealthy(browser *rod.Browser) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := browser.Context(ctx).Version(); err != nil {
		log.Debug().Err(err).Msg("Browser health check failed")
		return false
	}
	return true
}

// recycleBrowser replaces browser with a fresh instance.
// It must not be called with mu held.
func (p *Pool) recycleBrowser(old *rod.Browser) {
	if p.closed.Load() {
		return
	}
	p.stats.Recycled.Add(1)
	log.Info().Int64("total_recycled", p.stats.Recycled.Load()).Msg("Recycling browser")

	_ = old.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	fresh, err := p.spawnBrowser(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to spawn replacement browser")
		p.removeBrowserEntry(old)
		return
	}

	p.mu.Lock()
	replaced := false
	for i, entry := range p.browsers {
		if entry.browser == old {
			p.browsers[i] = &browserEntry{browser: fresh, createdAt: time.Now()}
			replaced = true
			break
		}
	}
	if !replaced {
		p.browsers = append(p.browsers, &browserEntry{browser: fresh, createdAt: time.Now()})
	}
	p.mu.Unlock()

	p.addBrowserToPool(fresh)
}

func (p *Pool) addBrowserToPool(browser *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		_ = browser.Close()
		return
	}

	select {
	case p.available <- browser:
		p.availableCount.Add(1)
	default:
		log.Warn().Msg("Pool is full, closing excess browser")
		_ = browser.Close()
	}
}

func (p *Pool) removeBrowserEntry(old *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.browsers {
		if entry.browser == old {
			last := len(p.browsers) - 1
			p.browsers[i] = p.browsers[last]
			p.browsers = p.browsers[:last]
			return
		}
	}
}

// healthCheckRoutine recycles browsers that have been running too long.
func (p *Pool) healthCheckRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	const maxAge = 30 * time.Minute

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			var stale []*rod.Browser
			for _, entry := range p.browsers {
				if time.Since(entry.createdAt) > maxAge {
					stale = append(stale, entry.browser)
				}
			}
			p.mu.Unlock()

			for _, b := range stale {
				// Only recycle idle browsers; busy ones are picked up next tick.
				if p.takeIdle(b) {
					p.recycleBrowser(b)
				}
			}
		}
	}
}

// takeIdle removes b from the available channel if it is idle.
func (p *Pool) takeIdle(b *rod.Browser) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return false
	}

	n := len(p.available)
	found := false
	for i := 0; i < n; i++ {
		candidate := <-p.available
		if candidate == b && !found {
			found = true
			p.availableCount.Add(-1)
			continue
		}
		p.available <- candidate
	}
	return found
}

// Size returns the configured pool size.
func (p *Pool) Size() int {
	return p.config.BrowserPoolSize
}

// Available returns the number of idle browsers.
func (p *Pool) Available() int {
	if p.closed.Load() {
		return 0
	}
	return int(p.availableCount.Load())
}

// Stats returns a snapshot of the current pool statistics.
func (p *Pool) Stats() PoolStatsSnapshot {
	return PoolStatsSnapshot{
		Acquired: p.stats.Acquired.Load(),
		Released: p.stats.Released.Load(),
		Recycled: p.stats.Recycled.Load(),
		Errors:   p.stats.Errors.Load(),
	}
}

// Close shuts down the pool and every browser in it.
// Close is safe to call multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	close(p.available)
	browsers := p.browsers
	p.browsers = nil
	p.mu.Unlock()

	log.Info().Msg("Closing browser pool")
	close(p.stopCh)
	p.wg.Wait()

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, entry := range browsers {
		b := entry.browser
		eg.Go(func() error {
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing browser during pool shutdown")
				return err
			}
			return nil
		})
	}
	closeErr := eg.Wait()

	// Drain; these are already closed above.
	for range p.available {
	}

	log.Info().
		Int64("total_acquired", p.stats.Acquired.Load()).
		Int64("total_recycled", p.stats.Recycled.Load()).
		Int64("total_errors", p.stats.Errors.Load()).
		Msg("Browser pool closed")

	return closeErr
}

func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
