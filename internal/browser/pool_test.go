package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"

	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/types"
)

// testConfig returns a configuration suitable for testing.
func testConfig() *config.Config {
	return &config.Config{
		Headless:           true,
		BrowserPoolSize:    2,
		BrowserPoolTimeout: 10 * time.Second,
		ViewportWidth:      1280,
		ViewportHeight:     800,
	}
}

// skipCI skips tests that require a browser in CI environments.
func skipCI(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping browser test in short mode")
	}
}

// emptyPool builds a pool with no browsers for exercising the hand-off logic.
func emptyPool(timeout time.Duration) *Pool {
	cfg := testConfig()
	cfg.BrowserPoolTimeout = timeout
	return &Pool{
		config:    cfg,
		available: make(chan *rod.Browser, 1),
		stopCh:    make(chan struct{}),
	}
}

func TestCreateLauncherFlags(t *testing.T) {
	p := &Pool{config: testConfig()}
	l := p.createLauncher()

	if v, ok := l.Get("window-size"), l.Has("window-size"); !ok || v != "1280,800" {
		t.Errorf("Expected window-size 1280,800, got %q (set=%v)", v, ok)
	}
	if v := l.Get("headless"); v != "new" {
		t.Errorf("Expected headless=new, got %q", v)
	}
	if v := l.Get("disable-blink-features"); v != "AutomationControlled" {
		t.Errorf("Expected AutomationControlled to be disabled, got %q", v)
	}
	if l.Has("enable-automation") {
		t.Error("Expected enable-automation to be removed")
	}
}

func TestAcquireTimeout(t *testing.T) {
	p := emptyPool(50 * time.Millisecond)

	start := time.Now()
	_, err := p.Acquire(context.Background())
	if !errors.Is(err, types.ErrBrowserPoolTimeout) {
		t.Fatalf("Expected ErrBrowserPoolTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Acquire took too long to time out")
	}
}

func TestAcquireContextCancellation(t *testing.T) {
	p := emptyPool(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Acquire(ctx)
	if !errors.Is(err, types.ErrContextCanceled) {
		t.Errorf("Expected ErrContextCanceled, got %v", err)
	}
}

func TestAcquireAfterClose(t *testing.T) {
	p := emptyPool(time.Second)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, types.ErrBrowserPoolClosed) {
		t.Errorf("Expected ErrBrowserPoolClosed, got %v", err)
	}
	if p.Available() != 0 {
		t.Errorf("Expected 0 available after close, got %d", p.Available())
	}
}

func TestReleaseNil(t *testing.T) {
	p := emptyPool(time.Second)
	p.Release(nil)

	if s := p.Stats(); s.Released != 0 {
		t.Errorf("Expected nil release to be ignored, got %d", s.Released)
	}
}

func TestNewPool(t *testing.T) {
	skipCI(t)

	cfg := testConfig()
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer pool.Close()

	if pool.Size() != cfg.BrowserPoolSize {
		t.Errorf("Expected pool size %d, got %d", cfg.BrowserPoolSize, pool.Size())
	}
	if pool.Available() != cfg.BrowserPoolSize {
		t.Errorf("Expected %d available browsers, got %d", cfg.BrowserPoolSize, pool.Available())
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	skipCI(t)

	cfg := testConfig()
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer pool.Close()

	browser, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire browser: %v", err)
	}
	if pool.Available() != cfg.BrowserPoolSize-1 {
		t.Errorf("Expected %d available after acquire, got %d", cfg.BrowserPoolSize-1, pool.Available())
	}

	page, err := NewPage(browser, cfg.ViewportWidth, cfg.ViewportHeight)
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	res, err := page.Eval(`() => window.innerWidth`)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if w := res.Value.Int(); w != cfg.ViewportWidth {
		t.Errorf("Expected innerWidth %d, got %d", cfg.ViewportWidth, w)
	}

	pool.Release(browser)

	if pool.Available() != cfg.BrowserPoolSize {
		t.Errorf("Expected %d available after release, got %d", cfg.BrowserPoolSize, pool.Available())
	}
	stats := pool.Stats()
	if stats.Acquired != 1 || stats.Released != 1 {
		t.Errorf("Expected 1 acquire and 1 release, got %+v", stats)
	}
}
