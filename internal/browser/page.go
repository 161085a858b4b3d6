package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// NewPage opens a stealth page sized to the given viewport.
// Stealth patches are injected before any document script runs, so banner
// scripts see an ordinary browser.
func NewPage(browser *rod.Browser, width, height int) (*rod.Page, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := SetViewport(page, width, height); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	return page, nil
}

// SetViewport sets the page viewport size.
func SetViewport(page *rod.Page, width, height int) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

// SetUserAgent sets a custom user agent on the page.
func SetUserAgent(page *rod.Page, userAgent string) error {
	return proto.NetworkSetUserAgentOverride{
		UserAgent: userAgent,
	}.Call(page)
}

// BlockMedia fails requests for fonts, audio and video. None of them affect
// banner detection. The returned cleanup stops the interception listener and
// is safe to call more than once.
func BlockMedia(ctx context.Context, page *rod.Page) (cleanup func(), err error) {
	err = proto.FetchEnable{Patterns: mediaPatterns()}.Call(page)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to enable media blocking")
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var once sync.Once
	cleanup = func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		page.Context(listenerCtx).EachEvent(func(e *proto.FetchRequestPaused) {
			// The request may already be gone with its page.
			_ = proto.FetchFailRequest{
				RequestID:   e.RequestID,
				ErrorReason: proto.NetworkErrorReasonBlockedByClient,
			}.Call(page)
		})()
	}()

	return cleanup, nil
}

func mediaPatterns() []*proto.FetchRequestPattern {
	var patterns []*proto.FetchRequestPattern
	for _, p := range []string{"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot"} {
		patterns = append(patterns, &proto.FetchRequestPattern{
			URLPattern:   p,
			ResourceType: proto.NetworkResourceTypeFont,
		})
	}
	for _, p := range []string{"*.mp4", "*.webm", "*.mp3", "*.ogg", "*.wav"} {
		patterns = append(patterns, &proto.FetchRequestPattern{
			URLPattern:   p,
			ResourceType: proto.NetworkResourceTypeMedia,
		})
	}
	return patterns
}

// Screenshot captures the visible viewport as PNG.
func Screenshot(page *rod.Page) ([]byte, error) {
	return page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}
