package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/patterns"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// overlayOnly disables the text and id/class clauses so that only the
// overlay-plus-keyword clause can match.
func overlayOnly() *patterns.Set {
	return &patterns.Set{
		Text:            []string{"zz-no-such-phrase"},
		ClassID:         []string{"zz-no-such-token"},
		OverlayKeywords: patterns.Get().OverlayKeywords,
	}
}

func TestOverlayHeuristic(t *testing.T) {
	doc := newFakeDocument()
	vp := doc.viewport
	eng := New(doc)

	tests := []struct {
		name  string
		setup func() *fakeElement
		want  bool
	}{
		{
			name:  "full screen fixed",
			setup: func() *fakeElement { return overlayElement("", 0.9, 0.6, vp) },
			want:  true,
		},
		{
			name:  "narrow",
			setup: func() *fakeElement { return overlayElement("", 0.2, 0.6, vp) },
			want:  false,
		},
		{
			name:  "short",
			setup: func() *fakeElement { return overlayElement("", 0.9, 0.3, vp) },
			want:  false,
		},
		{
			name: "exact thresholds",
			setup: func() *fakeElement {
				el := overlayElement("", 0.7, 0.4, vp)
				el.style.ZIndex = "1000"
				return el
			},
			want: true,
		},
		{
			name: "low z-index",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.ZIndex = "999"
				return el
			},
			want: false,
		},
		{
			name: "auto z-index",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.ZIndex = "auto"
				return el
			},
			want: false,
		},
		{
			name: "sticky",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Position = "sticky"
				return el
			},
			want: true,
		},
		{
			name: "static without dialog role",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Position = "absolute"
				return el
			},
			want: false,
		},
		{
			name: "absolute dialog role",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Position = "absolute"
				el.attrs["role"] = "dialog"
				return el
			},
			want: true,
		},
		{
			name: "absolute aria-modal",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Position = "absolute"
				el.attrs["aria-modal"] = "true"
				return el
			},
			want: true,
		},
		{
			name: "display none",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Display = "none"
				return el
			},
			want: false,
		},
		{
			name: "visibility hidden",
			setup: func() *fakeElement {
				el := overlayElement("", 0.9, 0.6, vp)
				el.style.Visibility = "hidden"
				return el
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eng.LooksLikeOverlay(tt.setup()); got != tt.want {
				t.Errorf("LooksLikeOverlay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlayReadsViewportEachTime(t *testing.T) {
	doc := newFakeDocument()
	eng := New(doc)

	el := overlayElement("", 0.9, 0.6, doc.viewport)
	if !eng.LooksLikeOverlay(el) {
		t.Fatal("Expected overlay at initial viewport")
	}

	doc.viewport = dom.Viewport{Width: doc.viewport.Width * 2, Height: doc.viewport.Height}
	if eng.LooksLikeOverlay(el) {
		t.Error("Expected resized viewport to be honoured")
	}
}

func TestOverlayKeywordClassification(t *testing.T) {
	doc := newFakeDocument()
	eng := New(doc, WithPatterns(overlayOnly()))

	const text = "We use cookies to improve your experience"

	wide := overlayElement(text, 0.9, 0.6, doc.viewport)
	verdict, ok := eng.classify(wide)
	if !ok {
		t.Fatal("Expected wide overlay to be classified as a dark pattern")
	}
	if verdict.Reason != ReasonOverlay || verdict.Pattern != "cookie" {
		t.Errorf("Expected overlay/cookie verdict, got %s/%s", verdict.Reason, verdict.Pattern)
	}

	narrow := overlayElement(text, 0.2, 0.6, doc.viewport)
	if eng.LooksLikeDarkPattern(narrow) {
		t.Error("Expected narrow element not to be classified")
	}

	plain := overlayElement("Welcome back", 0.9, 0.6, doc.viewport)
	if eng.LooksLikeDarkPattern(plain) {
		t.Error("Expected overlay without keywords not to be classified")
	}
}

func TestClassifierOrder(t *testing.T) {
	eng := New(newFakeDocument())

	el := newFake("DIV")
	el.text = "We use cookies"
	el.elemID = "modal"
	el.class = "cookie-banner"
	v, ok := eng.classify(el)
	if !ok || v.Reason != ReasonText || v.Pattern != "we use cookies" {
		t.Errorf("Expected text match first, got %+v (ok=%v)", v, ok)
	}

	el = newFake("DIV")
	el.elemID = "Site-MODAL"
	el.class = "cookie-banner"
	v, ok = eng.classify(el)
	if !ok || v.Reason != ReasonID || v.Pattern != "modal" {
		t.Errorf("Expected case-insensitive id match, got %+v (ok=%v)", v, ok)
	}

	el = newFake("DIV")
	el.class = "layout mycookieclass"
	v, ok = eng.classify(el)
	if !ok || v.Reason != ReasonClass || v.Pattern != "cookie" {
		t.Errorf("Expected substring class match, got %+v (ok=%v)", v, ok)
	}

	el = newFake("DIV")
	el.text = "   "
	el.class = "content"
	if eng.LooksLikeDarkPattern(el) {
		t.Error("Expected plain element not to match")
	}

	if eng.LooksLikeDarkPattern(nil) {
		t.Error("Expected nil element not to match")
	}
}

func TestMarkedElementNeverMatches(t *testing.T) {
	eng := New(newFakeDocument())

	el := newFake("DIV")
	el.elemID = "cookie-banner"
	eng.markers.Mark(el)

	if eng.LooksLikeDarkPattern(el) {
		t.Error("Expected marked element to be skipped")
	}
}

func TestParseZIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"auto", 0},
		{"2000", 2000},
		{" 1000 ", 1000},
		{"+15", 15},
		{"-5", -5},
		{"12px", 12},
		{"1e5", 1},
		{"abc", 0},
		{"-", 0},
		{"99999999999999999999999", math.MaxInt},
		{"-99999999999999999999999", math.MinInt},
	}

	for _, tt := range tests {
		if got := ParseZIndex(tt.in); got != tt.want {
			t.Errorf("ParseZIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestProcessElementDoesNotVisitRemovedChildren(t *testing.T) {
	child := newFake("BUTTON")
	child.text = "Accept all cookies"
	banner := newFake("DIV", child)
	banner.elemID = "cookie-banner"
	article := newFake("P")
	article.text = "Regular content"

	doc := newFakeDocument(banner, article)
	eng := New(doc)

	eng.ProcessElement(doc.Root())

	if !banner.removed {
		t.Fatal("Expected banner to be removed")
	}
	if child.textReads != 0 {
		t.Errorf("Expected removed element's children never to be classified, got %d reads", child.textReads)
	}
	if article.removed {
		t.Error("Expected regular content to stay")
	}
	if len(eng.Report().Removals) != 1 {
		t.Fatalf("Expected 1 removal, got %d", len(eng.Report().Removals))
	}
	r := eng.Report().Removals[0]
	if r.ID != "cookie-banner" || r.Reason != ReasonID || r.Hidden {
		t.Errorf("Unexpected removal %+v", r)
	}
	// html, body, banner, p
	if eng.Report().Scanned != 4 {
		t.Errorf("Expected 4 scanned elements, got %d", eng.Report().Scanned)
	}
}

func TestProcessElementIsIdempotent(t *testing.T) {
	banner := newFake("DIV")
	banner.class = "newsletter-popup"
	banner.denyRemove = true

	doc := newFakeDocument(banner)
	eng := New(doc)

	eng.ProcessElement(doc.Root())
	eng.ProcessElement(doc.Root())
	eng.ProcessElement(banner)

	if n := len(eng.Report().Removals); n != 1 {
		t.Errorf("Expected exactly 1 removal across repeated scans, got %d", n)
	}
}

func TestProcessElementNil(t *testing.T) {
	eng := New(newFakeDocument())
	eng.ProcessElement(nil)

	if eng.Report().Scanned != 0 {
		t.Errorf("Expected nothing scanned, got %d", eng.Report().Scanned)
	}
}

func TestRemoveFallsBackToHiding(t *testing.T) {
	banner := newFake("DIV")
	banner.elemID = "gdpr"
	banner.denyRemove = true

	doc := newFakeDocument(banner)
	eng := New(doc)
	eng.ProcessElement(doc.Root())

	if banner.removed {
		t.Fatal("Expected detachment to be refused")
	}
	if banner.important["display"] != "none" {
		t.Errorf("Expected display none, got %q", banner.important["display"])
	}
	if banner.important["visibility"] != "hidden" {
		t.Errorf("Expected visibility hidden, got %q", banner.important["visibility"])
	}
	if !eng.Report().Removals[0].Hidden {
		t.Error("Expected removal to be reported as hidden")
	}
}

func TestRemoveElementManual(t *testing.T) {
	el := newFake("SECTION")
	doc := newFakeDocument(el)

	var hooked []Removal
	eng := New(doc, WithRemoveHook(func(r Removal) { hooked = append(hooked, r) }))
	eng.RemoveElement(el)
	eng.RemoveElement(nil)

	if !el.removed {
		t.Error("Expected element to be removed")
	}
	if len(hooked) != 1 || hooked[0].Reason != ReasonManual {
		t.Errorf("Expected one manual removal in hook, got %+v", hooked)
	}
	if eng.LooksLikeDarkPattern(el) {
		t.Error("Expected removed element to carry the marker")
	}
}

func TestScrollRestoredAfterOverlayRemoval(t *testing.T) {
	doc := newFakeDocument()
	overlay := overlayElement("Subscribe to get 10% off", 0.9, 0.6, doc.viewport)
	doc.body.append(overlay)
	doc.root.style.Overflow = "hidden"
	doc.body.style.OverflowY = "hidden"

	eng := New(doc, WithPatterns(overlayOnly()))
	eng.ProcessElement(doc.Root())

	if !overlay.removed {
		t.Fatal("Expected overlay to be removed")
	}
	for _, el := range []*fakeElement{doc.root, doc.body} {
		if el.important["overflow"] != "auto" || el.important["overflow-y"] != "auto" {
			t.Errorf("Expected scroll restored on %s, got %v", el.tag, el.important)
		}
	}
}

func TestRestoreScrollLeavesVisibleOverflow(t *testing.T) {
	doc := newFakeDocument()
	doc.body = nil
	eng := New(doc)

	eng.RestoreScroll()

	if len(doc.root.important) != 0 {
		t.Errorf("Expected no style change, got %v", doc.root.important)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, errors.New("storage unavailable")
}

func (failingStore) Set(context.Context, string, []string) error {
	return errors.New("storage unavailable")
}

func TestRunExcludedHost(t *testing.T) {
	banner := newFake("DIV")
	banner.elemID = "cookie-banner"
	doc := newFakeDocument(banner)

	settings := store.NewMemoryStore()
	if err := settings.Set(context.Background(), store.KeyExcludedHosts, []string{"  ", "https://Example.com/page"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	report := New(doc).Run(context.Background(), "shop.example.com", settings)

	if !report.Excluded || report.ExcludedBy != "https://Example.com/page" {
		t.Errorf("Expected exclusion by raw pattern, got %+v", report)
	}
	if banner.removed || len(report.Removals) != 0 {
		t.Error("Expected nothing removed on excluded host")
	}
	if doc.observed {
		t.Error("Expected watcher not to be installed on excluded host")
	}
}

func TestRunFailsOpenOnStoreError(t *testing.T) {
	banner := newFake("DIV")
	banner.elemID = "cookie-banner"
	doc := newFakeDocument(banner)
	doc.observeErr = errors.New("restricted frame")

	report := New(doc).Run(context.Background(), "example.com", failingStore{})

	if report.Excluded {
		t.Error("Expected store failure to mean no exclusions")
	}
	if !banner.removed {
		t.Error("Expected banner to be removed despite store failure")
	}
}

func TestRunWatcherRemovesInsertedBanner(t *testing.T) {
	doc := newFakeDocument()
	removed := make(chan Removal, 1)
	eng := New(doc, WithRemoveHook(func(r Removal) { removed <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *Report, 1)
	go func() {
		done <- eng.Run(ctx, "example.com", nil)
	}()

	late := newFake("DIV")
	late.class = "cmp-container"
	text := newFake("SPAN")
	doc.batches <- dom.Batch{Added: []dom.Element{nil, late, text}}

	select {
	case r := <-removed:
		if r.Class != "cmp-container" {
			t.Errorf("Expected inserted banner removed, got %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for inserted banner removal")
	}

	cancel()
	select {
	case report := <-done:
		if report.Batches != 1 {
			t.Errorf("Expected 1 batch, got %d", report.Batches)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunStopsWhenStreamCloses(t *testing.T) {
	doc := newFakeDocument()
	close(doc.batches)

	report := New(doc).Run(context.Background(), "example.com", nil)
	if report.Error != "" {
		t.Errorf("Unexpected error %q", report.Error)
	}
}

func TestAfterScanAndDrain(t *testing.T) {
	doc := newFakeDocument()
	queued := newFake("DIV")
	queued.elemID = "newsletter"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(doc, WithAfterScan(func() {
		doc.body.append(queued)
		doc.batches <- dom.Batch{Added: []dom.Element{queued}}
		cancel()
	}))
	report := eng.Run(ctx, "example.com", nil)

	if !queued.removed {
		t.Error("Expected batch queued before cancellation to be drained")
	}
	if report.Batches != 1 {
		t.Errorf("Expected 1 batch, got %d", report.Batches)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	doc := newFakeDocument()
	doc.readyPanic = true

	report := New(doc).Run(context.Background(), "example.com", nil)

	if report.Error != "document exploded" {
		t.Errorf("Expected recovered panic in report, got %q", report.Error)
	}
}

func TestRunRecoversPanicAfterScan(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	doc := newFakeDocument()
	report := New(doc, WithAfterScan(func() { panic("watch setup exploded") })).
		Run(context.Background(), "example.com", nil)

	if report.Error != "watch setup exploded" {
		t.Errorf("Expected recovered panic in report, got %q", report.Error)
	}
	out := buf.String()
	if !strings.Contains(out, "Dark pattern engine failed") || strings.Contains(out, "failed to start") {
		t.Errorf("Expected neutral failure message, got %q", out)
	}
}

func TestInitialScanSwallowsPanic(t *testing.T) {
	bad := newFake("DIV")
	bad.panicText = true
	doc := newFakeDocument(bad)

	eng := New(doc)
	eng.InitialScan()

	if len(eng.Report().Removals) != 0 {
		t.Error("Expected no removals")
	}
}

func TestHandleBatchSwallowsPanic(t *testing.T) {
	bad := newFake("DIV")
	bad.panicText = true
	good := newFake("DIV")
	good.elemID = "popup"
	doc := newFakeDocument(good)

	eng := New(doc)
	eng.HandleBatch(dom.Batch{Added: []dom.Element{bad}})
	eng.HandleBatch(dom.Batch{Added: []dom.Element{good}})

	if !good.removed {
		t.Error("Expected later batch to be processed after a failed one")
	}
	if eng.Report().Batches != 2 {
		t.Errorf("Expected 2 batches, got %d", eng.Report().Batches)
	}
}
