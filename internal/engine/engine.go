// Package engine detects and removes dark-pattern elements from a document.
//
// An Engine is bound to one document. All of its work (the initial scan and
// every mutation batch) runs on the goroutine that called Run, so the
// processed-marker set needs no locking.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/exclusion"
	"github.com/Rorqualx/darkpattern-remover/internal/patterns"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// Removal describes one element the engine acted on.
type Removal struct {
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Class   string `json:"class,omitempty"`
	Reason  Reason `json:"reason"`
	Pattern string `json:"pattern,omitempty"`
	// Hidden is true when detachment was refused and the element was
	// force-hidden instead.
	Hidden bool `json:"hidden,omitempty"`
}

// Report summarises one engine run.
type Report struct {
	Host       string    `json:"host"`
	Excluded   bool      `json:"excluded"`
	ExcludedBy string    `json:"excludedBy,omitempty"`
	Removals   []Removal `json:"removals"`
	Scanned    int       `json:"scanned"`
	Batches    int       `json:"batches"`
	Error      string    `json:"error,omitempty"`
}

// Engine applies the classifier to a document and removes matches.
type Engine struct {
	doc      dom.Document
	patterns *patterns.Set
	markers  *dom.MarkerSet
	report   *Report
	onRemove func(Removal)
	onScan   func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatterns overrides the process-wide pattern set.
func WithPatterns(set *patterns.Set) Option {
	return func(e *Engine) {
		if set != nil {
			e.patterns = set
		}
	}
}

// WithRemoveHook registers a callback invoked after every removal.
func WithRemoveHook(fn func(Removal)) Option {
	return func(e *Engine) {
		e.onRemove = fn
	}
}

// WithAfterScan registers a callback invoked once the initial scan is done,
// before the watch phase starts.
func WithAfterScan(fn func()) Option {
	return func(e *Engine) {
		e.onScan = fn
	}
}

// New creates an Engine for doc.
func New(doc dom.Document, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		patterns: patterns.Get(),
		markers:  dom.NewMarkerSet(),
		report:   &Report{Removals: []Removal{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report returns the run report. It must only be read once Run has returned.
func (e *Engine) Report() *Report {
	return e.report
}

// Run gates on the exclusion list, scans the document once, then keeps
// scanning inserted subtrees until ctx ends or the document goes away.
//
// Run never panics: a failure anywhere inside is logged, recorded in the
// report, and the partial report is returned.
func (e *Engine) Run(ctx context.Context, hostname string, settings store.Store) (report *Report) {
	e.report.Host = hostname
	report = e.report

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("error", r).
				Str("stack", string(debug.Stack())).
				Str("host", hostname).
				Msg("Dark pattern engine failed")
			e.report.Error = fmt.Sprint(r)
		}
	}()

	excluded := store.ReadExcludedHosts(ctx, settings)
	if raw, ok := exclusion.MatchingPattern(hostname, excluded); ok {
		log.Debug().
			Str("host", hostname).
			Str("pattern", raw).
			Msg("Engine disabled on excluded host")
		e.report.Excluded = true
		e.report.ExcludedBy = raw
		return report
	}

	// Subscribe before the initial scan so that insertions racing with it
	// are queued rather than lost. They are consumed only after the scan.
	batches, err := e.doc.Observe(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Error setting up mutation watcher")
		batches = nil
	}

	if err := e.doc.Ready(ctx); err != nil {
		log.Debug().Err(err).Msg("Document never became ready, skipping scan")
		return report
	}

	e.InitialScan()
	if e.onScan != nil {
		e.onScan()
	}

	if batches != nil {
		e.consume(ctx, batches)
	}

	return report
}

// InitialScan performs one full pass over the document, then restores
// page scrolling.
func (e *Engine) InitialScan() {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("error", r).Msg("Error during initial scan")
		}
	}()

	log.Debug().Msg("Initial scan started")
	e.ProcessElement(e.doc.Root())
	e.RestoreScroll()
	log.Debug().
		Int("scanned", e.report.Scanned).
		Int("removed", len(e.report.Removals)).
		Msg("Initial scan finished")
}
