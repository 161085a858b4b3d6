package engine

import (
	"strings"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/patterns"
)

// Reason names the classifier clause that matched.
type Reason string

// Classifier clauses, in evaluation order.
const (
	ReasonText    Reason = "text"
	ReasonID      Reason = "id"
	ReasonClass   Reason = "class"
	ReasonOverlay Reason = "overlay"
	ReasonManual  Reason = "manual"
)

// Verdict is a positive classification.
type Verdict struct {
	Reason  Reason
	Pattern string
}

// LooksLikeDarkPattern reports whether el should be removed.
// Elements already carrying the processed marker are never matched again.
func (e *Engine) LooksLikeDarkPattern(el dom.Element) bool {
	_, ok := e.classify(el)
	return ok
}

func (e *Engine) classify(el dom.Element) (Verdict, bool) {
	if el == nil || e.markers.Marked(el) {
		return Verdict{}, false
	}

	text := strings.TrimSpace(el.Text())

	if p, ok := patterns.FirstMatch(text, e.patterns.Text); ok {
		return Verdict{Reason: ReasonText, Pattern: p}, true
	}

	if p, ok := patterns.FirstMatch(el.ID(), e.patterns.ClassID); ok {
		return Verdict{Reason: ReasonID, Pattern: p}, true
	}

	// The class attribute is searched as one string, not per token.
	if p, ok := patterns.FirstMatch(el.ClassName(), e.patterns.ClassID); ok {
		return Verdict{Reason: ReasonClass, Pattern: p}, true
	}

	if e.LooksLikeOverlay(el) {
		if p, ok := patterns.FirstMatch(text, e.patterns.OverlayKeywords); ok {
			return Verdict{Reason: ReasonOverlay, Pattern: p}, true
		}
	}

	return Verdict{}, false
}
