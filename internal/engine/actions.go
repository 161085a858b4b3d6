package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// RemoveElement marks el and detaches it, falling back to forced hiding.
// It lets callers remove an element they classified themselves; the
// removal is reported with reason "manual". The scanner uses the
// unexported path, which records the matched clause instead.
func (e *Engine) RemoveElement(el dom.Element) {
	if el == nil {
		return
	}
	e.remove(el, Verdict{Reason: ReasonManual})
}

func (e *Engine) remove(el dom.Element, verdict Verdict) {
	// Mark first: a failure below must not lead to another attempt.
	e.markers.Mark(el)

	removal := Removal{
		Tag:     el.TagName(),
		ID:      el.ID(),
		Class:   el.ClassName(),
		Reason:  verdict.Reason,
		Pattern: verdict.Pattern,
	}

	log.Debug().
		Str("tag", removal.Tag).
		Str("id", removal.ID).
		Str("class", removal.Class).
		Str("reason", string(removal.Reason)).
		Str("pattern", removal.Pattern).
		Msg("Removing dark pattern element")

	if err := el.Remove(); err != nil {
		log.Debug().Err(err).Str("tag", removal.Tag).Msg("Detach refused, hiding element")
		removal.Hidden = true
		if err := el.SetImportantStyle("display", "none"); err != nil {
			log.Debug().Err(err).Msg("Failed to force display:none")
		}
		if err := el.SetImportantStyle("visibility", "hidden"); err != nil {
			log.Debug().Err(err).Msg("Failed to force visibility:hidden")
		}
	}

	e.report.Removals = append(e.report.Removals, removal)
	if e.onRemove != nil {
		e.onRemove(removal)
	}
}

// RestoreScroll undoes a scroll lock on the document element and body.
func (e *Engine) RestoreScroll() {
	for _, el := range []dom.Element{e.doc.Root(), e.doc.Body()} {
		if el == nil {
			continue
		}

		style, err := el.ComputedStyle()
		if err != nil {
			log.Debug().Err(err).Str("tag", el.TagName()).Msg("Failed to read scroll style")
			continue
		}
		if style.Overflow != "hidden" && style.OverflowY != "hidden" {
			continue
		}

		log.Debug().Str("tag", el.TagName()).Msg("Restoring scroll")
		if err := el.SetImportantStyle("overflow", "auto"); err != nil {
			log.Debug().Err(err).Msg("Failed to restore overflow")
		}
		if err := el.SetImportantStyle("overflow-y", "auto"); err != nil {
			log.Debug().Err(err).Msg("Failed to restore overflow-y")
		}
	}
}
