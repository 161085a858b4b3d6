package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// ProcessElement scans root and its subtree, removing every match.
// A matched element's children are never visited. Marked elements are
// skipped together with their subtree.
func (e *Engine) ProcessElement(root dom.Element) {
	if root == nil {
		return
	}

	stack := []dom.Element{root}

	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.markers.Marked(el) {
			continue
		}
		e.report.Scanned++

		if verdict, ok := e.classify(el); ok {
			e.remove(el, verdict)
			e.RestoreScroll()
			continue
		}

		children, err := el.Children()
		if err != nil {
			log.Debug().Err(err).Str("tag", el.TagName()).Msg("Failed to list children")
			continue
		}
		stack = append(stack, children...)
	}
}
