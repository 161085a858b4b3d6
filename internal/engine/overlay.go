package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// Overlay thresholds. They catch full or near-full screen takeovers while
// leaving small fixed widgets such as chat bubbles alone.
const (
	OverlayMinWidth  = 0.7
	OverlayMinHeight = 0.4
	OverlayMinZIndex = 1000
)

// LooksLikeOverlay reports whether el is a visible, positioned element that
// covers most of the viewport above regular content.
func (e *Engine) LooksLikeOverlay(el dom.Element) bool {
	style, err := el.ComputedStyle()
	if err != nil {
		log.Debug().Err(err).Str("tag", el.TagName()).Msg("Failed to read computed style")
		return false
	}

	if style.Display == "none" || style.Visibility == "hidden" {
		return false
	}

	fixedOrSticky := style.Position == "fixed" || style.Position == "sticky"
	if !fixedOrSticky && !isDialog(el) {
		return false
	}

	viewport, err := e.doc.Viewport()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read viewport")
		return false
	}

	rect, err := el.BoundingRect()
	if err != nil {
		log.Debug().Err(err).Str("tag", el.TagName()).Msg("Failed to read bounding rect")
		return false
	}

	coversWidth := rect.Width >= viewport.Width*OverlayMinWidth
	coversHeight := rect.Height >= viewport.Height*OverlayMinHeight
	if !coversWidth || !coversHeight {
		return false
	}

	return ParseZIndex(style.ZIndex) >= OverlayMinZIndex
}

func isDialog(el dom.Element) bool {
	if role, ok := el.Attribute("role"); ok && role == "dialog" {
		return true
	}
	if modal, ok := el.Attribute("aria-modal"); ok && modal == "true" {
		return true
	}
	return false
}

// ParseZIndex reads the leading integer of a z-index value.
// Missing or non-numeric values ("auto", "") are 0.
func ParseZIndex(s string) int {
	s = strings.TrimSpace(s)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of range; keep the sign.
		if s[0] == '-' {
			return math.MinInt
		}
		return math.MaxInt
	}
	return n
}
