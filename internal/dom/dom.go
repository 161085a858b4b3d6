// Package dom defines the document model the removal engine works against.
// Back ends adapt a live browser page or a parsed HTML tree to it.
package dom

import (
	"context"
	"errors"
)

// ErrDetachDenied is returned by Element.Remove when the environment refuses
// to detach the node from its parent.
var ErrDetachDenied = errors.New("element detachment not allowed")

// NodeID identifies a node for the lifetime of one document.
type NodeID uint64

// Style is the subset of computed style the engine reads.
type Style struct {
	Display    string
	Visibility string
	Position   string
	ZIndex     string
	Overflow   string
	OverflowY  string
}

// Rect is an element's bounding box relative to the viewport, in CSS pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Viewport is the visible window size in CSS pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Element is a single element node.
type Element interface {
	NodeID() NodeID
	TagName() string
	ID() string
	ClassName() string
	Attribute(name string) (string, bool)

	// Text returns rendered text, falling back to raw text content.
	Text() string

	ComputedStyle() (Style, error)
	BoundingRect() (Rect, error)
	Children() ([]Element, error)

	// Remove detaches the element from the document.
	Remove() error

	// SetImportantStyle sets an inline style property with !important priority.
	SetImportantStyle(property, value string) error
}

// Batch is one delivery of newly inserted elements.
type Batch struct {
	Added []Element
}

// Document is a live or static document tree.
type Document interface {
	// Root returns the document element, or nil if the document is empty.
	Root() Element

	// Body returns the body element, or nil.
	Body() Element

	// Viewport returns the current viewport size. Callers must not cache it.
	Viewport() (Viewport, error)

	// Ready blocks until the document can be traversed.
	Ready(ctx context.Context) error

	// Observe subscribes to subtree insertions under the document root.
	// Only element insertions are delivered, never removals. The channel is
	// closed when ctx ends or the document is torn down.
	Observe(ctx context.Context) (<-chan Batch, error)
}
