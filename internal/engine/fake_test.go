package engine

import (
	"context"
	"errors"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

var errDetach = errors.New("detach refused")

// fakeElement is a hand-built element whose every input is set directly.
type fakeElement struct {
	id       dom.NodeID
	tag      string
	elemID   string
	class    string
	text     string
	attrs    map[string]string
	style    dom.Style
	rect     dom.Rect
	parent   *fakeElement
	children []*fakeElement

	denyRemove bool
	removed    bool
	textReads  int
	important  map[string]string
	panicText  bool
}

var nextFakeID dom.NodeID

func newFake(tag string, children ...*fakeElement) *fakeElement {
	nextFakeID++
	el := &fakeElement{
		id:  nextFakeID,
		tag: tag,
		style: dom.Style{
			Display:    "block",
			Visibility: "visible",
			Position:   "static",
			ZIndex:     "auto",
			Overflow:   "visible",
			OverflowY:  "visible",
		},
		attrs:     map[string]string{},
		important: map[string]string{},
	}
	for _, c := range children {
		el.append(c)
	}
	return el
}

func (f *fakeElement) append(c *fakeElement) {
	c.parent = f
	f.children = append(f.children, c)
}

func (f *fakeElement) NodeID() dom.NodeID { return f.id }
func (f *fakeElement) TagName() string    { return f.tag }
func (f *fakeElement) ID() string         { return f.elemID }
func (f *fakeElement) ClassName() string  { return f.class }

func (f *fakeElement) Attribute(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}

func (f *fakeElement) Text() string {
	if f.panicText {
		panic("text unavailable")
	}
	f.textReads++
	return f.text
}

func (f *fakeElement) ComputedStyle() (dom.Style, error) {
	s := f.style
	if v, ok := f.important["overflow"]; ok {
		s.Overflow = v
	}
	if v, ok := f.important["overflow-y"]; ok {
		s.OverflowY = v
	}
	return s, nil
}

func (f *fakeElement) BoundingRect() (dom.Rect, error) { return f.rect, nil }

func (f *fakeElement) Children() ([]dom.Element, error) {
	out := make([]dom.Element, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeElement) Remove() error {
	if f.denyRemove || f.parent == nil {
		return errDetach
	}
	p := f.parent
	for i, c := range p.children {
		if c == f {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	f.parent = nil
	f.removed = true
	return nil
}

func (f *fakeElement) SetImportantStyle(prop, value string) error {
	f.important[prop] = value
	return nil
}

// fakeDocument serves a fixed tree and a test-controlled insertion stream.
type fakeDocument struct {
	root     *fakeElement
	body     *fakeElement
	viewport dom.Viewport

	batches    chan dom.Batch
	observeErr error
	observed   bool
	readyPanic bool
}

// newFakeDocument builds <html><body>children</body></html>.
func newFakeDocument(children ...*fakeElement) *fakeDocument {
	body := newFake("BODY", children...)
	root := newFake("HTML", body)
	return &fakeDocument{
		root:     root,
		body:     body,
		viewport: dom.Viewport{Width: 1000, Height: 800},
		batches:  make(chan dom.Batch, 8),
	}
}

func (d *fakeDocument) Root() dom.Element {
	if d.root == nil {
		return nil
	}
	return d.root
}

func (d *fakeDocument) Body() dom.Element {
	if d.body == nil {
		return nil
	}
	return d.body
}

func (d *fakeDocument) Viewport() (dom.Viewport, error) { return d.viewport, nil }

func (d *fakeDocument) Ready(ctx context.Context) error {
	if d.readyPanic {
		panic("document exploded")
	}
	return ctx.Err()
}

func (d *fakeDocument) Observe(ctx context.Context) (<-chan dom.Batch, error) {
	d.observed = true
	if d.observeErr != nil {
		return nil, d.observeErr
	}
	return d.batches, nil
}

// overlayElement returns a fixed overlay covering the given viewport share.
func overlayElement(text string, widthShare, heightShare float64, vp dom.Viewport) *fakeElement {
	el := newFake("DIV")
	el.text = text
	el.style.Position = "fixed"
	el.style.ZIndex = "2000"
	el.rect = dom.Rect{Width: vp.Width * widthShare, Height: vp.Height * heightShare}
	return el
}
