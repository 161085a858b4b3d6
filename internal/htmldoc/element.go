package htmldoc

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// Element wraps an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

// NodeID implements dom.Element.
func (e *Element) NodeID() dom.NodeID {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.ids[e.node]
}

// TagName implements dom.Element. Names are upper-cased as in the DOM.
func (e *Element) TagName() string {
	return strings.ToUpper(e.node.Data)
}

// ID implements dom.Element.
func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, "id")
}

// ClassName implements dom.Element.
func (e *Element) ClassName() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, "class")
}

// Attribute implements dom.Element.
func (e *Element) Attribute(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return lookupAttr(e.node, name)
}

// Text implements dom.Element. Content of script-like elements is skipped
// and whitespace runs are collapsed, approximating rendered text.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var sb strings.Builder
	collectText(e.node, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// ComputedStyle implements dom.Element from the inline style attribute.
func (e *Element) ComputedStyle() (dom.Style, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.style(), nil
}

func (e *Element) style() dom.Style {
	decls := parseDeclarations(attr(e.node, "style"))

	s := dom.Style{
		Display:    "block",
		Visibility: "visible",
		Position:   "static",
		ZIndex:     "auto",
		Overflow:   "visible",
		OverflowY:  "visible",
	}
	if _, hidden := lookupAttr(e.node, "hidden"); hidden {
		s.Display = "none"
	}
	if v := decls.get("display"); v != "" {
		s.Display = v
	}
	if v := decls.get("visibility"); v != "" {
		s.Visibility = v
	}
	if v := decls.get("position"); v != "" {
		s.Position = v
	}
	if v := decls.get("z-index"); v != "" {
		s.ZIndex = v
	}
	if v := decls.get("overflow"); v != "" {
		s.Overflow = v
		s.OverflowY = v
	}
	if v := decls.get("overflow-y"); v != "" {
		s.OverflowY = v
	}
	return s
}

// BoundingRect implements dom.Element.
//
// Width and height resolve px, %, vw and vh lengths against the viewport.
// An element pinned to both opposite edges (left:0;right:0, or inset:0)
// spans the viewport in that axis. Anything else has zero size.
func (e *Element) BoundingRect() (dom.Rect, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	decls := parseDeclarations(attr(e.node, "style"))
	vp := e.doc.viewport

	top, right, bottom, left := decls.get("top"), decls.get("right"), decls.get("bottom"), decls.get("left")
	if inset := strings.Fields(decls.get("inset")); len(inset) > 0 {
		top, right, bottom, left = expandBox(inset)
	}

	var r dom.Rect
	r.X, _ = resolveLength(left, vp, vp.Width)
	r.Y, _ = resolveLength(top, vp, vp.Height)

	if w, ok := resolveLength(decls.get("width"), vp, vp.Width); ok {
		r.Width = w
	} else if isZero(left) && isZero(right) {
		r.Width = vp.Width
	}
	if h, ok := resolveLength(decls.get("height"), vp, vp.Height); ok {
		r.Height = h
	} else if isZero(top) && isZero(bottom) {
		r.Height = vp.Height
	}
	return r, nil
}

// Children implements dom.Element.
func (e *Element) Children() ([]dom.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var out []dom.Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out, nil
}

// Remove implements dom.Element. The document element cannot be detached.
func (e *Element) Remove() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	p := e.node.Parent
	if p == nil || p.Type == html.DocumentNode {
		return dom.ErrDetachDenied
	}
	p.RemoveChild(e.node)
	return nil
}

// SetImportantStyle implements dom.Element by rewriting the style attribute.
func (e *Element) SetImportantStyle(prop, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	decls := parseDeclarations(attr(e.node, "style"))
	decls.set(prop, value+" !important")
	setAttr(e.node, "style", decls.String())
	return nil
}

type declaration struct {
	prop  string
	value string
}

type declarations []declaration

func parseDeclarations(style string) declarations {
	var out declarations
	for _, part := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" {
			continue
		}
		out.set(prop, value)
	}
	return out
}

// get returns the lower-cased value without any !important flag.
func (ds declarations) get(prop string) string {
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].prop == prop {
			v := strings.ToLower(ds[i].value)
			v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
			return v
		}
	}
	return ""
}

func (ds *declarations) set(prop, value string) {
	prop = strings.ToLower(prop)
	for i := range *ds {
		if (*ds)[i].prop == prop {
			(*ds)[i].value = value
			return
		}
	}
	*ds = append(*ds, declaration{prop: prop, value: value})
}

func (ds declarations) String() string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, d.prop+": "+d.value)
	}
	return strings.Join(parts, "; ")
}

// expandBox applies the CSS 1-4 value shorthand order.
func expandBox(v []string) (top, right, bottom, left string) {
	switch len(v) {
	case 1:
		return v[0], v[0], v[0], v[0]
	case 2:
		return v[0], v[1], v[0], v[1]
	case 3:
		return v[0], v[1], v[2], v[1]
	default:
		return v[0], v[1], v[2], v[3]
	}
}

func isZero(v string) bool {
	if v == "" {
		return false
	}
	n, ok := resolveLength(v, dom.Viewport{}, 0)
	return ok && n == 0
}

// resolveLength converts a CSS length to pixels. percentBase is the
// containing dimension used for percentages.
func resolveLength(v string, vp dom.Viewport, percentBase float64) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "auto" {
		return 0, false
	}

	unit := ""
	num := v
	for _, u := range []string{"px", "%", "vw", "vh"} {
		if strings.HasSuffix(v, u) {
			unit = u
			num = strings.TrimSuffix(v, u)
			break
		}
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "%":
		return f * percentBase / 100, true
	case "vw":
		return f * vp.Width / 100, true
	case "vh":
		return f * vp.Height / 100, true
	case "":
		// Unitless lengths are only valid for zero.
		if f != 0 {
			return 0, false
		}
	}
	return f, true
}
