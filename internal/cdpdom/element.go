package cdpdom

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// Element is a live element handle.
type Element struct {
	el      *rod.Element
	id      dom.NodeID
	tagName string
}

var _ dom.Element = (*Element)(nil)

func wrap(el *rod.Element) (*Element, error) {
	node, err := el.Describe(0, false)
	if err != nil {
		return nil, err
	}
	return &Element{el: el, id: dom.NodeID(node.BackendNodeID), tagName: node.NodeName}, nil
}

// NodeID implements dom.Element with the backend node id, which is stable
// for the lifetime of the document.
func (e *Element) NodeID() dom.NodeID { return e.id }

// TagName implements dom.Element.
func (e *Element) TagName() string { return e.tagName }

// ID implements dom.Element.
func (e *Element) ID() string {
	v, _ := e.Attribute("id")
	return v
}

// ClassName implements dom.Element. SVG elements expose className as an
// object, so the attribute is read instead of the property.
func (e *Element) ClassName() string {
	v, _ := e.Attribute("class")
	return v
}

// Attribute implements dom.Element.
func (e *Element) Attribute(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

// Text implements dom.Element.
func (e *Element) Text() string {
	res, err := e.el.Eval(`() => this.innerText || this.textContent || ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// ComputedStyle implements dom.Element.
func (e *Element) ComputedStyle() (dom.Style, error) {
	res, err := e.el.Eval(`() => {
		const s = window.getComputedStyle(this);
		return {
			display: s.display,
			visibility: s.visibility,
			position: s.position,
			zIndex: s.zIndex,
			overflow: s.overflow,
			overflowY: s.overflowY
		};
	}`)
	if err != nil {
		return dom.Style{}, fmt.Errorf("failed to read computed style: %w", err)
	}
	return styleFromJSON(res.Value), nil
}

func styleFromJSON(v gson.JSON) dom.Style {
	return dom.Style{
		Display:    v.Get("display").Str(),
		Visibility: v.Get("visibility").Str(),
		Position:   v.Get("position").Str(),
		ZIndex:     v.Get("zIndex").Str(),
		Overflow:   v.Get("overflow").Str(),
		OverflowY:  v.Get("overflowY").Str(),
	}
}

// BoundingRect implements dom.Element.
func (e *Element) BoundingRect() (dom.Rect, error) {
	res, err := e.el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`)
	if err != nil {
		return dom.Rect{}, fmt.Errorf("failed to read bounding rect: %w", err)
	}
	return rectFromJSON(res.Value), nil
}

func rectFromJSON(v gson.JSON) dom.Rect {
	return dom.Rect{
		X:      v.Get("x").Num(),
		Y:      v.Get("y").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}
}

// Children implements dom.Element.
func (e *Element) Children() ([]dom.Element, error) {
	children, err := e.el.Elements(":scope > *")
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	out := make([]dom.Element, 0, len(children))
	for _, c := range children {
		w, err := wrap(c)
		if err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// Remove implements dom.Element.
func (e *Element) Remove() error {
	if err := e.el.Remove(); err != nil {
		return fmt.Errorf("%w: %v", dom.ErrDetachDenied, err)
	}
	return nil
}

// SetImportantStyle implements dom.Element.
func (e *Element) SetImportantStyle(prop, value string) error {
	_, err := e.el.Eval(`(p, v) => this.style.setProperty(p, v, "important")`, prop, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", prop, err)
	}
	return nil
}
