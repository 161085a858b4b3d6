// Package htmldoc adapts a parsed HTML tree to the dom model.
//
// There is no layout engine: computed style comes from inline style
// declarations and geometry is resolved from inline width/height against the
// configured viewport. That is enough for server-side cleaning of captured
// pages and for exercising the engine in tests.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// DefaultViewport matches the browser window size used by the pool.
var DefaultViewport = dom.Viewport{Width: 1920, Height: 1080}

// Document is a mutable HTML tree implementing dom.Document.
// All tree access is serialised by mu so that Insert may be called from a
// goroutine other than the engine's.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	viewport dom.Viewport
	ids      map[*html.Node]dom.NodeID
	nextID   dom.NodeID

	obsMu     sync.Mutex
	observers map[*subscription]struct{}
	closed    bool
}

type subscription struct {
	ch   chan dom.Batch
	done <-chan struct{}
}

// Parse reads an HTML document.
func Parse(r io.Reader, viewport dom.Viewport) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	if viewport.Width <= 0 || viewport.Height <= 0 {
		viewport = DefaultViewport
	}
	return &Document{
		root:      root,
		viewport:  viewport,
		ids:       make(map[*html.Node]dom.NodeID),
		observers: make(map[*subscription]struct{}),
	}, nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s string, viewport dom.Viewport) (*Document, error) {
	return Parse(strings.NewReader(s), viewport)
}

// Root implements dom.Document.
func (d *Document) Root() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// Body implements dom.Document.
func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := findElement(d.root, func(n *html.Node) bool { return n.Data == "body" }); n != nil {
		return d.wrap(n)
	}
	return nil
}

// GetElementByID returns the first element with the given id, or nil.
func (d *Document) GetElementByID(id string) dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := findElement(d.root, func(n *html.Node) bool { return attr(n, "id") == id })
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// Viewport implements dom.Document.
func (d *Document) Viewport() (dom.Viewport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport, nil
}

// SetViewport changes the viewport, as a window resize would.
func (d *Document) SetViewport(v dom.Viewport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport = v
}

// Ready implements dom.Document. A parsed document is always ready.
func (d *Document) Ready(ctx context.Context) error {
	return ctx.Err()
}

// Observe implements dom.Document.
func (d *Document) Observe(ctx context.Context) (<-chan dom.Batch, error) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("document is closed")
	}

	sub := &subscription{ch: make(chan dom.Batch, 16), done: ctx.Done()}
	d.observers[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		d.obsMu.Lock()
		defer d.obsMu.Unlock()
		if _, ok := d.observers[sub]; ok {
			delete(d.observers, sub)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

// Close tears the document down and ends every subscription.
func (d *Document) Close() {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for sub := range d.observers {
		delete(d.observers, sub)
		close(sub.ch)
	}
}

// Insert parses fragment in the context of parent, appends the resulting
// nodes to it and notifies observers of the inserted elements.
func (d *Document) Insert(parent dom.Element, fragment string) ([]dom.Element, error) {
	p, ok := parent.(*Element)
	if !ok || p.doc != d {
		return nil, fmt.Errorf("parent does not belong to this document")
	}

	d.mu.Lock()
	nodes, err := html.ParseFragment(strings.NewReader(fragment), p.node)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	added := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		p.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	d.mu.Unlock()

	if len(added) > 0 {
		d.publish(dom.Batch{Added: added})
	}
	return added, nil
}

func (d *Document) publish(batch dom.Batch) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	for sub := range d.observers {
		select {
		case sub.ch <- batch:
		case <-sub.done:
		}
	}
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// HTML returns the current tree as a string.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// wrap must be called with mu held.
func (d *Document) wrap(n *html.Node) *Element {
	if _, ok := d.ids[n]; !ok {
		d.nextID++
		d.ids[n] = d.nextID
	}
	return &Element{doc: d, node: n}
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
