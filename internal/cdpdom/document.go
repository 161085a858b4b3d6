// Package cdpdom adapts a live browser page to the dom model over the
// Chrome DevTools Protocol.
package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/dom"
)

// DefaultBatchWindow is how long insertions are coalesced before a batch is
// delivered, approximating one MutationObserver callback.
const DefaultBatchWindow = 50 * time.Millisecond

const elementNode = 1

// Document is a live page implementing dom.Document.
type Document struct {
	page   *rod.Page
	window time.Duration

	mu     sync.Mutex
	closed bool
	cancel []context.CancelFunc

	// Replaced in tests.
	resolveNodes func(context.Context, []*proto.DOMNode) dom.Batch
	watchSubtree func(context.Context, *proto.DOMNode)
}

// insertion is a node reported by the DOM domain. Nodes from setChildNodes
// arrive with their subtree already pushed, so only fresh insertions need
// their children requested.
type insertion struct {
	node     *proto.DOMNode
	inserted bool
}

// Option configures a Document.
type Option func(*Document)

// WithBatchWindow overrides DefaultBatchWindow.
func WithBatchWindow(d time.Duration) Option {
	return func(doc *Document) {
		if d > 0 {
			doc.window = d
		}
	}
}

// New wraps page. The page's own context bounds every CDP call.
func New(page *rod.Page, opts ...Option) *Document {
	d := &Document{page: page, window: DefaultBatchWindow}
	d.resolveNodes = d.resolve
	d.watchSubtree = d.requestChildren
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root implements dom.Document.
func (d *Document) Root() dom.Element {
	return d.evalElement(`() => document.documentElement`)
}

// Body implements dom.Document.
func (d *Document) Body() dom.Element {
	return d.evalElement(`() => document.body`)
}

func (d *Document) evalElement(js string) dom.Element {
	obj, err := d.page.Evaluate(rod.Eval(js).ByObject())
	if err != nil {
		log.Debug().Err(err).Msg("Failed to resolve document element")
		return nil
	}
	if obj.ObjectID == "" {
		return nil
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to wrap document element")
		return nil
	}
	wrapped, err := wrap(el)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to describe document element")
		return nil
	}
	return wrapped
}

// Viewport implements dom.Document.
func (d *Document) Viewport() (dom.Viewport, error) {
	res, err := d.page.Eval(`() => ({
		width: window.innerWidth || document.documentElement.clientWidth,
		height: window.innerHeight || document.documentElement.clientHeight
	})`)
	if err != nil {
		return dom.Viewport{}, fmt.Errorf("failed to read viewport: %w", err)
	}
	return dom.Viewport{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

// Ready implements dom.Document by polling document.readyState until the
// tree has been parsed.
func (d *Document) Ready(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
		if err == nil && res.Value.Str() != "loading" {
			return nil
		}
		if err != nil {
			log.Debug().Err(err).Msg("readyState probe failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Observe implements dom.Document. Insertions are reported by the DOM domain
// as childNodeInserted events. Chrome only emits those below nodes whose
// children it has pushed, so the whole tree is requested first and every
// inserted node then has its own subtree requested. The resulting
// setChildNodes events are delivered as insertions too. A document
// replacement (navigation) ends the subscription.
func (d *Document) Observe(ctx context.Context) (<-chan dom.Batch, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("document is closed")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = append(d.cancel, cancel)
	d.mu.Unlock()

	page := d.page.Context(ctx)

	if err := (proto.DOMEnable{}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("DOM.enable: %w", err)
	}
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("DOM.getDocument: %w", err)
	}

	raw := make(chan insertion, 256)
	out := make(chan dom.Batch, 16)

	wait := page.EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			enqueue(ctx, raw, insertedNodes(e)...)
		},
		func(e *proto.DOMSetChildNodes) {
			enqueue(ctx, raw, pushedNodes(e)...)
		},
		func(e *proto.DOMDocumentUpdated) bool {
			log.Debug().Msg("Document replaced, ending mutation watch")
			return true
		},
	)

	go func() {
		wait()
		cancel()
	}()

	go d.batch(ctx, raw, out)

	return out, nil
}

func insertedNodes(e *proto.DOMChildNodeInserted) []insertion {
	if e.Node == nil || e.Node.NodeType != elementNode {
		return nil
	}
	return []insertion{{node: e.Node, inserted: true}}
}

// pushedNodes returns the element children of a setChildNodes event. Their
// descendants are reached by the scanner.
func pushedNodes(e *proto.DOMSetChildNodes) []insertion {
	var result []insertion
	for _, n := range e.Nodes {
		if n != nil && n.NodeType == elementNode {
			result = append(result, insertion{node: n})
		}
	}
	return result
}

func enqueue(ctx context.Context, raw chan<- insertion, items ...insertion) {
	for _, item := range items {
		select {
		case raw <- item:
		case <-ctx.Done():
			return
		}
	}
}

// requestChildren asks Chrome to push the subtree of n so that later
// insertions below it raise events.
func (d *Document) requestChildren(ctx context.Context, n *proto.DOMNode) {
	depth := -1
	err := proto.DOMRequestChildNodes{NodeID: n.NodeID, Depth: &depth, Pierce: true}.Call(d.page.Context(ctx))
	if err != nil {
		log.Debug().Err(err).Str("tag", n.NodeName).Msg("Failed to request child nodes")
	}
}

// batch coalesces raw insertions into batches and resolves them to elements.
func (d *Document) batch(ctx context.Context, raw <-chan insertion, out chan<- dom.Batch) {
	defer close(out)

	var pending []*proto.DOMNode
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := d.resolveNodes(ctx, pending)
		pending = pending[:0]
		if len(batch.Added) == 0 {
			return
		}
		select {
		case out <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case item := <-raw:
			if item.inserted {
				d.watchSubtree(ctx, item.node)
			}
			pending = append(pending, item.node)
			if timer == nil {
				timer = time.NewTimer(d.window)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			flush()
		}
	}
}

func (d *Document) resolve(ctx context.Context, nodes []*proto.DOMNode) dom.Batch {
	page := d.page.Context(ctx)
	var batch dom.Batch
	for _, n := range nodes {
		el, err := page.ElementFromNode(n)
		if err != nil {
			// Already gone again; nothing to scan.
			log.Debug().Err(err).Str("tag", n.NodeName).Msg("Inserted node no longer resolvable")
			continue
		}
		batch.Added = append(batch.Added, &Element{
			el:      el,
			id:      dom.NodeID(n.BackendNodeID),
			tagName: n.NodeName,
		})
	}
	return batch
}

// Close ends every subscription.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, cancel := range d.cancel {
		cancel()
	}
	d.cancel = nil
}
