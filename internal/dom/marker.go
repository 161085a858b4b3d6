package dom

// MarkerSet records which elements have already been handled.
// It belongs to exactly one document and is not safe for concurrent use;
// the engine touches it from a single goroutine.
type MarkerSet struct {
	seen map[NodeID]struct{}
}

// NewMarkerSet creates an empty marker set.
func NewMarkerSet() *MarkerSet {
	return &MarkerSet{seen: make(map[NodeID]struct{})}
}

// Mark stamps the element as processed.
func (m *MarkerSet) Mark(el Element) {
	m.seen[el.NodeID()] = struct{}{}
}

// Marked reports whether the element carries the processed marker.
func (m *MarkerSet) Marked(el Element) bool {
	_, ok := m.seen[el.NodeID()]
	return ok
}

// Len returns the number of marked elements.
func (m *MarkerSet) Len() int {
	return len(m.seen)
}

// Reset clears the set when the document is torn down or replaced.
func (m *MarkerSet) Reset() {
	clear(m.seen)
}
