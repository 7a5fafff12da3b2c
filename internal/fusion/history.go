package fusion

// HistoryItem is one inertial step: the corrected estimate, the prediction
// it was corrected from, and the sample that drove it.
type HistoryItem struct {
	Corrected FilterState
	Predicted FilterState
	Sample    *IMUSample
}

// History is a fixed-capacity ring of HistoryItems ordered oldest to newest.
// Pushing onto a full ring evicts the oldest entry.
type History struct {
	items []HistoryItem
	head  int // index of the oldest item
	n     int
}

// NewHistory allocates a ring holding up to capacity items (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{items: make([]HistoryItem, capacity)}
}

// Len returns the number of retained items.
func (h *History) Len() int { return h.n }

// Cap returns the maximum number of retained items.
func (h *History) Cap() int { return len(h.items) }

// Push appends item as the newest entry and reports whether the oldest
// entry was evicted to make room.
func (h *History) Push(item HistoryItem) bool {
	if h.n == len(h.items) {
		h.items[h.head] = item
		h.head = (h.head + 1) % len(h.items)
		return true
	}
	h.items[(h.head+h.n)%len(h.items)] = item
	h.n++
	return false
}

// At returns the i-th item, 0 being the oldest. It panics if i is out of range.
func (h *History) At(i int) *HistoryItem {
	if i < 0 || i >= h.n {
		panic("fusion: history index out of range")
	}
	return &h.items[(h.head+i)%len(h.items)]
}

// Newest returns the most recent item. It panics on an empty history.
func (h *History) Newest() *HistoryItem {
	return h.At(h.n - 1)
}

// PopNewest removes and returns the most recent item.
func (h *History) PopNewest() HistoryItem {
	if h.n == 0 {
		panic("fusion: pop from empty history")
	}
	idx := (h.head + h.n - 1) % len(h.items)
	item := h.items[idx]
	h.items[idx] = HistoryItem{}
	h.n--
	return item
}

// Clear drops every item.
func (h *History) Clear() {
	for i := range h.items {
		h.items[i] = HistoryItem{}
	}
	h.head, h.n = 0, 0
}

// SmoothingItems projects the retained items, oldest first, for Smooth.
func (h *History) SmoothingItems() []SmoothingItem {
	out := make([]SmoothingItem, h.n)
	for i := range out {
		item := h.At(i)
		out[i] = SmoothingItem{Corrected: item.Corrected, Predicted: item.Predicted}
	}
	return out
}
