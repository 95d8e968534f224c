package queue

// History is an append-only record of plan attempts that have left the
// running slot, in the order they finished.
type History struct {
	entries []*HistoryEntry
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records a finished attempt at the back of the history.
func (h *History) Append(entry *HistoryEntry) {
	h.entries = append(h.entries, entry)
}

// Len returns the number of recorded entries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a snapshot slice of the history in order.
func (h *History) Entries() []*HistoryEntry {
	out := make([]*HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clear discards all history entries.
func (h *History) Clear() {
	h.entries = nil
}
