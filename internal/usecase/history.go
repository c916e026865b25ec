package usecase

// HistoryCapacity bounds the transcript history.
const HistoryCapacity = 10

// History keeps the most recent final transcripts, oldest first.
type History struct {
	capacity int
	entries  []string
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{capacity: capacity}
}

// Add appends text and evicts the oldest entries past capacity.
func (h *History) Add(text string) {
	h.entries = append(h.entries, text)
	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the history.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Recent returns up to n of the newest entries, oldest first.
func (h *History) Recent(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	return append([]string(nil), h.entries[len(h.entries)-n:]...)
}
