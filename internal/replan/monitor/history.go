package monitor

import "github.com/Iron-Ham/replan/internal/replan"

// history holds a task's decisions in the order they were made. With a
// positive limit it behaves as a ring buffer that keeps the most recent
// limit decisions; otherwise it grows without bound.
type history struct {
	limit int
	items []replan.ReplanDecision
	start int // index of the oldest item once the ring is full
}

func newHistory(limit int) *history {
	if limit < 0 {
		limit = 0
	}
	return &history{limit: limit}
}

func (h *history) add(d replan.ReplanDecision) {
	if h.limit == 0 || len(h.items) < h.limit {
		h.items = append(h.items, d)
		return
	}
	h.items[h.start] = d
	h.start = (h.start + 1) % h.limit
}

func (h *history) len() int {
	return len(h.items)
}

// snapshot returns the decisions oldest first.
func (h *history) snapshot() []replan.ReplanDecision {
	out := make([]replan.ReplanDecision, 0, len(h.items))
	out = append(out, h.items[h.start:]...)
	return append(out, h.items[:h.start]...)
}
