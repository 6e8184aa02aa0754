package chat

import "sync"

// History is the append-only turn log of one page session. It lives in
// memory only.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewHistory() *History {
	return &History{turns: make([]Turn, 0, 16)}
}

// Append adds turns in the given order.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
}

// Snapshot returns a copy of the log, oldest first. The result is never nil
// so it encodes as an empty JSON array.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]Turn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
