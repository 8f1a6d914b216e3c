package cricbuzz

import (
	"fmt"
	"sync"
	"time"
)

// TraceEntry records one HTTP attempt.
type TraceEntry struct {
	Seq      int           `json:"seq"`
	At       time.Time     `json:"at"`
	Endpoint string        `json:"endpoint"`
	URL      string        `json:"url"`
	Attempt  int           `json:"attempt"`
	Status   int           `json:"status"`
	Kind     Kind          `json:"kind"`
	Duration time.Duration `json:"duration_ns"`
}

// String renders the entry as a one-line log.
func (e TraceEntry) String() string {
	return fmt.Sprintf("[API %d] GET %s attempt=%d status=%d kind=%s in %s",
		e.Seq, e.URL, e.Attempt, e.Status, e.Kind, e.Duration.Round(time.Millisecond))
}

// Trace is a bounded ring of the most recent calls.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
	next    int
	full    bool
	seq     int
}

// NewTrace creates a ring holding at most size entries.
func NewTrace(size int) *Trace {
	if size <= 0 {
		size = 50
	}
	return &Trace{entries: make([]TraceEntry, size)}
}

// Record appends e, evicting the oldest entry when full, and returns its
// sequence number.
func (t *Trace) Record(e TraceEntry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	e.Seq = t.seq
	t.entries[t.next] = e
	t.next = (t.next + 1) % len(t.entries)
	if t.next == 0 {
		t.full = true
	}
	return e.Seq
}

// Entries returns the retained entries, oldest first.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		out := make([]TraceEntry, t.next)
		copy(out, t.entries[:t.next])
		return out
	}
	out := make([]TraceEntry, 0, len(t.entries))
	out = append(out, t.entries[t.next:]...)
	out = append(out, t.entries[:t.next]...)
	return out
}
