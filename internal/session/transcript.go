package session

import (
	"sync"
	"time"
)

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// defaultTranscriptCap bounds the transcript log. Oldest entries are evicted
// past the cap; the transcript feeds displays only and never drives control
// flow.
const defaultTranscriptCap = 200

// Entry is one transcript line.
type Entry struct {
	Role string
	Text string
	At   time.Time
}

// Transcript is a bounded append-only log of the conversation. Safe for
// concurrent use.
type Transcript struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// NewTranscript creates a transcript log holding at most capacity entries.
// A capacity of zero or less uses the default.
func NewTranscript(capacity int) *Transcript {
	if capacity <= 0 {
		capacity = defaultTranscriptCap
	}
	return &Transcript{cap: capacity}
}

// Append adds one entry, evicting the oldest when the log is full.
func (t *Transcript) Append(role, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Role: role, Text: text, At: time.Now()})
	if len(t.entries) > t.cap {
		n := copy(t.entries, t.entries[len(t.entries)-t.cap:])
		t.entries = t.entries[:n]
	}
}

// Entries returns a copy of the current log, oldest first.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries held.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear discards all entries.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = t.entries[:0]
}
