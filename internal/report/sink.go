// Package report collects consistency findings per session and
// persists them, along with session facts, to a SQLite database.
package report

import (
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/tracecap/internal/check"
)

// Sink accumulates findings keyed by session token. Safe for
// concurrent use: the checker appends while the CLI reads a finished
// session's findings for display.
type Sink struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]check.Finding
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{entries: make(map[uuid.UUID][]check.Finding)}
}

// Add appends findings under the session token. Appending to a token
// never overwrites earlier findings for the same session.
func (s *Sink) Add(session uuid.UUID, findings ...check.Finding) {
	if len(findings) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[session] = append(s.entries[session], findings...)
}

// Get returns a copy of the findings recorded for the session token.
func (s *Sink) Get(session uuid.UUID) []check.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.entries[session]
	out := make([]check.Finding, len(found))
	copy(out, found)
	return out
}

// Clear drops all findings for the session token.
func (s *Sink) Clear(session uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, session)
}

// Sessions lists the tokens with recorded findings.
func (s *Sink) Sessions() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}
