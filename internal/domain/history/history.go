// Package history provides the bounded play-history ledger for a channel.
package history

import (
	"time"

	"github.com/ruohki/krelez/internal/domain/track"
)

// DefaultCapacity is the number of superseded tracks kept per channel.
const DefaultCapacity = 3

// startedAtSkew is subtracted from the detection time of an archived entry so
// that it sorts strictly before the still-playing current track in any list
// mixing both. The true upstream transition instant is unknown to us; this is
// an ordering affordance, not a measurement.
const startedAtSkew = time.Second

// Entry is one archived play.
type Entry struct {
	Track     track.Track
	StartedAt time.Time
}

// Ledger is a bounded, most-recent-first record of superseded tracks.
// It is not safe for concurrent use; the owning controller serializes access.
type Ledger struct {
	capacity int
	entries  []Entry
}

// NewLedger creates a ledger with the given capacity. A capacity below one
// falls back to DefaultCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity}
}

// Record archives a track that was current until observedAt. Oldest entries
// beyond capacity are dropped and never resurrected.
func (l *Ledger) Record(prev track.Track, observedAt time.Time) {
	e := Entry{Track: prev, StartedAt: observedAt.Add(-startedAtSkew)}
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns a copy of the ledger, most recent first.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of archived entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}
