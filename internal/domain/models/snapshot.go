package models

import (
	"sort"
	"time"
)

// SnapshotEntry is one market's frozen result: its classification plus any
// signals detected in the same cycle.
type SnapshotEntry struct {
	Classification
	Signals []Signal `json:"signals,omitempty"`
}

// Snapshot is the immutable result of one full evaluation cycle. It is
// published atomically and superseded, never mutated, so a caller that holds
// a reference keeps a consistent view across later refreshes.
type Snapshot struct {
	takenAt time.Time
	entries map[string]SnapshotEntry
	symbols []string
}

// NewSnapshot freezes the given entries. The input map is copied so the
// caller cannot alias the snapshot's state.
func NewSnapshot(takenAt time.Time, entries map[string]SnapshotEntry) *Snapshot {
	frozen := make(map[string]SnapshotEntry, len(entries))
	symbols := make([]string, 0, len(entries))
	for sym, e := range entries {
		frozen[sym] = e
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return &Snapshot{takenAt: takenAt, entries: frozen, symbols: symbols}
}

// TakenAt returns the cycle timestamp.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Len returns the number of classified markets.
func (s *Snapshot) Len() int { return len(s.entries) }

// Get returns the entry for a symbol.
func (s *Snapshot) Get(symbol string) (SnapshotEntry, bool) {
	e, ok := s.entries[symbol]
	return e, ok
}

// Symbols returns all classified symbols in lexical order.
func (s *Snapshot) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Entries returns all entries ordered by band priority, then proximity to
// the nearest structural level, then symbol.
func (s *Snapshot) Entries() []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(s.entries))
	for _, sym := range s.symbols {
		out = append(out, s.entries[sym])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Band.Rank(), out[j].Band.Rank(); ri != rj {
			return ri < rj
		}
		if ni, nj := out[i].NearestLevelPct(), out[j].NearestLevelPct(); ni != nj {
			return ni < nj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// BandCounts returns the number of markets per band.
func (s *Snapshot) BandCounts() map[Band]int {
	out := make(map[Band]int, 3)
	for _, e := range s.entries {
		out[e.Band]++
	}
	return out
}

// Signals returns every signal in the snapshot, grouped by symbol order.
func (s *Snapshot) Signals() []Signal {
	var out []Signal
	for _, sym := range s.symbols {
		out = append(out, s.entries[sym].Signals...)
	}
	return out
}
