// Package storage holds the live environmental reading and hands out
// point-in-time snapshots of it.
//
// MemoryStore is the single authoritative copy of the current reading. Both
// ingestion paths write to it through Update and the polling consumer reads
// it through Read. RedisMirror optionally exports the latest snapshot so that
// other processes can observe it; it is never read back on startup.
package storage

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// Sources recorded on snapshots.
const (
	SourceDefault = "default"
	SourceHTTP    = "http"
)

// Snapshot is a detached copy of the live reading. It shares no memory with
// the store and is never mutated after being handed out.
type Snapshot struct {
	// Values maps every schema metric name to its value. Int metrics hold
	// whole numbers.
	Values map[string]float64 `json:"values"`
	// UpdatedAt is the time the reading was written by the store.
	UpdatedAt time.Time `json:"updatedAt"`
	// Source names the ingestion path that produced the reading.
	Source string `json:"source"`
	// Version counts completed updates; 0 means the startup defaults.
	Version uint64 `json:"version"`
}

// Value returns the value of a metric and whether it is present.
func (s Snapshot) Value(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Values = maps.Clone(s.Values)
	return s
}

// Store is the contract both ingestion paths and the polling consumer rely on.
type Store interface {
	// Update replaces the whole live reading. values must carry every schema
	// metric and nothing else.
	Update(source string, values map[string]any) (Snapshot, error)
	// Read returns a consistent copy of the current reading.
	Read() Snapshot
}

// Mirror receives snapshots for export outside the process.
type Mirror interface {
	Put(ctx context.Context, snapshot Snapshot) error
}

// Reasons an update can be rejected.
const (
	ReasonMissingField   = "missing field"
	ReasonTypeConversion = "type conversion"
	ReasonUnknownField   = "unknown field"
)

// RejectedUpdate is returned by Update when the values do not form a complete,
// convertible reading. The live reading is left untouched.
type RejectedUpdate struct {
	Reason string
	Field  string
	Err    error
}

func (e *RejectedUpdate) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update rejected: %s %q: %v", e.Reason, e.Field, e.Err)
	}
	return fmt.Sprintf("update rejected: %s %q", e.Reason, e.Field)
}

func (e *RejectedUpdate) Unwrap() error { return e.Err }
