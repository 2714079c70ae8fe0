package storage

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/envmon/pkg/schema"
)

// MemoryStore owns the live reading. It is safe for concurrent use by
// multiple goroutines.
//
// Writers are serialized; readers proceed concurrently with each other but
// never while a write is in progress. The lock is held only while the value
// map is swapped in or copied out: conversion and validation happen before
// it is taken.
type MemoryStore struct {
	schema schema.Schema
	now    func() time.Time

	mu        sync.RWMutex
	values    map[string]float64
	updatedAt time.Time
	source    string
	version   uint64
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces time.Now as the source of update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a store whose live reading starts from the schema
// defaults. The schema must already be validated.
func NewMemoryStore(s schema.Schema, opts ...Option) *MemoryStore {
	store := &MemoryStore{
		schema: s,
		now:    time.Now,
		source: SourceDefault,
	}
	for _, opt := range opts {
		opt(store)
	}

	store.values = s.Defaults()
	store.updatedAt = store.now()

	return store
}

// Schema returns the schema the store was built with.
func (s *MemoryStore) Schema() schema.Schema {
	return s.schema
}

// Update replaces the live reading with values as a single atomic operation.
//
// Every key must name a schema metric and every schema metric must be present.
// Each value is converted to its declared kind. On any failure a
// *RejectedUpdate is returned and the live reading is unchanged. The update
// timestamp is the store clock at write time.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) Update(source string, values map[string]any) (Snapshot, error) {
	next, err := s.convert(values)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.values = next
	s.updatedAt = s.now()
	s.source = source
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return snap, nil
}

// Read returns a detached copy of the current reading.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *MemoryStore) snapshotLocked() Snapshot {
	return Snapshot{
		Values:    maps.Clone(s.values),
		UpdatedAt: s.updatedAt,
		Source:    s.source,
		Version:   s.version,
	}
}

// convert validates and converts values into a fresh map. It never touches
// store state, so it runs without the lock.
func (s *MemoryStore) convert(values map[string]any) (map[string]float64, error) {
	if unknown := s.unknownFields(values); len(unknown) > 0 {
		return nil, &RejectedUpdate{Reason: ReasonUnknownField, Field: unknown[0]}
	}

	next := make(map[string]float64, len(s.schema))
	for _, def := range s.schema {
		raw, ok := values[def.Name]
		if !ok {
			return nil, &RejectedUpdate{Reason: ReasonMissingField, Field: def.Name}
		}
		v, err := def.Convert(raw)
		if err != nil {
			return nil, &RejectedUpdate{Reason: ReasonTypeConversion, Field: def.Name, Err: err}
		}
		next[def.Name] = v
	}

	return next, nil
}

func (s *MemoryStore) unknownFields(values map[string]any) []string {
	var unknown []string
	for name := range values {
		if _, ok := s.schema.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
