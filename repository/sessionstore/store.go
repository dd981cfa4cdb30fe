/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	// DefaultTTL is how long an untouched entry lives.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxEntries bounds the number of live entries.
	DefaultMaxEntries = 1024
)

// Store holds per-session values with a TTL and a size bound. Entries are
// refreshed by Get. When an entry is evicted, by expiry or to make room,
// the OnEvict callback receives it.
type Store[V any] struct {
	ttl        time.Duration
	maxEntries int
	onEvict    func(id string, v V)
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
}

type entry[V any] struct {
	value   V
	touched time.Time
}

// Option configures a Store.
type Option[V any] func(*Store[V]) error

// WithTTL sets the idle lifetime of entries.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(s *Store[V]) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive, got %v", ttl)
		}
		s.ttl = ttl
		return nil
	}
}

// WithMaxEntries sets the entry bound.
func WithMaxEntries[V any](n int) Option[V] {
	return func(s *Store[V]) error {
		if n <= 0 {
			return fmt.Errorf("max entries must be positive, got %d", n)
		}
		s.maxEntries = n
		return nil
	}
}

// WithOnEvict registers a callback for evicted entries. It runs without
// the store's lock held.
func WithOnEvict[V any](fn func(id string, v V)) Option[V] {
	return func(s *Store[V]) error {
		s.onEvict = fn
		return nil
	}
}

// WithClock overrides the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(s *Store[V]) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// New creates a Store.
func New[V any](opts ...Option[V]) (*Store[V], error) {
	s := &Store[V]{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		entries:    make(map[string]*entry[V]),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}

type evicted[V any] struct {
	id    string
	value V
}

// Put stores v under id, replacing any existing entry. Expired entries are
// dropped first; if the store is still full the least recently used entry
// is evicted.
func (s *Store[V]) Put(id string, v V) {
	s.mu.Lock()
	now := s.now()
	out := s.expireLocked(now)
	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.maxEntries {
		if oldest, ok := s.oldestLocked(); ok {
			out = append(out, evicted[V]{id: oldest, value: s.entries[oldest].value})
			delete(s.entries, oldest)
		}
	}
	s.entries[id] = &entry[V]{value: v, touched: now}
	s.mu.Unlock()

	s.notify(out)
}

// ErrFull is returned by Add when the store holds its maximum number of
// live entries.
var ErrFull = errors.New("session store is full")

// Add stores v under a new or existing id. Unlike Put it never evicts a
// live entry to make room; it returns ErrFull instead.
func (s *Store[V]) Add(id string, v V) error {
	s.mu.Lock()
	now := s.now()
	out := s.expireLocked(now)
	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.maxEntries {
		s.mu.Unlock()
		s.notify(out)
		return ErrFull
	}
	s.entries[id] = &entry[V]{value: v, touched: now}
	s.mu.Unlock()

	s.notify(out)
	return nil
}

// Get returns the live value for id and refreshes its TTL.
func (s *Store[V]) Get(id string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero V
	e, ok := s.entries[id]
	if !ok {
		return zero, false
	}
	now := s.now()
	if now.Sub(e.touched) > s.ttl {
		return zero, false
	}
	e.touched = now
	return e.value, true
}

// Delete removes id without invoking OnEvict and returns the removed value.
func (s *Store[V]) Delete(id string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.entries, id)
	return e.value, true
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts expired entries and returns how many were removed.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	out := s.expireLocked(s.now())
	s.mu.Unlock()

	s.notify(out)
	return len(out)
}

// Run sweeps every interval until ctx is done.
func (s *Store[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				clog.FromContext(ctx).With("evicted", n).Info("Swept expired sessions")
			}
		}
	}
}

func (s *Store[V]) expireLocked(now time.Time) []evicted[V] {
	var out []evicted[V]
	for id, e := range s.entries {
		if now.Sub(e.touched) > s.ttl {
			out = append(out, evicted[V]{id: id, value: e.value})
			delete(s.entries, id)
		}
	}
	return out
}

func (s *Store[V]) oldestLocked() (string, bool) {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for id, e := range s.entries {
		if !found || e.touched.Before(at) {
			oldest, at, found = id, e.touched, true
		}
	}
	return oldest, found
}

func (s *Store[V]) notify(out []evicted[V]) {
	if s.onEvict == nil {
		return
	}
	for _, ev := range out {
		s.onEvict(ev.id, ev.value)
	}
}
