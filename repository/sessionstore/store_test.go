/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sessionstore

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(t *testing.T, clock *fakeClock, evicted *[]string, opts ...Option[string]) *Store[string] {
	t.Helper()
	opts = append(opts,
		WithClock[string](clock.now),
		WithOnEvict(func(id, _ string) { *evicted = append(*evicted, id) }),
	)
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	s := newStore(t, clock, &evicted, WithTTL[string](time.Minute))

	s.Put("a", "1")
	s.Put("b", "2")

	clock.advance(40 * time.Second)
	if v, ok := s.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a): got = %q, %v, wanted = 1, true", v, ok)
	}

	clock.advance(40 * time.Second)
	if _, ok := s.Get("b"); ok {
		t.Error("Get(b) after ttl: got = true, wanted = false")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("Get(a) refreshed by earlier Get: got = false, wanted = true")
	}

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep: got = %d, wanted = 1", n)
	}
	if diff := cmp.Diff([]string{"b"}, evicted); diff != "" {
		t.Errorf("evicted (-want +got):\n%s", diff)
	}
}

func TestMaxEntries(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	s := newStore(t, clock, &evicted, WithMaxEntries[string](2))

	s.Put("a", "1")
	clock.advance(time.Second)
	s.Put("b", "2")
	clock.advance(time.Second)
	s.Get("a")
	clock.advance(time.Second)
	s.Put("c", "3")

	if got := s.Len(); got != 2 {
		t.Errorf("Len: got = %d, wanted = 2", got)
	}
	if diff := cmp.Diff([]string{"b"}, evicted); diff != "" {
		t.Errorf("evicted (-want +got):\n%s", diff)
	}

	// Replacing an existing key does not evict.
	s.Put("c", "33")
	if len(evicted) != 1 {
		t.Errorf("evictions after replace: got = %d, wanted = 1", len(evicted))
	}
}

func TestDelete(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	s := newStore(t, clock, &evicted)

	s.Put("a", "1")
	if v, ok := s.Delete("a"); !ok || v != "1" {
		t.Errorf("Delete: got = %q, %v", v, ok)
	}
	if _, ok := s.Delete("a"); ok {
		t.Error("second Delete: got = true, wanted = false")
	}
	if len(evicted) != 0 {
		t.Errorf("Delete invoked OnEvict: %v", evicted)
	}
}

func TestSweepExpiresAll(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	s := newStore(t, clock, &evicted, WithTTL[string](time.Second))
	for _, id := range []string{"x", "y", "z"} {
		s.Put(id, id)
	}
	clock.advance(2 * time.Second)
	s.Sweep()
	sort.Strings(evicted)
	if diff := cmp.Diff([]string{"x", "y", "z"}, evicted); diff != "" {
		t.Errorf("evicted (-want +got):\n%s", diff)
	}
}

func TestOptionsValidate(t *testing.T) {
	if _, err := New(WithTTL[int](0)); err == nil {
		t.Error("WithTTL(0): got nil error")
	}
	if _, err := New(WithMaxEntries[int](-1)); err == nil {
		t.Error("WithMaxEntries(-1): got nil error")
	}
}

func TestAddRefusesWhenFull(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	s := newStore(t, clock, &evicted, WithTTL[string](time.Minute), WithMaxEntries[string](2))

	for _, id := range []string{"a", "b"} {
		if err := s.Add(id, id); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	if err := s.Add("c", "c"); !errors.Is(err, ErrFull) {
		t.Errorf("Add(c): got = %v, wanted = %v", err, ErrFull)
	}
	if err := s.Add("a", "again"); err != nil {
		t.Errorf("Add(a) replacing: got = %v, wanted = nil", err)
	}
	if len(evicted) != 0 {
		t.Errorf("evicted: got = %v, wanted = none", evicted)
	}

	clock.advance(2 * time.Minute)
	if err := s.Add("c", "c"); err != nil {
		t.Errorf("Add(c) after expiry: got = %v, wanted = nil", err)
	}
	sort.Strings(evicted)
	if diff := cmp.Diff([]string{"a", "b"}, evicted); diff != "" {
		t.Errorf("evicted (-want +got):\n%s", diff)
	}
}
