/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"maps"
	"path"
	"slices"
	"sync"

	"chainguard.dev/repoagent/agents/agenttrace"
)

// Observer receives the verdicts of checks run against completed sessions.
type Observer interface {
	// Fail marks the check as failed for the current trace. Called at most
	// once per trace.
	Fail(string)
	// Log records a message without failing.
	Log(string)
	// Grade assigns a score between 0 and 1.
	Grade(score float64, reasoning string)
	// Increment is called once for every trace checked.
	Increment()
	// Total returns the number of traces checked.
	Total() int64
}

// Check inspects one completed session trace.
type Check func(Observer, *agenttrace.Trace)

// Inject binds obs to check.
func Inject(obs Observer, check Check) func(*agenttrace.Trace) {
	return func(trace *agenttrace.Trace) {
		obs.Increment()
		check(obs, trace)
	}
}

// NamespacedObserver gives each check its own Observer under a shared root.
type NamespacedObserver[T Observer] struct {
	name     string
	inner    T
	factory  func(string) T
	children map[string]*NamespacedObserver[T]
	mu       sync.Mutex
}

// NewNamespacedObserver creates the root namespace "/".
func NewNamespacedObserver[T Observer](factory func(string) T) *NamespacedObserver[T] {
	return &NamespacedObserver[T]{
		name:     "/",
		inner:    factory("/"),
		factory:  factory,
		children: make(map[string]*NamespacedObserver[T]),
	}
}

func (n *NamespacedObserver[T]) Fail(msg string)                    { n.inner.Fail(msg) }
func (n *NamespacedObserver[T]) Log(msg string)                     { n.inner.Log(msg) }
func (n *NamespacedObserver[T]) Grade(score float64, reason string) { n.inner.Grade(score, reason) }
func (n *NamespacedObserver[T]) Increment()                         { n.inner.Increment() }
func (n *NamespacedObserver[T]) Total() int64                       { return n.inner.Total() }

// Child returns the namespace name below n, creating it on first use.
func (n *NamespacedObserver[T]) Child(name string) *NamespacedObserver[T] {
	n.mu.Lock()
	defer n.mu.Unlock()
	if child, ok := n.children[name]; ok {
		return child
	}
	childPath := path.Join(n.name, name)
	child := &NamespacedObserver[T]{
		name:     childPath,
		inner:    n.factory(childPath),
		factory:  n.factory,
		children: make(map[string]*NamespacedObserver[T]),
	}
	n.children[name] = child
	return child
}

// Walk visits n and then its children depth first, in name order.
func (n *NamespacedObserver[T]) Walk(visitor func(string, T)) {
	visitor(n.name, n.inner)

	n.mu.Lock()
	names := slices.Sorted(maps.Keys(n.children))
	children := make([]*NamespacedObserver[T], 0, len(names))
	for _, name := range names {
		children = append(children, n.children[name])
	}
	n.mu.Unlock()

	for _, child := range children {
		child.Walk(visitor)
	}
}

// BuildTracer runs every check against each completed trace, reporting to
// a child of observer named after the check.
func BuildTracer[O Observer](observer *NamespacedObserver[O], checks map[string]Check) agenttrace.Tracer {
	bound := make([]func(*agenttrace.Trace), 0, len(checks))
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		bound = append(bound, Inject(observer.Child(name), checks[name]))
	}
	return agenttrace.ByCode(func(trace *agenttrace.Trace) {
		for _, fn := range bound {
			fn(trace)
		}
	})
}
