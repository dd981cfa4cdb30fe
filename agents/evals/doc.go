/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package evals runs checks against completed agent sessions.

A Check inspects an agenttrace.Trace and reports through an Observer.
BuildTracer turns a set of named checks into an agenttrace.Tracer, giving
each check its own namespace so results can be told apart:

	observer := evals.NewNamespacedObserver(evals.NewMetricsObserver)
	tracer := evals.BuildTracer(observer, evals.SessionChecks())
	ctx = agenttrace.WithTracer(ctx, tracer)

MetricsObserver exports the verdicts as Prometheus counters, which makes
the checks usable as online evaluations of production sessions. Tests use
ResultCollector to read the failures back.
*/
package evals
