/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sessionstore keeps state for in-flight agent sessions in memory,
// bounded by idle time and entry count. A Store is constructed by the
// caller and injected where it is needed; there is no process-global table.
package sessionstore
