/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googletool converts toolcall definitions, calls and results to
// and from the Google genai types.
package googletool
