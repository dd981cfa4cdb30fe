/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudetool converts toolcall definitions, calls and results to
// and from the Anthropic SDK types.
package claudetool
