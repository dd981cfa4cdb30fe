/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook authenticates and routes repository host deliveries.
//
// Every delivery is checked against the shared secret with Verify before
// any byte of it is parsed. Verified deliveries that mention the bot
// become Tasks handed to a TaskSink. Event types the Router does not know
// are acknowledged and dropped.
package webhook
