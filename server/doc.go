/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package server exposes agent sessions over HTTP.
//
// POST /v1/agent runs one session and streams its frames as NDJSON. The
// request is fully validated, the credential resolved and the model
// selected before the first byte is written, so those failures still
// carry an HTTP status:
//
//	400  malformed body, unknown role, bad repository name
//	401  the installation token could not be issued
//	404  the requested branch does not exist
//	500  missing configuration, such as a key for the selected model
//
// The X-Session-Id response header names the session; DELETE
// /v1/sessions/{id} cancels it at the next step boundary. Webhook tasks run
// through RunTask and answer with an issue comment. Config.Evals, when set,
// sees every completed session trace.
package server
