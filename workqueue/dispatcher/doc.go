/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher runs webhook tasks on a bounded worker pool.
//
// Submit never blocks the webhook handler; a full queue drops the task and
// the delivery can be redelivered from GitHub. Failed tasks are requeued
// with a growing delay when their error is retryable (rate limits and
// timeouts) and logged otherwise.
//
//	d, err := dispatcher.New(srv.RunTask, dispatcher.WithConcurrency(4))
//	if err != nil {
//		return err
//	}
//	go d.Run(ctx)
//	http.Handle("POST /webhooks/github", webhook.NewHandler(secret, router, d))
package dispatcher
