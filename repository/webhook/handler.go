/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// MaxBodyBytes caps the size of a delivery.
const MaxBodyBytes = 25 << 20

// SignatureHeader carries the hex HMAC of the raw body.
const SignatureHeader = "X-Hub-Signature-256"

// TaskSink receives tasks from verified deliveries.
type TaskSink interface {
	Submit(ctx context.Context, task Task) error
}

// Handler authenticates deliveries and forwards the tasks they request.
type Handler struct {
	secret string
	router Router
	sink   TaskSink
}

// NewHandler creates a Handler. Requests are rejected when secret is empty.
func NewHandler(secret string, router Router, sink TaskSink) *Handler {
	return &Handler{secret: secret, router: router, sink: sink}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventType := github.WebHookType(r)
	delivery := github.DeliveryID(r)
	log := clog.FromContext(ctx).With("event", eventType).With("delivery", delivery)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.With("error", err.Error()).Warn("Reading webhook body")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !Verify(body, r.Header.Get(SignatureHeader), h.secret) {
		log.Warn("Rejected webhook with invalid signature")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !Handled[eventType] {
		log.Debug("Ignoring unhandled event type")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx = clog.WithLogger(ctx, log)
	task, err := h.router.Route(ctx, eventType, body)
	if err != nil {
		log.With("error", err.Error()).Warn("Ignoring malformed delivery")
		w.WriteHeader(http.StatusOK)
		return
	}
	if task != nil {
		task.DeliveryID = delivery
		if err := h.sink.Submit(ctx, *task); err != nil {
			log.With("error", err.Error()).Error("Dropping webhook task")
		} else {
			log.With("repo", task.Repo.String()).With("kind", string(task.Kind)).Info("Queued webhook task")
		}
	}
	w.WriteHeader(http.StatusOK)
}
