/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/websearch"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/credentials"
	"chainguard.dev/repoagent/repository/editengine"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/sessionstore"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 256
)

var (
	// errCancelledByCaller is the cause of sessions stopped through the
	// session endpoint.
	errCancelledByCaller = errors.New("session cancelled by caller")
	errSessionEvicted    = errors.New("session evicted from the session store")
)

// Credentials issues installation tokens. *credentials.Provider satisfies it.
type Credentials interface {
	Credential(ctx context.Context, installationID int64) (credentials.InstallationCredential, error)
	TokenSource(ctx context.Context, installationID int64) oauth2.TokenSource
}

// StoreFactory opens the repository host with the given token source.
type StoreFactory func(ctx context.Context, ts oauth2.TokenSource) (gitstore.Store, error)

// ModelFactory resolves a model name to a streaming model. An empty name
// never reaches it; the server substitutes DefaultModel.
type ModelFactory func(ctx context.Context, name string) (executor.Model, error)

// Config wires the server to its collaborators.
type Config struct {
	// Credentials is optional; without it requests must carry an access token.
	Credentials Credentials
	Stores      StoreFactory
	Models      ModelFactory
	// Search is optional; without it sessions offer no web search.
	Search *websearch.Client

	DefaultModel    string
	BotHandle       string
	MaxSteps        int
	ConcurrentTools int
	MatchPolicy     editengine.Policy
	StoreTimeout    time.Duration
	CommitTimeout   time.Duration
	CommitOptions   []commitbuilder.Option

	// Sessions tracks running sessions for cancellation. A store with
	// default limits is created when nil.
	Sessions *sessionstore.Store[context.CancelCauseFunc]

	// Evals receives every completed session trace alongside the log tracer.
	Evals agenttrace.Tracer
}

// Server serves the agent, session and webhook endpoints.
type Server struct {
	cfg      Config
	sessions *sessionstore.Store[context.CancelCauseFunc]
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Stores == nil:
		return nil, agenterr.Newf(agenterr.KindConfiguration, "server", "store factory is required")
	case cfg.Models == nil:
		return nil, agenterr.Newf(agenterr.KindConfiguration, "server", "model factory is required")
	case cfg.DefaultModel == "":
		return nil, agenterr.Newf(agenterr.KindConfiguration, "server", "default model is required")
	}
	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = sessionstore.New(
			sessionstore.WithTTL[context.CancelCauseFunc](defaultSessionTTL),
			sessionstore.WithMaxEntries[context.CancelCauseFunc](defaultMaxSessions),
			sessionstore.WithOnEvict(EvictSession),
		)
		if err != nil {
			return nil, agenterr.New(agenterr.KindConfiguration, "server", err)
		}
	}
	return &Server{cfg: cfg, sessions: sessions}, nil
}

// EvictSession is an OnEvict callback for session stores passed in Config.
func EvictSession(_ string, cancel context.CancelCauseFunc) { cancel(errSessionEvicted) }

// Sessions returns the store tracking running sessions.
func (s *Server) Sessions() *sessionstore.Store[context.CancelCauseFunc] { return s.sessions }

// Handler returns the routes of the server. webhooks serves GitHub
// deliveries and may be nil when the process is not installed as an app.
func (s *Server) Handler(webhooks http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/agent", instrument("agent", http.HandlerFunc(s.serveAgent)))
	mux.Handle("DELETE /v1/sessions/{id}", instrument("cancel_session", http.HandlerFunc(s.cancelSession)))
	if webhooks != nil {
		mux.Handle("POST /webhooks/github", instrument("webhooks", webhooks))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancel, ok := s.sessions.Delete(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	cancel(errCancelledByCaller)
	clog.FromContext(r.Context()).With("session_id", id).Info("Session cancelled by caller")
	w.WriteHeader(http.StatusAccepted)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    agenterr.Kind `json:"kind,omitempty"`
	Message string        `json:"message"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeErrorKind(w, code, "", message)
}

func writeErrorKind(w http.ResponseWriter, code int, kind agenterr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// statusFor maps a failure that happened before streaming started to an
// HTTP status.
func statusFor(err error) int {
	switch agenterr.KindOf(err) {
	case agenterr.KindValidation, agenterr.KindPathNotFound:
		return http.StatusBadRequest
	case agenterr.KindRefNotFound:
		return http.StatusNotFound
	case agenterr.KindCredentialUnavailable, agenterr.KindSignatureInvalid:
		return http.StatusUnauthorized
	case agenterr.KindRateLimited:
		return http.StatusTooManyRequests
	case agenterr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it to the caller. Only validation
// failures echo their detail.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusFor(err)
	kind := agenterr.KindOf(err)
	clog.FromContext(ctx).With("error", err.Error()).With("kind", string(kind)).With("status", code).Warn("Rejected agent request")
	message := http.StatusText(code)
	if code == http.StatusBadRequest {
		message = err.Error()
	}
	writeErrorKind(w, code, kind, message)
}

// admit registers a running session for cancellation. At capacity it
// refuses the new session rather than evicting a running one.
func (s *Server) admit(id string, cancel context.CancelCauseFunc) error {
	if err := s.sessions.Add(id, cancel); err != nil {
		if errors.Is(err, sessionstore.ErrFull) {
			return agenterr.Newf(agenterr.KindRateLimited, "admit_session", "too many running sessions")
		}
		return err
	}
	return nil
}
