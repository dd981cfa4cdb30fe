/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/orchestrator"
	"chainguard.dev/repoagent/agents/promptbuilder"
	"chainguard.dev/repoagent/agents/toolcall"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/credentials"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/session"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// maxRequestBytes bounds the JSON body of an agent request.
const maxRequestBytes = 4 << 20

// SessionHeader carries the id used to cancel a streaming session.
const SessionHeader = "X-Session-Id"

// ChatMessage is one prior turn of the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentRequest is the body of POST /v1/agent.
type AgentRequest struct {
	Messages       []ChatMessage        `json:"messages"`
	Repo           string               `json:"repo"`
	Branch         string               `json:"branch,omitempty"`
	InstallationID int64                `json:"installation_id,omitempty"`
	AccessToken    string               `json:"access_token,omitempty"`
	Model          string               `json:"model,omitempty"`
	Todos          []promptbuilder.Todo `json:"todos,omitempty"`
}

// history converts the request messages into the conversation passed to
// the model. The last message must come from the user.
func (r AgentRequest) history() ([]executor.Message, error) {
	if len(r.Messages) == 0 {
		return nil, agenterr.Validation("messages are required")
	}
	history := make([]executor.Message, 0, len(r.Messages))
	for i, m := range r.Messages {
		if m.Content == "" {
			return nil, agenterr.Validation("message %d has no content", i)
		}
		switch executor.Role(m.Role) {
		case executor.RoleUser:
			history = append(history, executor.UserText(m.Content))
		case executor.RoleAssistant:
			history = append(history, executor.Message{Role: executor.RoleAssistant, Text: m.Content})
		default:
			return nil, agenterr.Validation("message %d has unsupported role %q", i, m.Role)
		}
	}
	if history[len(history)-1].Role != executor.RoleUser {
		return nil, agenterr.Validation("the last message must have role %q", executor.RoleUser)
	}
	return history, nil
}

// target is what a session runs against, whichever surface requested it.
type target struct {
	repo      gitstore.Repo
	branch    string
	auth      oauth2.TokenSource
	model     string
	todos     []promptbuilder.Todo
	trigger   string
	sessionID string
}

// run is a session ready to start.
type run struct {
	store   gitstore.Store
	session *session.Session
	orch    *orchestrator.Orchestrator
	exec    agenttrace.ExecutionContext
}

// prepare resolves everything a session needs before any frame is sent,
// so failures can still be reported with an HTTP status.
func (s *Server) prepare(ctx context.Context, t target) (*run, error) {
	store, err := s.cfg.Stores(ctx, t.auth)
	if err != nil {
		return nil, err
	}

	defaultBranch, err := store.DefaultBranch(ctx, t.repo)
	if err != nil {
		return nil, fmt.Errorf("looking up default branch: %w", err)
	}
	branch := t.branch
	if branch == "" {
		branch = defaultBranch
	}
	if _, err := store.ResolveRef(ctx, t.repo, branch); err != nil {
		return nil, err
	}

	builder, err := commitbuilder.New(store, s.cfg.CommitOptions...)
	if err != nil {
		return nil, agenterr.New(agenterr.KindConfiguration, "commit_builder", err)
	}
	sess, err := session.New(session.Config{
		Repo:          t.repo,
		Branch:        branch,
		DefaultBranch: defaultBranch,
		Store:         store,
		Builder:       builder,
		Search:        s.cfg.Search,
		MatchPolicy:   s.cfg.MatchPolicy,
		StoreTimeout:  s.cfg.StoreTimeout,
		CommitTimeout: s.cfg.CommitTimeout,
	})
	if err != nil {
		return nil, err
	}

	prompt, err := promptbuilder.SystemPrompt(promptbuilder.Session{
		Repository:    t.repo.String(),
		Branch:        branch,
		DefaultBranch: defaultBranch,
		Todos:         t.todos,
	})
	if err != nil {
		return nil, agenterr.New(agenterr.KindConfiguration, "system_prompt", err)
	}

	name := t.model
	if name == "" {
		name = s.cfg.DefaultModel
	}
	model, err := s.cfg.Models(ctx, name)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{orchestrator.WithSystemPrompt(prompt)}
	if s.cfg.MaxSteps > 0 {
		opts = append(opts, orchestrator.WithMaxSteps(s.cfg.MaxSteps))
	}
	if s.cfg.ConcurrentTools > 1 {
		opts = append(opts, orchestrator.WithConcurrentTools(s.cfg.ConcurrentTools))
	}
	orch, err := orchestrator.New(model, sessionTools(sess), opts...)
	if err != nil {
		return nil, err
	}

	return &run{
		store:   store,
		session: sess,
		orch:    orch,
		exec: agenttrace.ExecutionContext{
			SessionID:  t.sessionID,
			Repository: t.repo.String(),
			Branch:     branch,
			Trigger:    t.trigger,
		},
	}, nil
}

// sessionTools exposes the repository, staging and search callbacks of
// sess as one tool set.
func sessionTools(sess *session.Session) map[string]toolcall.Tool {
	provider := toolcall.NewSearchToolsProvider(
		toolcall.NewStagingToolsProvider(
			toolcall.NewRepositoryToolsProvider(toolcall.NewEmptyToolsProvider()),
		),
	)
	return provider.Tools(toolcall.NewSearchTools(
		toolcall.NewStagingTools(
			toolcall.NewRepositoryTools(toolcall.EmptyTools{}, sess.RepositoryCallbacks()),
			sess.StagingCallbacks(),
		),
		sess.SearchCallbacks(),
	))
}

// tokenSource picks the caller's credential. An access token wins over an
// installation id.
func (s *Server) tokenSource(ctx context.Context, req AgentRequest) (oauth2.TokenSource, error) {
	switch {
	case req.AccessToken != "":
		return credentials.StaticTokenSource(req.AccessToken), nil
	case req.InstallationID != 0:
		if s.cfg.Credentials == nil {
			return nil, agenterr.Newf(agenterr.KindConfiguration, "credentials", "installation credentials are not configured")
		}
		if _, err := s.cfg.Credentials.Credential(ctx, req.InstallationID); err != nil {
			return nil, err
		}
		return s.cfg.Credentials.TokenSource(ctx, req.InstallationID), nil
	default:
		return nil, agenterr.Validation("installation_id or access_token is required")
	}
}

func (s *Server) serveAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AgentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		respondError(ctx, w, agenterr.Validation("malformed request body: %v", err))
		return
	}
	history, err := req.history()
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	repo, err := gitstore.ParseRepo(req.Repo)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	id := uuid.NewString()
	log := clog.FromContext(ctx).With("session_id", id).With("repo", repo.String())
	ctx = clog.WithLogger(ctx, log)

	ts, err := s.tokenSource(ctx, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	rn, err := s.prepare(ctx, target{
		repo:      repo,
		branch:    req.Branch,
		auth:      ts,
		model:     req.Model,
		todos:     req.Todos,
		trigger:   "api",
		sessionID: id,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := s.admit(id, cancel); err != nil {
		respondError(ctx, w, err)
		return
	}
	defer s.sessions.Delete(id)

	w.Header().Set(SessionHeader, id)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.start(ctx, rn, history, orchestrator.NewNDJSONWriter(w))
}

// start runs a prepared session to completion.
func (s *Server) start(ctx context.Context, rn *run, history []executor.Message, emitter orchestrator.Emitter) (orchestrator.Result, error) {
	ctx = agenttrace.WithExecutionContext(ctx, rn.exec)
	log := clog.FromContext(ctx).With("branch", rn.exec.Branch).With("trigger", rn.exec.Trigger)
	ctx = clog.WithLogger(ctx, log)
	if s.cfg.Evals != nil {
		ctx = agenttrace.WithTracer(ctx, agenttrace.Multi(agenttrace.NewDefaultTracer(ctx), s.cfg.Evals))
	}

	activeSessions.Inc()
	defer activeSessions.Dec()

	log.Info("Starting agent session")
	res, err := rn.orch.Run(ctx, history, emitter)
	sessionCounter.WithLabelValues(rn.exec.Trigger, string(res.Outcome)).Inc()
	return res, err
}
