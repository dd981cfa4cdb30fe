/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/orchestrator"
	"chainguard.dev/repoagent/agents/toolcall"
	"chainguard.dev/repoagent/repository/credentials"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/gitstore/memstore"
	"chainguard.dev/repoagent/repository/sessionstore"
	"chainguard.dev/repoagent/repository/webhook"
	"chainguard.dev/repoagent/workqueue/dispatcher"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

var demo = gitstore.Repo{Owner: "octo", Name: "demo"}

// scriptedModel replays turns and streams their text as one delta.
type scriptedModel struct {
	mu    sync.Mutex
	turns []executor.Turn
	calls int
	// hold, when set, blocks the first step after its delta until closed.
	hold chan struct{}
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Stream(ctx context.Context, _ executor.Request, onText executor.TextFunc) (executor.Turn, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()
	if i >= len(m.turns) {
		return executor.Turn{}, errors.New("script exhausted")
	}
	turn := m.turns[i]
	if turn.Text != "" {
		onText(turn.Text)
	}
	if i == 0 && m.hold != nil {
		select {
		case <-m.hold:
		case <-ctx.Done():
		}
	}
	return turn, nil
}

func (m *scriptedModel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeCredentials struct {
	err error
}

func (f fakeCredentials) Credential(context.Context, int64) (credentials.InstallationCredential, error) {
	return credentials.InstallationCredential{Token: "ghs_test"}, f.err
}

func (f fakeCredentials) TokenSource(context.Context, int64) oauth2.TokenSource {
	return credentials.StaticTokenSource("ghs_test")
}

func call(id, name string, args map[string]any) toolcall.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	args["reasoning"] = "test"
	return toolcall.ToolCall{ID: id, Name: name, Args: args}
}

func newServer(t *testing.T, store *memstore.Store, model executor.Model, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Credentials: fakeCredentials{},
		Stores: func(context.Context, oauth2.TokenSource) (gitstore.Store, error) {
			return store, nil
		},
		Models: func(context.Context, string) (executor.Model, error) {
			return model, nil
		},
		DefaultModel: "scripted",
		BotHandle:    "@repoagent",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Marshal() = %v", err)
		}
		r = strings.NewReader(string(data))
	}
	resp, err := http.Post(url+"/v1/agent", "application/json", r)
	if err != nil {
		t.Fatalf("Post() = %v", err)
	}
	return resp
}

func readFrames(t *testing.T, r io.Reader) []orchestrator.Frame {
	t.Helper()
	var frames []orchestrator.Frame
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var f orchestrator.Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			t.Fatalf("Unmarshal(%q) = %v", sc.Text(), err)
		}
		frames = append(frames, f)
	}
	return frames
}

func types(frames []orchestrator.Frame) []orchestrator.FrameType {
	out := make([]orchestrator.FrameType, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func TestAgentCreatesCommit(t *testing.T) {
	store := memstore.New()
	base := store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	model := &scriptedModel{turns: []executor.Turn{{
		ToolCalls: []toolcall.ToolCall{call("c1", "stage_change", map[string]any{
			"path": "docs/guide.md", "operation": "create", "content": "# Guide",
		})},
	}, {
		ToolCalls: []toolcall.ToolCall{call("c2", "commit_changes", map[string]any{"message": "Add guide"})},
	}, {
		Text: "Committed the guide.",
	}}}
	ts := httptest.NewServer(newServer(t, store, model, nil).Handler(nil))
	defer ts.Close()

	resp := post(t, ts.URL, AgentRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "Add a guide"}},
		Repo:        "octo/demo",
		AccessToken: "ghp_user",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, wanted = %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, wanted = application/x-ndjson", got)
	}
	if resp.Header.Get(SessionHeader) == "" {
		t.Errorf("%s header is empty", SessionHeader)
	}

	frames := readFrames(t, resp.Body)
	want := []orchestrator.FrameType{
		orchestrator.FrameToolCall, orchestrator.FrameToolResult,
		orchestrator.FrameToolCall, orchestrator.FrameToolResult,
		orchestrator.FrameTextDelta, orchestrator.FrameDone,
	}
	if diff := cmp.Diff(want, types(frames)); diff != "" {
		t.Fatalf("frame types (-want, +got):\n%s", diff)
	}

	head := store.Head(demo, "main")
	if head == base {
		t.Fatal("branch did not move")
	}
	got, err := store.ReadFile(context.Background(), demo, "main", "docs/guide.md")
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if got != "# Guide" {
		t.Errorf("ReadFile() = %q, wanted = %q", got, "# Guide")
	}
}

func TestAgentRejectsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		mutate func(*Config)
		want   int
		kind   agenterr.Kind
	}{{
		name: "malformed json",
		body: `{"messages": [`,
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "no messages",
		body: AgentRequest{Repo: "octo/demo", AccessToken: "t"},
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "unknown role",
		body: AgentRequest{Messages: []ChatMessage{{Role: "system", Content: "x"}}, Repo: "octo/demo", AccessToken: "t"},
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "assistant last",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}, {Role: "assistant", Content: "y"}}, Repo: "octo/demo", AccessToken: "t"},
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "bad repository",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "demo", AccessToken: "t"},
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "no credential",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "octo/demo"},
		want: http.StatusBadRequest,
		kind: agenterr.KindValidation,
	}, {
		name: "credential unavailable",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "octo/demo", InstallationID: 42},
		mutate: func(c *Config) {
			c.Credentials = fakeCredentials{err: agenterr.Newf(agenterr.KindCredentialUnavailable, "exchange", "key revoked")}
		},
		want: http.StatusUnauthorized,
		kind: agenterr.KindCredentialUnavailable,
	}, {
		name:   "installation without provider",
		body:   AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "octo/demo", InstallationID: 42},
		mutate: func(c *Config) { c.Credentials = nil },
		want:   http.StatusInternalServerError,
		kind:   agenterr.KindConfiguration,
	}, {
		name: "missing model key",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "octo/demo", AccessToken: "t", Model: "claude-x"},
		mutate: func(c *Config) {
			c.Models = func(context.Context, string) (executor.Model, error) {
				return nil, agenterr.Newf(agenterr.KindConfiguration, "model", "ANTHROPIC_API_KEY is not set")
			}
		},
		want: http.StatusInternalServerError,
		kind: agenterr.KindConfiguration,
	}, {
		name: "unknown branch",
		body: AgentRequest{Messages: []ChatMessage{{Role: "user", Content: "x"}}, Repo: "octo/demo", AccessToken: "t", Branch: "nope"},
		want: http.StatusNotFound,
		kind: agenterr.KindRefNotFound,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			store.Init(demo, "main", map[string]string{"README.md": "Hello"})
			model := &scriptedModel{}
			ts := httptest.NewServer(newServer(t, store, model, tt.mutate).Handler(nil))
			defer ts.Close()

			resp := post(t, ts.URL, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, wanted = %d", resp.StatusCode, tt.want)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Decode() = %v", err)
			}
			if body.Error.Kind != tt.kind {
				t.Errorf("kind = %s, wanted = %s", body.Error.Kind, tt.kind)
			}
			if strings.Contains(body.Error.Message, "API_KEY") || strings.Contains(body.Error.Message, "revoked") {
				t.Errorf("message leaks detail: %q", body.Error.Message)
			}
			if model.count() != 0 {
				t.Errorf("model calls = %d, wanted = 0", model.count())
			}
		})
	}
}

func TestCancelSession(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	hold := make(chan struct{})
	model := &scriptedModel{hold: hold, turns: []executor.Turn{{
		Text:      "Reading",
		ToolCalls: []toolcall.ToolCall{call("c1", "read_file", map[string]any{"path": "README.md"})},
	}}}
	srv := newServer(t, store, model, nil)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	resp := post(t, ts.URL, AgentRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "Read it"}},
		Repo:        "octo/demo",
		AccessToken: "t",
	})
	defer resp.Body.Close()
	id := resp.Header.Get(SessionHeader)
	if _, ok := srv.Sessions().Get(id); !ok {
		t.Fatalf("session %q is not registered", id)
	}

	cancelURL := ts.URL + "/v1/sessions/" + id
	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, cancelURL, nil)
		if err != nil {
			t.Fatalf("NewRequest() = %v", err)
		}
		r, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Do() = %v", err)
		}
		r.Body.Close()
		return r.StatusCode
	}
	if got := del(); got != http.StatusAccepted {
		t.Errorf("DELETE status = %d, wanted = %d", got, http.StatusAccepted)
	}
	close(hold)

	frames := readFrames(t, resp.Body)
	want := []orchestrator.FrameType{orchestrator.FrameTextDelta, orchestrator.FrameFatal}
	if diff := cmp.Diff(want, types(frames)); diff != "" {
		t.Fatalf("frame types (-want, +got):\n%s", diff)
	}
	if got := frames[1].Error.Kind; got != "cancelled" {
		t.Errorf("error kind = %q, wanted = cancelled", got)
	}
	if got := del(); got != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, wanted = %d", got, http.StatusNotFound)
	}
}

func TestAgentRefusedAtCapacity(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	model := &scriptedModel{turns: []executor.Turn{{Text: "unused"}}}

	sessions, err := sessionstore.New(
		sessionstore.WithMaxEntries[context.CancelCauseFunc](1),
		sessionstore.WithOnEvict(EvictSession),
	)
	if err != nil {
		t.Fatalf("sessionstore.New() = %v", err)
	}
	running, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	if err := sessions.Add("running", cancel); err != nil {
		t.Fatalf("Add() = %v", err)
	}

	srv := newServer(t, store, model, func(cfg *Config) { cfg.Sessions = sessions })
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	resp := post(t, ts.URL, AgentRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "Hi"}},
		Repo:        "octo/demo",
		AccessToken: "t",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, wanted = %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if body.Error.Kind != agenterr.KindRateLimited {
		t.Errorf("kind = %s, wanted = %s", body.Error.Kind, agenterr.KindRateLimited)
	}
	if err := context.Cause(running); err != nil {
		t.Errorf("running session cancelled: %v", err)
	}
	if got := model.count(); got != 0 {
		t.Errorf("model calls = %d, wanted = 0", got)
	}
}

func TestRunTaskAtCapacityIsRetryable(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	model := &scriptedModel{turns: []executor.Turn{{Text: "unused"}}}

	sessions, err := sessionstore.New(sessionstore.WithMaxEntries[context.CancelCauseFunc](1))
	if err != nil {
		t.Fatalf("sessionstore.New() = %v", err)
	}
	if err := sessions.Add("running", func(error) {}); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	srv := newServer(t, store, model, func(cfg *Config) { cfg.Sessions = sessions })

	err = srv.RunTask(context.Background(), webhook.Task{
		Kind:           webhook.TaskIssue,
		InstallationID: 42,
		Repo:           demo,
		Number:         5,
		Command:        "explain the README",
		Category:       webhook.CategoryExplain,
	})
	if !agenterr.IsRetryable(err) {
		t.Errorf("RunTask() = %v, wanted a retryable error", err)
	}
	if dispatcher.IsNonRetriable(err) {
		t.Errorf("RunTask() = %v, wanted it to be retried", err)
	}
}

func TestRunTaskPostsReply(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	model := &scriptedModel{turns: []executor.Turn{{
		ToolCalls: []toolcall.ToolCall{call("c1", "read_file", map[string]any{"path": "README.md"})},
	}, {
		Text: "The README says hello.",
	}}}
	srv := newServer(t, store, model, nil)

	err := srv.RunTask(context.Background(), webhook.Task{
		Kind:           webhook.TaskIssueComment,
		InstallationID: 42,
		Repo:           demo,
		Number:         7,
		Command:        "explain the README",
		Category:       webhook.CategoryExplain,
	})
	if err != nil {
		t.Fatalf("RunTask() = %v", err)
	}
	want := []string{"🤖 **repoagent**\n\nThe README says hello."}
	if diff := cmp.Diff(want, store.Comments(demo, 7)); diff != "" {
		t.Errorf("comments (-want, +got):\n%s", diff)
	}
}

func TestRunTaskRecordsEvalTrace(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", map[string]string{"README.md": "Hello"})
	model := &scriptedModel{turns: []executor.Turn{{
		ToolCalls: []toolcall.ToolCall{call("c1", "read_file", map[string]any{"path": "README.md"})},
	}, {
		Text: "Hello.",
	}}}
	var traces []*agenttrace.Trace
	srv := newServer(t, store, model, func(cfg *Config) {
		cfg.Evals = agenttrace.ByCode(func(tr *agenttrace.Trace) { traces = append(traces, tr) })
	})

	err := srv.RunTask(context.Background(), webhook.Task{
		Kind:           webhook.TaskIssue,
		InstallationID: 42,
		Repo:           demo,
		Number:         3,
		Command:        "what does the README say",
		Category:       webhook.CategoryExplain,
	})
	if err != nil {
		t.Fatalf("RunTask() = %v", err)
	}
	if len(traces) != 1 {
		t.Fatalf("traces: got = %d, wanted = 1", len(traces))
	}
	tr := traces[0]
	if tr.Outcome != agenttrace.OutcomeDone {
		t.Errorf("outcome: got = %s, wanted = %s", tr.Outcome, agenttrace.OutcomeDone)
	}
	if tr.ExecContext.Trigger != string(webhook.TaskIssue) {
		t.Errorf("trigger: got = %q, wanted = %q", tr.ExecContext.Trigger, webhook.TaskIssue)
	}
	if len(tr.Invocations) != 1 || tr.Invocations[0].Name != "read_file" {
		t.Errorf("invocations: got = %v, wanted = [read_file]", tr.Invocations)
	}
}

func TestRunTaskHelp(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", nil)
	model := &scriptedModel{}
	srv := newServer(t, store, model, nil)

	err := srv.RunTask(context.Background(), webhook.Task{
		Kind:           webhook.TaskIssue,
		InstallationID: 42,
		Repo:           demo,
		Number:         3,
		Command:        "help",
		Category:       webhook.CategoryHelp,
	})
	if err != nil {
		t.Fatalf("RunTask() = %v", err)
	}
	if model.count() != 0 {
		t.Errorf("model calls = %d, wanted = 0", model.count())
	}
	comments := store.Comments(demo, 3)
	if len(comments) != 1 || !strings.Contains(comments[0], "Mention me") {
		t.Errorf("comments = %q, wanted the help text", comments)
	}
}

func TestRunTaskCredentialFailure(t *testing.T) {
	store := memstore.New()
	store.Init(demo, "main", nil)
	srv := newServer(t, store, &scriptedModel{}, func(c *Config) {
		c.Credentials = fakeCredentials{err: agenterr.Newf(agenterr.KindCredentialUnavailable, "exchange", "denied")}
	})
	err := srv.RunTask(context.Background(), webhook.Task{Kind: webhook.TaskIssue, InstallationID: 1, Repo: demo, Number: 1})
	if got := agenterr.KindOf(err); got != agenterr.KindCredentialUnavailable {
		t.Errorf("KindOf(RunTask()) = %s, wanted = %s", got, agenterr.KindCredentialUnavailable)
	}
	if len(store.Comments(demo, 1)) != 0 {
		t.Error("posted a comment after a credential failure")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	store := memstore.New()
	ts := httptest.NewServer(newServer(t, store, &scriptedModel{}, nil).Handler(nil))
	defer ts.Close()

	resp := post(t, ts.URL, `not json`)
	resp.Body.Close()

	for _, tt := range []struct {
		path string
		want string
	}{
		{path: "/healthz", want: "ok"},
		{path: "/metrics", want: `repoagent_http_requests_total{code="400",handler="agent",method="post"}`},
	} {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("Get(%s) = %v", tt.path, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("ReadAll() = %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, wanted = %d", tt.path, resp.StatusCode, http.StatusOK)
		}
		if !strings.Contains(string(body), tt.want) {
			t.Errorf("GET %s body does not contain %q", tt.path, tt.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no stores", mutate: func(c *Config) { c.Stores = nil }},
		{name: "no models", mutate: func(c *Config) { c.Models = nil }},
		{name: "no default model", mutate: func(c *Config) { c.DefaultModel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Stores:       func(context.Context, oauth2.TokenSource) (gitstore.Store, error) { return memstore.New(), nil },
				Models:       func(context.Context, string) (executor.Model, error) { return &scriptedModel{}, nil },
				DefaultModel: "scripted",
			}
			tt.mutate(&cfg)
			_, err := New(cfg)
			if got := agenterr.KindOf(err); got != agenterr.KindConfiguration {
				t.Errorf("KindOf(New()) = %s, wanted = %s", got, agenterr.KindConfiguration)
			}
		})
	}
}
