/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/orchestrator"
	"chainguard.dev/repoagent/repository/webhook"
	"chainguard.dev/repoagent/workqueue/dispatcher"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

const helpReply = "Mention me with an instruction, for example:\n\n" +
	"- `explain how the cache is invalidated`\n" +
	"- `fix the failing test in parser_test.go`\n" +
	"- `search for uses of the deprecated client`\n" +
	"- `update the README with the new flags`"

// RunTask answers a webhook task: it runs an agent session on the task's
// repository and posts the final answer as a comment when the task names
// an issue or pull request.
func (s *Server) RunTask(ctx context.Context, task webhook.Task) error {
	if task.Kind == "" {
		return agenterr.Validation("task kind is required")
	}
	id := uuid.NewString()
	log := clog.FromContext(ctx).
		With("session_id", id).
		With("repo", task.Repo.String()).
		With("task", string(task.Kind)).
		With("delivery", task.DeliveryID)
	ctx = clog.WithLogger(ctx, log)

	if s.cfg.Credentials == nil {
		return agenterr.Newf(agenterr.KindConfiguration, "credentials", "installation credentials are not configured")
	}
	if _, err := s.cfg.Credentials.Credential(ctx, task.InstallationID); err != nil {
		return err
	}
	rn, err := s.prepare(ctx, target{
		repo:      task.Repo,
		branch:    task.Branch,
		auth:      s.cfg.Credentials.TokenSource(ctx, task.InstallationID),
		trigger:   string(task.Kind),
		sessionID: id,
	})
	if err != nil {
		return err
	}

	if task.Category == webhook.CategoryHelp {
		return s.reply(ctx, rn, task, helpReply)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := s.admit(id, cancel); err != nil {
		return err
	}
	defer s.sessions.Delete(id)

	res, err := s.start(ctx, rn, []executor.Message{executor.UserText(taskPrompt(task))}, orchestrator.EmitterFunc(func(orchestrator.Frame) error { return nil }))
	if err != nil {
		// Failed sessions are never rerun; they may have committed.
		return dispatcher.NonRetriableError(err, "agent session failed")
	}
	answer := strings.TrimSpace(res.Text)
	if res.Outcome == agenttrace.OutcomeBudgetExhausted {
		answer = strings.TrimSpace(answer + "\n\nI ran out of steps before finishing; mention me again to continue.")
	}
	if answer == "" {
		log.Info("Session produced no answer to post")
		return nil
	}
	return s.reply(ctx, rn, task, answer)
}

func (s *Server) reply(ctx context.Context, rn *run, task webhook.Task, body string) error {
	if task.Number == 0 {
		return nil
	}
	if err := rn.store.CreateComment(ctx, task.Repo, task.Number, formatReply(s.cfg.BotHandle, body)); err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}
	clog.FromContext(ctx).With("number", task.Number).Info("Posted reply")
	return nil
}

// taskPrompt turns a task into the user message that starts its session.
func taskPrompt(task webhook.Task) string {
	var sb strings.Builder
	switch task.Kind {
	case webhook.TaskPullRequest, webhook.TaskReviewComment:
		fmt.Fprintf(&sb, "Pull request #%d in %s", task.Number, task.Repo)
	case webhook.TaskWorkflowFailure:
		fmt.Fprintf(&sb, "A workflow run failed in %s", task.Repo)
	default:
		fmt.Fprintf(&sb, "Issue #%d in %s", task.Number, task.Repo)
	}
	if task.Branch != "" {
		fmt.Fprintf(&sb, " on branch %s", task.Branch)
	}
	sb.WriteString(".\n\n")
	sb.WriteString(task.Command)
	return sb.String()
}

func formatReply(handle, body string) string {
	name := strings.TrimPrefix(handle, "@")
	if name == "" {
		return body
	}
	return fmt.Sprintf("🤖 **%s**\n\n%s", name, body)
}
