/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/repoagent/repository/gitstore"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// TaskKind names what triggered a task.
type TaskKind string

const (
	TaskIssue           TaskKind = "issue"
	TaskIssueComment    TaskKind = "issue_comment"
	TaskPullRequest     TaskKind = "pull_request"
	TaskReviewComment   TaskKind = "pull_request_review_comment"
	TaskWorkflowFailure TaskKind = "workflow_failure"
)

const (
	defaultIssuePrompt     = "Please help me understand this issue."
	defaultReviewPrompt    = "Please help me understand this review comment."
	defaultPullRequestVerb = "Review this pull request"
)

// Task is an agent run requested by a webhook delivery.
type Task struct {
	Kind           TaskKind
	DeliveryID     string
	InstallationID int64
	Repo           gitstore.Repo
	// Number is the issue or pull request to answer on, zero if none.
	Number int
	// Branch is the branch to work on, empty for the default branch.
	Branch   string
	Command  string
	Category Category
}

// Handled lists the event types Route understands.
var Handled = map[string]bool{
	"installation":                true,
	"issues":                      true,
	"issue_comment":               true,
	"pull_request":                true,
	"pull_request_review_comment": true,
	"workflow_run":                true,
}

// Router turns parsed deliveries into tasks.
type Router struct {
	// Handle is the bot's login, without the leading "@".
	Handle string
}

// Route parses payload as eventType and returns the task it requests, or
// nil when the delivery needs no agent run.
func (r Router) Route(ctx context.Context, eventType string, payload []byte) (*Task, error) {
	if !Handled[eventType] {
		return nil, nil
	}
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}
	log := clog.FromContext(ctx).With("event", eventType)

	switch e := event.(type) {
	case *github.InstallationEvent:
		names := make([]string, 0, len(e.Repositories))
		for _, repo := range e.Repositories {
			names = append(names, repo.GetFullName())
		}
		log.With("action", e.GetAction()).
			With("installation_id", e.GetInstallation().GetID()).
			With("repositories", names).
			Info("Installation changed")
		return nil, nil

	case *github.IssuesEvent:
		if a := e.GetAction(); a != "opened" && a != "edited" {
			return nil, nil
		}
		text := e.GetIssue().GetTitle() + "\n" + e.GetIssue().GetBody()
		if !Mentions(text, r.Handle) || r.fromSelf(e.GetSender()) {
			return nil, nil
		}
		return r.task(TaskIssue, e.GetInstallation(), e.GetRepo(), e.GetIssue().GetNumber(), "",
			r.command(e.GetIssue().GetBody(), defaultIssuePrompt))

	case *github.IssueCommentEvent:
		if e.GetAction() != "created" || !Mentions(e.GetComment().GetBody(), r.Handle) || r.fromSelf(e.GetSender()) {
			return nil, nil
		}
		return r.task(TaskIssueComment, e.GetInstallation(), e.GetRepo(), e.GetIssue().GetNumber(), "",
			r.command(e.GetComment().GetBody(), defaultIssuePrompt))

	case *github.PullRequestEvent:
		pr := e.GetPullRequest()
		mentioned := Mentions(pr.GetBody(), r.Handle)
		switch {
		case e.GetAction() == "opened" && !r.fromSelf(e.GetSender()):
		case e.GetAction() == "synchronize" && mentioned:
		default:
			return nil, nil
		}
		command := fmt.Sprintf("%s: %s", defaultPullRequestVerb, pr.GetTitle())
		if mentioned {
			command = r.command(pr.GetBody(), command)
		}
		return r.task(TaskPullRequest, e.GetInstallation(), e.GetRepo(), pr.GetNumber(), headBranch(pr, e.GetRepo()), command)

	case *github.PullRequestReviewCommentEvent:
		if e.GetAction() != "created" || !Mentions(e.GetComment().GetBody(), r.Handle) || r.fromSelf(e.GetSender()) {
			return nil, nil
		}
		pr := e.GetPullRequest()
		return r.task(TaskReviewComment, e.GetInstallation(), e.GetRepo(), pr.GetNumber(), headBranch(pr, e.GetRepo()),
			r.command(e.GetComment().GetBody(), defaultReviewPrompt))

	case *github.WorkflowRunEvent:
		run := e.GetWorkflowRun()
		if e.GetAction() != "completed" || run.GetConclusion() != "failure" {
			return nil, nil
		}
		var number int
		if len(run.PullRequests) > 0 {
			number = run.PullRequests[0].GetNumber()
		}
		command := fmt.Sprintf("Fix this workflow failure: %s. Run details: %s", run.GetName(), run.GetHTMLURL())
		return r.task(TaskWorkflowFailure, e.GetInstallation(), e.GetRepo(), number, run.GetHeadBranch(), command)
	}
	return nil, nil
}

func (r Router) command(body, fallback string) string {
	if c := ExtractCommand(body, r.Handle); c != "" {
		return c
	}
	return fallback
}

// fromSelf reports whether the sender is the bot, so its own comments do
// not trigger further runs.
func (r Router) fromSelf(sender *github.User) bool {
	login := strings.ToLower(sender.GetLogin())
	handle := strings.ToLower(strings.TrimPrefix(r.Handle, "@"))
	return handle != "" && (login == handle || login == handle+"[bot]")
}

func (r Router) task(kind TaskKind, inst *github.Installation, repo *github.Repository, number int, branch, command string) (*Task, error) {
	if inst.GetID() == 0 {
		return nil, fmt.Errorf("%s delivery has no installation", kind)
	}
	parsed, err := gitstore.ParseRepo(repo.GetFullName())
	if err != nil {
		return nil, err
	}
	return &Task{
		Kind:           kind,
		InstallationID: inst.GetID(),
		Repo:           parsed,
		Number:         number,
		Branch:         branch,
		Command:        command,
		Category:       Categorize(command),
	}, nil
}

// headBranch returns the head branch when it lives in repo itself.
func headBranch(pr *github.PullRequest, repo *github.Repository) string {
	head := pr.GetHead()
	if head.GetRepo().GetFullName() != "" && head.GetRepo().GetFullName() != repo.GetFullName() {
		return ""
	}
	return head.GetRef()
}
