/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

// Todo is an item of the caller's task list.
type Todo struct {
	Title  string `yaml:"title" json:"title"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"`
}

// Session is the repository context given to the model.
type Session struct {
	Repository    string `yaml:"repository"`
	Branch        string `yaml:"branch"`
	DefaultBranch string `yaml:"default_branch,omitempty"`
	Todos         []Todo `yaml:"todos,omitempty"`
}

var systemTemplate = Must(NewPrompt(`You are an autonomous software engineering agent installed on a GitHub repository. You can read files, search code, search the web, stage file changes, commit them atomically, create branches and open pull requests.

## How changes work
- stage_change records a change in memory; nothing reaches the repository until commit_changes.
- Staging the same path twice keeps only the latest change.
- Prefer edit_mode "incremental" with exact old_text snippets for small edits to large files.
- commit_changes publishes every staged change as one commit. If it reports a commit conflict the branch moved: re-read the affected files and stage again.
- Use list_staged_changes to review what is pending before committing.

## Safety rules
- Never touch .env files or other secrets.
- Create a branch and open a pull request for non-trivial changes to the default branch.
- Explain destructive operations before performing them.

## Communication
- Explain your reasoning and summarize the changes you made.
- Tool failures are reported with an error kind; adjust and retry instead of repeating the same call.

## Session
{{session}}`))

// SystemPrompt renders the system instructions for a session.
func SystemPrompt(s Session) (string, error) {
	p, err := systemTemplate.BindYAML("session", s)
	if err != nil {
		return "", err
	}
	return p.Build()
}
