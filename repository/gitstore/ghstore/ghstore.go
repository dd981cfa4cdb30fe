/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/repository/gitstore"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// Store implements gitstore.Store against the GitHub REST API.
type Store struct {
	client *github.Client
}

var _ gitstore.Store = (*Store)(nil)

// New wraps an authenticated client.
func New(client *github.Client) *Store {
	return &Store{client: client}
}

// NewClient builds a client authenticated by ts. A non-empty baseURL
// targets GitHub Enterprise or a test server.
func NewClient(ctx context.Context, ts oauth2.TokenSource, baseURL string) (*github.Client, error) {
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, agenterr.New(agenterr.KindConfiguration, "github_client", fmt.Errorf("parse base url: %w", err))
		}
		client.BaseURL = u
	}
	return client, nil
}

func (s *Store) ResolveRef(ctx context.Context, repo gitstore.Repo, branch string) (string, error) {
	ref, _, err := s.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", classify("resolve_ref", err, agenterr.KindRefNotFound)
	}
	return ref.GetObject().GetSHA(), nil
}

func (s *Store) GetCommit(ctx context.Context, repo gitstore.Repo, sha string) (gitstore.Commit, error) {
	c, _, err := s.client.Git.GetCommit(ctx, repo.Owner, repo.Name, sha)
	if err != nil {
		return gitstore.Commit{}, classify("get_commit", err, agenterr.KindRefNotFound)
	}
	out := gitstore.Commit{
		SHA:     c.GetSHA(),
		TreeSHA: c.GetTree().GetSHA(),
		Message: c.GetMessage(),
	}
	for _, p := range c.Parents {
		out.Parents = append(out.Parents, p.GetSHA())
	}
	return out, nil
}

func (s *Store) CreateBlob(ctx context.Context, repo gitstore.Repo, content []byte) (string, error) {
	blob, _, err := s.client.Git.CreateBlob(ctx, repo.Owner, repo.Name, github.Blob{
		Content:  github.Ptr(string(content)),
		Encoding: github.Ptr("utf-8"),
	})
	if err != nil {
		return "", classify("create_blob", err, "")
	}
	return blob.GetSHA(), nil
}

func (s *Store) CreateTree(ctx context.Context, repo gitstore.Repo, baseTree string, entries []gitstore.TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		te := &github.TreeEntry{
			Path: github.Ptr(e.Path),
			Mode: github.Ptr(e.Mode),
			Type: github.Ptr("blob"),
		}
		// A nil SHA with no content serializes as "sha": null, which
		// removes the path from the base tree.
		if !e.Removal() {
			te.SHA = github.Ptr(e.SHA)
		}
		ghEntries = append(ghEntries, te)
	}
	tree, _, err := s.client.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTree, ghEntries)
	if err != nil {
		return "", classify("create_tree", err, "")
	}
	return tree.GetSHA(), nil
}

func (s *Store) CreateCommit(ctx context.Context, repo gitstore.Repo, message, tree string, parents []string, author gitstore.Author) (string, error) {
	commit := github.Commit{
		Message: github.Ptr(message),
		Tree:    &github.Tree{SHA: github.Ptr(tree)},
		Author:  &github.CommitAuthor{Name: github.Ptr(author.Name), Email: github.Ptr(author.Email)},
	}
	for _, p := range parents {
		commit.Parents = append(commit.Parents, &github.Commit{SHA: github.Ptr(p)})
	}
	c, _, err := s.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, commit, nil)
	if err != nil {
		return "", classify("create_commit", err, "")
	}
	return c.GetSHA(), nil
}

// UpdateRef checks the branch still points at expected and then moves it
// without force. The host rejects a non-fast-forward update, which covers
// a branch that moves between the check and the update.
func (s *Store) UpdateRef(ctx context.Context, repo gitstore.Repo, branch, expected, sha string) error {
	current, err := s.ResolveRef(ctx, repo, branch)
	if err != nil {
		return err
	}
	if current != expected {
		return agenterr.Newf(agenterr.KindCommitConflict, "update_ref", "%s moved from %s to %s", branch, expected, current)
	}
	_, _, err = s.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, "heads/"+branch, github.UpdateRef{
		SHA:   sha,
		Force: github.Ptr(false),
	})
	if err != nil {
		return classify("update_ref", err, agenterr.KindRefNotFound)
	}
	return nil
}

func (s *Store) CreateRef(ctx context.Context, repo gitstore.Repo, branch, sha string) error {
	_, _, err := s.client.Git.CreateRef(ctx, repo.Owner, repo.Name, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	})
	if err != nil {
		var er *github.ErrorResponse
		if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusUnprocessableEntity {
			return agenterr.New(agenterr.KindValidation, "create_ref", fmt.Errorf("branch %q already exists: %w", branch, err))
		}
		return classify("create_ref", err, "")
	}
	return nil
}

func (s *Store) ReadFile(ctx context.Context, repo gitstore.Repo, ref, filePath string) (string, error) {
	file, dir, _, err := s.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, filePath, contentOptions(ref))
	if err != nil {
		return "", classify("read_file", err, agenterr.KindPathNotFound)
	}
	if file == nil {
		if dir != nil {
			return "", agenterr.Newf(agenterr.KindValidation, "read_file", "%s is a directory", filePath)
		}
		return "", agenterr.Newf(agenterr.KindPathNotFound, "read_file", "%s not found", filePath)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("read_file: decode %s: %w", filePath, err)
	}
	return content, nil
}

func (s *Store) ListFiles(ctx context.Context, repo gitstore.Repo, ref, dir string) ([]gitstore.Entry, error) {
	file, listing, _, err := s.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, dir, contentOptions(ref))
	if err != nil {
		return nil, classify("list_files", err, agenterr.KindPathNotFound)
	}
	if file != nil {
		return []gitstore.Entry{{Path: file.GetPath(), Type: file.GetType(), Size: file.GetSize()}}, nil
	}
	entries := make([]gitstore.Entry, 0, len(listing))
	for _, c := range listing {
		entries = append(entries, gitstore.Entry{Path: c.GetPath(), Type: c.GetType(), Size: c.GetSize()})
	}
	return entries, nil
}

func (s *Store) SearchCode(ctx context.Context, repo gitstore.Repo, query, dir, extension string) ([]gitstore.Match, error) {
	q := fmt.Sprintf("%s repo:%s", query, repo)
	if dir != "" {
		q += " path:" + path.Clean(dir)
	}
	if extension != "" {
		q += " extension:" + strings.TrimPrefix(extension, ".")
	}
	res, _, err := s.client.Search.Code(ctx, q, &github.SearchOptions{
		TextMatch:   true,
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, classify("search_code", err, "")
	}
	matches := make([]gitstore.Match, 0, len(res.CodeResults))
	for _, r := range res.CodeResults {
		m := gitstore.Match{Path: r.GetPath(), URL: r.GetHTMLURL()}
		for _, tm := range r.TextMatches {
			m.Fragments = append(m.Fragments, tm.GetFragment())
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Store) CreatePullRequest(ctx context.Context, repo gitstore.Repo, pr gitstore.PullRequest) (gitstore.PullRequestRef, error) {
	created, _, err := s.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.Ptr(pr.Title),
		Head:  github.Ptr(pr.Head),
		Base:  github.Ptr(pr.Base),
		Body:  github.Ptr(pr.Body),
	})
	if err != nil {
		return gitstore.PullRequestRef{}, classify("create_pull_request", err, agenterr.KindRefNotFound)
	}
	clog.FromContext(ctx).With("repo", repo.String()).With("number", created.GetNumber()).Info("Opened pull request")
	return gitstore.PullRequestRef{Number: created.GetNumber(), URL: created.GetHTMLURL()}, nil
}

func (s *Store) CreateComment(ctx context.Context, repo gitstore.Repo, number int, body string) error {
	if _, _, err := s.client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{
		Body: github.Ptr(body),
	}); err != nil {
		return classify("create_comment", err, "")
	}
	return nil
}

func (s *Store) DefaultBranch(ctx context.Context, repo gitstore.Repo) (string, error) {
	r, _, err := s.client.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", classify("default_branch", err, agenterr.KindRefNotFound)
	}
	return r.GetDefaultBranch(), nil
}

func contentOptions(ref string) *github.RepositoryContentGetOptions {
	if ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: ref}
}
