/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package memstore is an in-memory, content-addressed gitstore.Store.
//
// Object identifiers are computed the way git computes them for blobs
// ("blob <len>\x00<content>" hashed with SHA-1). Trees are flat maps from
// path to blob SHA and commits hash their tree, parents, author and
// message, so every identifier is a 40-character hex string.
package memstore

import (
	"context"
	"crypto/sha1" //nolint:gosec // git object ids
	"encoding/hex"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/repository/gitstore"
)

type commit struct {
	tree    string
	parents []string
	author  gitstore.Author
	message string
}

type repository struct {
	defaultBranch string
	blobs         map[string][]byte
	trees         map[string]map[string]string
	commits       map[string]commit
	refs          map[string]string
	pulls         []gitstore.PullRequest
	comments      map[int][]string
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	repos map[gitstore.Repo]*repository

	// BlobHook, when set, is consulted before each blob is stored.
	// A non-nil error fails the CreateBlob call.
	BlobHook func(content []byte) error
}

var _ gitstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{repos: make(map[gitstore.Repo]*repository)}
}

// Init creates repo with an initial commit on branch holding files.
// It returns the initial commit SHA.
func (s *Store) Init(repo gitstore.Repo, branch string, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &repository{
		defaultBranch: branch,
		blobs:         make(map[string][]byte),
		trees:         make(map[string]map[string]string),
		commits:       make(map[string]commit),
		refs:          make(map[string]string),
		comments:      make(map[int][]string),
	}
	s.repos[repo] = r

	tree := make(map[string]string, len(files))
	for p, content := range files {
		tree[p] = r.putBlob([]byte(content))
	}
	treeSHA := r.putTree(tree)
	sha := r.putCommit(commit{tree: treeSHA, message: "initial commit", author: gitstore.Author{Name: "memstore", Email: "memstore@localhost"}})
	r.refs[branch] = sha
	return sha
}

// Head returns the SHA branch points at, or "" when it does not exist.
func (s *Store) Head(repo gitstore.Repo, branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[repo]; ok {
		return r.refs[branch]
	}
	return ""
}

// BlobCount returns the number of stored blobs, referenced or not.
func (s *Store) BlobCount(repo gitstore.Repo) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[repo]; ok {
		return len(r.blobs)
	}
	return 0
}

// Comments returns the comments posted on an issue or pull request.
func (s *Store) Comments(repo gitstore.Repo, number int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[repo]; ok {
		return slices.Clone(r.comments[number])
	}
	return nil
}

// PullRequests returns the pull requests opened so far.
func (s *Store) PullRequests(repo gitstore.Repo) []gitstore.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[repo]; ok {
		return slices.Clone(r.pulls)
	}
	return nil
}

func (s *Store) repo(repo gitstore.Repo) (*repository, error) {
	r, ok := s.repos[repo]
	if !ok {
		return nil, agenterr.Newf(agenterr.KindRefNotFound, "get_repo", "repository %s not found", repo)
	}
	return r, nil
}

func hash(kind string, body []byte) string {
	h := sha1.New() //nolint:gosec // git object ids
	fmt.Fprintf(h, "%s %d\x00", kind, len(body))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *repository) putBlob(content []byte) string {
	sha := hash("blob", content)
	r.blobs[sha] = slices.Clone(content)
	return sha
}

func (r *repository) putTree(entries map[string]string) string {
	var b strings.Builder
	for _, p := range slices.Sorted(maps.Keys(entries)) {
		fmt.Fprintf(&b, "%s %s %s\n", gitstore.FileMode, entries[p], p)
	}
	sha := hash("tree", []byte(b.String()))
	r.trees[sha] = entries
	return sha
}

func (r *repository) putCommit(c commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tree %s\n", c.tree)
	for _, p := range c.parents {
		fmt.Fprintf(&b, "parent %s\n", p)
	}
	fmt.Fprintf(&b, "author %s\n\n%s", c.author, c.message)
	sha := hash("commit", []byte(b.String()))
	r.commits[sha] = c
	return sha
}

// resolve accepts a branch name or a commit SHA.
func (r *repository) resolve(ref string) (commit, error) {
	if ref == "" {
		ref = r.defaultBranch
	}
	if sha, ok := r.refs[ref]; ok {
		ref = sha
	}
	c, ok := r.commits[ref]
	if !ok {
		return commit{}, agenterr.Newf(agenterr.KindRefNotFound, "resolve_ref", "ref %q not found", ref)
	}
	return c, nil
}

func (s *Store) ResolveRef(_ context.Context, repo gitstore.Repo, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	sha, ok := r.refs[branch]
	if !ok {
		return "", agenterr.Newf(agenterr.KindRefNotFound, "resolve_ref", "branch %q not found", branch)
	}
	return sha, nil
}

func (s *Store) GetCommit(_ context.Context, repo gitstore.Repo, sha string) (gitstore.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return gitstore.Commit{}, err
	}
	c, ok := r.commits[sha]
	if !ok {
		return gitstore.Commit{}, agenterr.Newf(agenterr.KindRefNotFound, "get_commit", "commit %s not found", sha)
	}
	return gitstore.Commit{SHA: sha, TreeSHA: c.tree, Parents: slices.Clone(c.parents), Message: c.message}, nil
}

func (s *Store) CreateBlob(_ context.Context, repo gitstore.Repo, content []byte) (string, error) {
	if s.BlobHook != nil {
		if err := s.BlobHook(content); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	return r.putBlob(content), nil
}

func (s *Store) CreateTree(_ context.Context, repo gitstore.Repo, baseTree string, entries []gitstore.TreeEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	base, ok := r.trees[baseTree]
	if !ok && baseTree != "" {
		return "", fmt.Errorf("base tree %s not found", baseTree)
	}
	tree := maps.Clone(base)
	if tree == nil {
		tree = make(map[string]string, len(entries))
	}
	for _, e := range entries {
		if e.Removal() {
			delete(tree, e.Path)
			continue
		}
		if _, ok := r.blobs[e.SHA]; !ok {
			return "", fmt.Errorf("blob %s not found for %s", e.SHA, e.Path)
		}
		tree[e.Path] = e.SHA
	}
	return r.putTree(tree), nil
}

func (s *Store) CreateCommit(_ context.Context, repo gitstore.Repo, message, tree string, parents []string, author gitstore.Author) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	if _, ok := r.trees[tree]; !ok {
		return "", fmt.Errorf("tree %s not found", tree)
	}
	for _, p := range parents {
		if _, ok := r.commits[p]; !ok {
			return "", fmt.Errorf("parent %s not found", p)
		}
	}
	return r.putCommit(commit{tree: tree, parents: slices.Clone(parents), author: author, message: message}), nil
}

func (s *Store) UpdateRef(_ context.Context, repo gitstore.Repo, branch, expected, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return err
	}
	current, ok := r.refs[branch]
	if !ok {
		return agenterr.Newf(agenterr.KindRefNotFound, "update_ref", "branch %q not found", branch)
	}
	if current != expected {
		return agenterr.Newf(agenterr.KindCommitConflict, "update_ref", "branch %q moved from %s to %s", branch, expected, current)
	}
	if _, ok := r.commits[sha]; !ok {
		return fmt.Errorf("commit %s not found", sha)
	}
	r.refs[branch] = sha
	return nil
}

func (s *Store) CreateRef(_ context.Context, repo gitstore.Repo, branch, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return err
	}
	if _, ok := r.refs[branch]; ok {
		return agenterr.Validation("branch %q already exists", branch)
	}
	if _, ok := r.commits[sha]; !ok {
		return agenterr.Newf(agenterr.KindRefNotFound, "create_ref", "commit %s not found", sha)
	}
	r.refs[branch] = sha
	return nil
}

func (s *Store) ReadFile(_ context.Context, repo gitstore.Repo, ref, p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	c, err := r.resolve(ref)
	if err != nil {
		return "", err
	}
	sha, ok := r.trees[c.tree][strings.TrimPrefix(p, "/")]
	if !ok {
		return "", agenterr.Newf(agenterr.KindPathNotFound, "read_file", "%s not found at %s", p, ref)
	}
	return string(r.blobs[sha]), nil
}

func (s *Store) ListFiles(_ context.Context, repo gitstore.Repo, ref, dir string) ([]gitstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return nil, err
	}
	c, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(dir, "/")
	if prefix == "." {
		prefix = ""
	}
	if prefix != "" {
		prefix += "/"
	}

	seen := map[string]gitstore.Entry{}
	for p, sha := range r.trees[c.tree] {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if head, _, nested := strings.Cut(rest, "/"); nested {
			seen[prefix+head] = gitstore.Entry{Path: prefix + head, Type: "dir"}
			continue
		}
		seen[p] = gitstore.Entry{Path: p, Type: "file", Size: len(r.blobs[sha])}
	}
	if len(seen) == 0 && prefix != "" {
		return nil, agenterr.Newf(agenterr.KindPathNotFound, "list_files", "%s not found at %s", dir, ref)
	}

	out := slices.Collect(maps.Values(seen))
	slices.SortFunc(out, func(a, b gitstore.Entry) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (s *Store) SearchCode(_ context.Context, repo gitstore.Repo, query, dir, extension string) ([]gitstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return nil, err
	}
	c, err := r.resolve("")
	if err != nil {
		return nil, err
	}

	var out []gitstore.Match
	for _, p := range slices.Sorted(maps.Keys(r.trees[c.tree])) {
		if dir != "" && !strings.HasPrefix(p, strings.Trim(dir, "/")+"/") {
			continue
		}
		if extension != "" && strings.TrimPrefix(path.Ext(p), ".") != strings.TrimPrefix(extension, ".") {
			continue
		}
		var fragments []string
		for line := range strings.Lines(string(r.blobs[r.trees[c.tree][p]])) {
			if strings.Contains(line, query) {
				fragments = append(fragments, strings.TrimRight(line, "\n"))
			}
		}
		if len(fragments) > 0 {
			out = append(out, gitstore.Match{Path: p, Fragments: fragments})
		}
	}
	return out, nil
}

func (s *Store) CreatePullRequest(_ context.Context, repo gitstore.Repo, pr gitstore.PullRequest) (gitstore.PullRequestRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return gitstore.PullRequestRef{}, err
	}
	for _, b := range []string{pr.Head, pr.Base} {
		if _, ok := r.refs[b]; !ok {
			return gitstore.PullRequestRef{}, agenterr.Newf(agenterr.KindRefNotFound, "create_pull_request", "branch %q not found", b)
		}
	}
	r.pulls = append(r.pulls, pr)
	n := len(r.pulls)
	return gitstore.PullRequestRef{Number: n, URL: fmt.Sprintf("memory://%s/pull/%d", repo, n)}, nil
}

func (s *Store) CreateComment(_ context.Context, repo gitstore.Repo, number int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return err
	}
	r.comments[number] = append(r.comments[number], body)
	return nil
}

func (s *Store) DefaultBranch(_ context.Context, repo gitstore.Repo) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo(repo)
	if err != nil {
		return "", err
	}
	return r.defaultBranch, nil
}
