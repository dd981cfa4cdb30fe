/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package commitbuilder_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/gitstore/memstore"
	"chainguard.dev/repoagent/repository/staging"
)

var (
	repo   = gitstore.Repo{Owner: "octo", Name: "cat"}
	hexSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

func mustStage(t *testing.T, set *staging.Set, changes ...staging.Change) {
	t.Helper()
	for _, c := range changes {
		if _, err := set.Stage(c); err != nil {
			t.Fatalf("Stage(%s) = %v", c.Path, err)
		}
	}
}

func TestCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	base := store.Init(repo, "main", nil)

	b, err := commitbuilder.New(store)
	if err != nil {
		t.Fatal(err)
	}
	set := staging.New()
	mustStage(t, set, staging.Create("README.md", "Hello", "add readme"))

	res, err := b.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "docs: add readme"})
	if err != nil {
		t.Fatalf("Commit() = %v", err)
	}
	if !hexSHA.MatchString(res.CommitSHA) {
		t.Errorf("CommitSHA = %q, want 40 hex characters", res.CommitSHA)
	}
	if res.ParentSHA != base {
		t.Errorf("ParentSHA = %s, want %s", res.ParentSHA, base)
	}
	if got := store.Head(repo, "main"); got != res.CommitSHA {
		t.Errorf("Head() = %s, want %s", got, res.CommitSHA)
	}

	got, err := store.ReadFile(ctx, repo, res.CommitSHA, "README.md")
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if got != "Hello" {
		t.Errorf("ReadFile() = %q, want %q", got, "Hello")
	}
	if set.Len() != 0 {
		t.Errorf("staging set has %d entries after commit, want 0", set.Len())
	}
}

func TestCommitDeletesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.Init(repo, "main", map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})

	b, err := commitbuilder.New(store)
	if err != nil {
		t.Fatal(err)
	}
	set := staging.New()
	mustStage(t, set,
		staging.Delete("a.txt", ""),
		staging.Update("b.txt", "B", ""),
	)

	res, err := b.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "edit"})
	if err != nil {
		t.Fatalf("Commit() = %v", err)
	}

	if _, err := store.ReadFile(ctx, repo, res.CommitSHA, "a.txt"); !errors.Is(err, agenterr.ErrPathNotFound) {
		t.Errorf("ReadFile(a.txt) = %v, want path not found", err)
	}
	for p, want := range map[string]string{"b.txt": "B", "c.txt": "c"} {
		if got, err := store.ReadFile(ctx, repo, res.CommitSHA, p); err != nil || got != want {
			t.Errorf("ReadFile(%s) = %q, %v; want %q", p, got, err, want)
		}
	}
}

func TestCommitAtomicOnBlobFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	before := store.Init(repo, "main", map[string]string{"keep.txt": "x"})

	var calls int
	store.BlobHook = func([]byte) error {
		calls++
		if calls == 2 {
			return errors.New("blob storage unavailable")
		}
		return nil
	}

	b, err := commitbuilder.New(store)
	if err != nil {
		t.Fatal(err)
	}
	set := staging.New()
	mustStage(t, set,
		staging.Create("a.txt", "1", ""),
		staging.Create("b.txt", "2", ""),
		staging.Create("c.txt", "3", ""),
	)

	if _, err := b.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "three files"}); err == nil {
		t.Fatal("Commit() succeeded, want error")
	}
	if after := store.Head(repo, "main"); after != before {
		t.Errorf("branch moved from %s to %s on failed commit", before, after)
	}
	if set.Len() != 3 {
		t.Errorf("staging set has %d entries, want 3 retained", set.Len())
	}
}

// racingStore commits on behalf of another writer the first time a commit
// object is created, so the caller's branch update sees a moved ref.
type racingStore struct {
	*memstore.Store
	once   sync.Once
	rival  *commitbuilder.Builder
	t      *testing.T
	winner string
}

func (r *racingStore) CreateCommit(ctx context.Context, repo gitstore.Repo, message, tree string, parents []string, author gitstore.Author) (string, error) {
	r.once.Do(func() {
		set := staging.New()
		mustStage(r.t, set, staging.Create("rival.txt", "first", ""))
		res, err := r.rival.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "rival"})
		if err != nil {
			r.t.Errorf("rival Commit() = %v", err)
		}
		r.winner = res.CommitSHA
	})
	return r.Store.CreateCommit(ctx, repo, message, tree, parents, author)
}

func TestCommitConflictDetection(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	mem.Init(repo, "main", nil)

	rival, err := commitbuilder.New(mem)
	if err != nil {
		t.Fatal(err)
	}
	racing := &racingStore{Store: mem, rival: rival, t: t}
	b, err := commitbuilder.New(racing)
	if err != nil {
		t.Fatal(err)
	}

	set := staging.New()
	mustStage(t, set, staging.Create("mine.txt", "second", ""))

	_, err = b.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "mine"})
	if !errors.Is(err, agenterr.ErrCommitConflict) {
		t.Fatalf("Commit() = %v, want commit conflict", err)
	}
	if got := mem.Head(repo, "main"); got != racing.winner {
		t.Errorf("Head() = %s, want the rival commit %s", got, racing.winner)
	}
	if set.Len() != 1 {
		t.Errorf("staging set has %d entries, want 1 retained", set.Len())
	}
}

func TestCommitConflictRetry(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	mem.Init(repo, "main", nil)

	rival, err := commitbuilder.New(mem)
	if err != nil {
		t.Fatal(err)
	}
	racing := &racingStore{Store: mem, rival: rival, t: t}
	b, err := commitbuilder.New(racing, commitbuilder.WithConflictRetry(1))
	if err != nil {
		t.Fatal(err)
	}

	set := staging.New()
	mustStage(t, set, staging.Create("mine.txt", "second", ""))

	res, err := b.Commit(ctx, set, commitbuilder.Request{Repo: repo, Branch: "main", Message: "mine"})
	if err != nil {
		t.Fatalf("Commit() = %v", err)
	}
	if res.ParentSHA != racing.winner {
		t.Errorf("ParentSHA = %s, want rebuilt on %s", res.ParentSHA, racing.winner)
	}
	for _, p := range []string{"rival.txt", "mine.txt"} {
		if _, err := mem.ReadFile(ctx, repo, "main", p); err != nil {
			t.Errorf("ReadFile(%s) = %v", p, err)
		}
	}
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.Init(repo, "main", nil)
	b, err := commitbuilder.New(store)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  commitbuilder.Request
		set  func() *staging.Set
		want error
	}{{
		name: "nothing staged",
		req:  commitbuilder.Request{Repo: repo, Branch: "main", Message: "m"},
		set:  staging.New,
		want: agenterr.ErrValidation,
	}, {
		name: "missing message",
		req:  commitbuilder.Request{Repo: repo, Branch: "main"},
		set:  staging.New,
		want: agenterr.ErrValidation,
	}, {
		name: "missing branch",
		req:  commitbuilder.Request{Repo: repo, Branch: "nope", Message: "m"},
		set: func() *staging.Set {
			s := staging.New()
			mustStage(t, s, staging.Create("a.txt", "a", ""))
			return s
		},
		want: agenterr.ErrRefNotFound,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Commit(ctx, tt.set(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Commit() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	store := memstore.New()
	if _, err := commitbuilder.New(store, commitbuilder.WithConflictRetry(-1)); err == nil {
		t.Error("WithConflictRetry(-1) accepted")
	}
	if _, err := commitbuilder.New(store, commitbuilder.WithAuthor(gitstore.Author{Name: "x"})); err == nil {
		t.Error("WithAuthor without email accepted")
	}
	if _, err := commitbuilder.New(nil); !errors.Is(err, agenterr.ErrConfiguration) {
		t.Errorf("New(nil) = %v, want configuration error", err)
	}
}
