/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package commitbuilder

import (
	"errors"
	"time"

	"chainguard.dev/repoagent/repository/gitstore"
)

// Option configures a Builder.
type Option func(*Builder) error

// WithAuthor sets the identity recorded on commits.
func WithAuthor(author gitstore.Author) Option {
	return func(b *Builder) error {
		if author.Name == "" || author.Email == "" {
			return errors.New("author name and email are required")
		}
		b.author = author
		return nil
	}
}

// WithConflictRetry rebuilds the commit on a fresh parent up to n times
// when the branch moves underneath it. The default is no retry.
func WithConflictRetry(n int) Option {
	return func(b *Builder) error {
		if n < 0 {
			return errors.New("conflict retries cannot be negative")
		}
		b.conflictRetries = n
		return nil
	}
}

// WithCallTimeout bounds each object-store call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Builder) error {
		if d < 0 {
			return errors.New("call timeout cannot be negative")
		}
		b.callTimeout = d
		return nil
	}
}
