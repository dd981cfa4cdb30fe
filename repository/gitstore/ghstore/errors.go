/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghstore

import (
	"context"
	"errors"
	"net/http"

	"chainguard.dev/repoagent/agents/agenterr"
	"github.com/google/go-github/v84/github"
)

// classify maps a go-github error to an agenterr kind. notFound is the kind
// reported for a 404 and may be empty when a 404 has no specific meaning.
func classify(op string, err error, notFound agenterr.Kind) error {
	var (
		rate  *github.RateLimitError
		abuse *github.AbuseRateLimitError
		resp  *github.ErrorResponse
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return agenterr.New(agenterr.KindTimeout, op, err)
	case errors.As(err, &rate), errors.As(err, &abuse):
		return agenterr.New(agenterr.KindRateLimited, op, err)
	case errors.As(err, &resp) && resp.Response != nil:
		switch code := resp.Response.StatusCode; {
		case code == http.StatusNotFound && notFound != "":
			return agenterr.New(notFound, op, err)
		case code == http.StatusUnauthorized:
			return agenterr.New(agenterr.KindCredentialUnavailable, op, err)
		case code == http.StatusConflict, code == http.StatusUnprocessableEntity && op == "update_ref":
			return agenterr.New(agenterr.KindCommitConflict, op, err)
		case code == http.StatusUnprocessableEntity:
			return agenterr.New(agenterr.KindValidation, op, err)
		case code == http.StatusTooManyRequests:
			return agenterr.New(agenterr.KindRateLimited, op, err)
		}
	}
	return agenterr.New(agenterr.KindUnknown, op, err)
}
