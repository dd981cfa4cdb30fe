/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"errors"
	"net/http"

	"chainguard.dev/repoagent/agents/agenterr"
	"github.com/anthropics/anthropic-sdk-go"
)

// statusOverloaded is Anthropic's status for an overloaded model.
const statusOverloaded = 529

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout, statusOverloaded:
		return true
	}
	return false
}

// classify tags authentication failures as credential errors.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return agenterr.New(agenterr.KindCredentialUnavailable, "stream_message", err)
		}
	}
	return err
}
