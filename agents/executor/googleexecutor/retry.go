/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"errors"
	"net/http"
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
	"google.golang.org/genai"
)

// transientMessages match errors surfaced without a typed status.
var transientMessages = []string{
	"RESOURCE_EXHAUSTED",
	"Resource exhausted",
	"quota exceeded",
	"rate limit",
	"Overloaded",
	"Service Unavailable",
	"Internal error",
	"server error",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify tags authentication failures as credential errors.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return agenterr.New(agenterr.KindCredentialUnavailable, "generate_content_stream", err)
		}
	}
	return err
}
