/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix precedes the hex digest in the signature header.
const SignaturePrefix = "sha256="

// Verify reports whether digest is the HMAC-SHA256 of body under secret.
// digest may carry the "sha256=" prefix. The body must be the exact bytes
// received; an empty digest or secret never verifies.
func Verify(body []byte, digest, secret string) bool {
	if digest == "" || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(digest), SignaturePrefix))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// Sign returns the prefixed signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
