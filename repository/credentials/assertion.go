/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// AssertionLifetime is how long a minted assertion is accepted by the host.
	AssertionLifetime = 10 * time.Minute
	// ClockSkew backdates the issued-at claim.
	ClockSkew = 60 * time.Second
)

// ParsePrivateKey decodes a PEM encoded RSA key in PKCS#1 or PKCS#8 form.
// Literal "\n" sequences, as found in single-line environment values,
// are turned back into newlines first.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	text := strings.TrimSpace(string(data))
	if !strings.Contains(text, "\n") {
		text = strings.ReplaceAll(text, `\n`, "\n")
	}
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, agenterr.Newf(agenterr.KindConfiguration, "parse_private_key", "no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, agenterr.New(agenterr.KindConfiguration, "parse_private_key", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, agenterr.New(agenterr.KindConfiguration, "parse_private_key", errors.New("private key is not RSA"))
	}
	return key, nil
}

// MintAssertion signs a short-lived RS256 token identifying the app.
func MintAssertion(appID int64, key *rsa.PrivateKey, now time.Time) (string, error) {
	if appID <= 0 {
		return "", agenterr.Newf(agenterr.KindConfiguration, "mint_assertion", "app id is required")
	}
	if key == nil {
		return "", agenterr.Newf(agenterr.KindConfiguration, "mint_assertion", "private key is required")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-ClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(AssertionLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", agenterr.New(agenterr.KindConfiguration, "mint_assertion", err)
	}
	return signed, nil
}
