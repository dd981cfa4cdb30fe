/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder bool
}

func tokenize(template string) ([]segment, error) {
	var segs []segment
	for template != "" {
		before, rest, found := strings.Cut(template, "{{")
		if before != "" {
			segs = append(segs, segment{text: before})
		}
		if !found {
			break
		}
		inner, after, closed := strings.Cut(rest, "}}")
		if !closed {
			return nil, errors.New("unclosed binding: missing '}}'")
		}
		name := strings.TrimSpace(inner)
		if !isIdentifier(name) {
			return nil, fmt.Errorf("invalid binding identifier %q", name)
		}
		segs = append(segs, segment{text: name, placeholder: true})
		template = after
	}
	return segs, nil
}

func placeholders(template string) ([]string, error) {
	segs, err := tokenize(template)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range segs {
		if s.placeholder {
			names = append(names, s.text)
		}
	}
	return names, nil
}

func expand(template string, values map[string]string) (string, error) {
	segs, err := tokenize(template)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, s := range segs {
		if !s.placeholder {
			sb.WriteString(s.text)
			continue
		}
		v, ok := values[s.text]
		if !ok {
			return "", fmt.Errorf("unbound placeholder: %s", s.text)
		}
		sb.WriteString(v)
	}
	return sb.String(), nil
}

// isIdentifier accepts a letter followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return s != ""
}
