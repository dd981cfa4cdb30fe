/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"regexp"
	"strings"
)

// Category is the coarse intent of a bot command.
type Category string

const (
	CategoryExplain Category = "explain"
	CategoryFix     Category = "fix"
	CategorySearch  Category = "search"
	CategoryCreate  Category = "create"
	CategoryUpdate  Category = "update"
	CategoryDelete  Category = "delete"
	CategoryHelp    Category = "help"
	CategoryUnknown Category = "unknown"
)

// Checked in order; the first category with a matching keyword wins.
var vocabulary = []struct {
	category Category
	keywords []string
}{
	{CategoryExplain, []string{"explain", "what", "analyze", "review"}},
	{CategoryFix, []string{"fix", "resolve", "solve", "address"}},
	{CategorySearch, []string{"search", "find", "locate", "grep"}},
	{CategoryCreate, []string{"create", "add", "new", "generate"}},
	{CategoryUpdate, []string{"update", "modify", "change", "edit"}},
	{CategoryDelete, []string{"delete", "remove", "rm"}},
	{CategoryHelp, []string{"help", "commands", "usage"}},
}

func mentionPattern(handle string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(strings.TrimPrefix(handle, "@")) + `\b`)
}

// Mentions reports whether text mentions @handle, ignoring case.
func Mentions(text, handle string) bool {
	if handle == "" {
		return false
	}
	return mentionPattern(handle).MatchString(text)
}

// ExtractCommand removes every mention of @handle from text and returns
// the remaining instruction.
func ExtractCommand(text, handle string) string {
	if handle == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(mentionPattern(handle).ReplaceAllString(text, ""))
}

// Categorize classifies a command by its leading word.
func Categorize(command string) Category {
	fields := strings.Fields(strings.ToLower(command))
	if len(fields) == 0 {
		return CategoryUnknown
	}
	verb := fields[0]
	for _, v := range vocabulary {
		for _, kw := range v.keywords {
			if strings.Contains(verb, kw) {
				return v.category
			}
		}
	}
	return CategoryUnknown
}
