/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package websearch

import (
	"fmt"
	"strings"
)

// MaxChars is the length budget of a cleaned digest, in characters.
const MaxChars = 1500

// Clean formats results into a digest of at most MaxChars characters.
// Each result's content gets an equal share, floor(MaxChars/len(results)),
// with whitespace runs collapsed; content cut at its share ends in "...".
func Clean(results []Result, query string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	perResult := MaxChars / len(results)

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Web Search Results for: %q**\n\n", query)
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		url := r.URL
		if url == "" {
			url = "No URL"
		}
		content := r.Content
		if content == "" {
			content = r.RawContent
		}
		if content == "" {
			content = "No content available"
		}

		cleaned := truncate(strings.Join(strings.Fields(content), " "), perResult)
		fmt.Fprintf(&sb, "**%d. %s**\n", i+1, title)
		fmt.Fprintf(&sb, "%s\n", url)
		sb.WriteString(cleaned)
		if len([]rune(cleaned)) >= perResult {
			sb.WriteString("...")
		}
		sb.WriteString("\n\n")
	}

	out := sb.String()
	if len([]rune(out)) > MaxChars {
		out = truncate(out, MaxChars-3) + "..."
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
