// Package utils provides shared text, math and logging helpers.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// strippedChars are replaced by spaces during normalization: quoting, statement and
// wildcard characters that carry no meaning for lexical matching.
const strippedChars = "'\";\\%_*?()[]{}<>|&$`"

// edgePunct is trimmed from both ends of a token.
const edgePunct = ".,:!-/+#@="

// NormalizeText lowercases s, replaces stripped and control characters with spaces, and
// collapses runs of whitespace to one space. The result has no leading or trailing space.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(strippedChars, r) {
			if !wasSpace {
				b.WriteByte(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

// TrimEdgePunct trims the punctuation Tokenize strips from tokens off both ends of s.
func TrimEdgePunct(s string) string {
	return strings.TrimSpace(strings.Trim(s, edgePunct))
}

// Tokenize splits normalized text into distinct tokens in first-seen order.
// Leading and trailing punctuation is trimmed from each token.
func Tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, edgePunct)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
