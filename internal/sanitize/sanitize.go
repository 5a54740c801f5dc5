// Package sanitize strips markup noise from scraped page text before it is
// stored as a research finding.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxChars caps the length of sanitized content.
const MaxChars = 80000

var (
	imageLink = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	hyperlink = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	refDef    = regexp.MustCompile(`(?m)^[ \t]*\[[^\]]+\]:[ \t]+\S.*$`)
	angledURL = regexp.MustCompile(`<(?:https?|ftp)://[^>\s]*>`)
	bareURL   = regexp.MustCompile(`(?:https?|ftp)://[^\s<>"'\)\]]+`)
)

// Clean removes image links, hyperlink markup (keeping the link text),
// reference-style link definitions, angle-bracketed and bare URLs, trims
// surrounding whitespace, and truncates to MaxChars.
// Idempotent: Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	s := imageLink.ReplaceAllString(raw, "")
	s = hyperlink.ReplaceAllString(s, "$1")
	s = refDef.ReplaceAllString(s, "")
	s = angledURL.ReplaceAllString(s, "")
	s = bareURL.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > MaxChars {
		s = strings.TrimSpace(truncate(s, MaxChars))
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
