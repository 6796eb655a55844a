// Package htmlsanitize strips markup from user-supplied display text
// (organization names and descriptions, lead and member names) before it is
// stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText removes every tag, drops script and style bodies, and trims the
// result. Entities escaped by the policy are decoded again so "A & B" is
// stored as typed.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
