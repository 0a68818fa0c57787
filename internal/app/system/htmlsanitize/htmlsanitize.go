// Package htmlsanitize cleans free text before it is stored.
//
// Titles, locations, and notes are plain text: every tag is stripped.
// Descriptions may carry light formatting and go through the UGC policy.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()
	ugc    = bluemonday.UGCPolicy()
)

// Text strips all markup and trims surrounding whitespace. The result is
// plain text (entities decoded), so consumers escape it when rendering.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Sanitize keeps safe formatting (paragraphs, emphasis, links) and removes
// scripts, event handlers, and javascript: URLs.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(ugc.Sanitize(s))
}
