package provider

import (
	"html"
	"regexp"
	"strings"
)

var (
	ssmlBreak = regexp.MustCompile(`(?i)<break[^>]*/?>`)
	ssmlTag   = regexp.MustCompile(`<[^>]+>`)
	spaces    = regexp.MustCompile(`\s+`)
)

// StripSSML reduces an SSML document to its spoken text.
func StripSSML(ssml string) string {
	s := ssmlBreak.ReplaceAllString(ssml, " ")
	s = ssmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
