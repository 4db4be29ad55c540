package validator

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// strictPolicy strips all HTML. bluemonday policies are safe for concurrent use.
var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText normalises free text (names, descriptions) before storage:
// NFKC normalisation, removal of control characters, HTML stripping and
// whitespace trimming.
func SanitizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = strictPolicy.Sanitize(s)
	// bluemonday escapes what it keeps; names are stored unescaped.
	s = unescaper.Replace(s)
	return strings.TrimSpace(s)
}

var unescaper = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", `"`, "&lt;", "<", "&gt;", ">")
