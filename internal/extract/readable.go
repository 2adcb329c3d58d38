// Package extract turns fetched HTML into plain text and pulls heuristic
// facts (impressum, LinkedIn, employer rating) out of that text. Every
// function here is pure: no network, no logging.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	hiddenBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b[^>]*>.*?</(script|style|noscript)\s*>`)

	// Block-level tags become line breaks so that label/value pairs such as
	// "Headquarters" / "Munich" stay on separate lines after stripping.
	blockTagRe = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|tr|td|th|dt|dd|dl|section|article|header|footer|nav|main|aside|table|address|blockquote|form|hr|title)\b[^>]*>`)

	// Any '<' followed by a tag-name start up to the next '>' or end of input.
	anyTagRe = regexp.MustCompile(`<[a-zA-Z/!?][^>]*(?:>|$)`)

	horizontalSpaceRe = regexp.MustCompile(`[\t\f\v\r \x{00A0}\x{1680}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]+`)
	spaceAroundNLRe   = regexp.MustCompile(` ?\n ?`)
	blankLinesRe      = regexp.MustCompile(`\n{3,}`)
)

// ToReadableText strips scripts, styles, and markup from html, decodes
// entities, and normalizes whitespace. The result contains no markup and
// ToReadableText(ToReadableText(x)) == ToReadableText(x).
func ToReadableText(htmlSrc string) string {
	if !utf8.ValidString(htmlSrc) {
		htmlSrc = strings.ToValidUTF8(htmlSrc, "")
	}

	// Entities may encode markup ("&lt;b&gt;"), so strip and decode until
	// nothing changes. Every pass that changes anything shortens the text.
	text := htmlSrc
	for {
		next := hiddenBlockRe.ReplaceAllString(text, " ")
		next = blockTagRe.ReplaceAllString(next, "\n")
		next = anyTagRe.ReplaceAllString(next, " ")
		next = html.UnescapeString(next)
		if next == text {
			break
		}
		text = next
	}

	return normalizeWhitespace(text)
}

func normalizeWhitespace(s string) string {
	s = horizontalSpaceRe.ReplaceAllString(s, " ")
	s = spaceAroundNLRe.ReplaceAllString(s, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
