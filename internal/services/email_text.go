package services

import (
	"html"
	"regexp"
	"strings"
)

// MinEmailBodyChars is the substance threshold: bodies shorter than this
// after stripping are treated as boilerplate and produce no document.
const MinEmailBodyChars = 100

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	replyHeaderRe = regexp.MustCompile(`(?im)^\s*(On .{0,200} wrote:|-{2,}\s*Original Message\s*-{2,}|-{2,}\s*Forwarded message\s*-{2,}|Begin forwarded message:)`)
	lineBreakRe   = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/tr)[^>]*>`)
	wsRe          = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// EmailPlainText reduces an inbound message to the text a person actually
// wrote: tags and entities removed, quoted replies and forward headers cut,
// whitespace collapsed. Prefers the plain-text part when present.
func EmailPlainText(htmlBody, textBody string) string {
	text := strings.TrimSpace(textBody)
	if text == "" {
		text = stripHTML(htmlBody)
	}
	return strings.TrimSpace(stripBoilerplate(text))
}

func stripHTML(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	// Keep paragraph structure so boilerplate markers stay line-anchored.
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

func stripBoilerplate(s string) string {
	// Everything from the first reply/forward marker down is quoted history.
	if loc := replyHeaderRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}

	var out []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		out = append(out, wsRe.ReplaceAllString(trimmed, " "))
	}

	joined := strings.Join(out, "\n")
	return blankRunRe.ReplaceAllString(joined, "\n\n")
}
