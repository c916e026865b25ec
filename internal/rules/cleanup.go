package rules

import (
	"regexp"
	"strings"
)

const terminalPunctuation = "。．.！!？?"

var (
	spaceBeforePunctuation = regexp.MustCompile(`\s+([、。，,.．！!？?：:；;）)」』])`)
	repeatedSpaces         = regexp.MustCompile(`[ \t]{2,}`)
)

// BasicCleanup trims the transcript, collapses repeated terminal punctuation
// and removes whitespace stranded before punctuation.
func BasicCleanup(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = collapseTerminal(text)
	text = spaceBeforePunctuation.ReplaceAllString(text, "$1")
	text = repeatedSpaces.ReplaceAllString(text, " ")
	return text
}

func collapseTerminal(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune
	for _, r := range text {
		if r == prev && strings.ContainsRune(terminalPunctuation, r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
