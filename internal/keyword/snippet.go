package keyword

import (
	"strings"
	"unicode"

	"github.com/hyperjump/quire/pkg/utils"
)

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Snippet returns about width runes of text around the first occurrence of
// any of terms, or the start of text when none occurs.
func Snippet(text string, terms []string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if width <= 0 || len(runes) <= width {
		return text
	}
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	at := -1
	for _, t := range terms {
		if i := indexRunes(lower, []rune(t)); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	start := 0
	if at > width/4 {
		start = at - width/4
		// back up to a word start
		for start > 0 && isWordRune(runes[start-1]) {
			start--
		}
	}
	out := utils.Truncate(string(runes[start:]), width)
	if start > 0 {
		out = "..." + out
	}
	return out
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
