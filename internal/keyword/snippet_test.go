package keyword

import (
	"strings"
	"testing"
)

func TestSnippet(t *testing.T) {
	long := strings.Repeat("filler words here ", 20) + "the needle sits here " + strings.Repeat("tail text ", 20)

	got := Snippet(long, []string{"needle"}, 40)
	if !strings.HasPrefix(got, "...") || !strings.Contains(got, "needle") {
		t.Errorf("Snippet = %q", got)
	}
	if n := len([]rune(strings.TrimPrefix(got, "..."))); n > 43 {
		t.Errorf("snippet too long: %d runes", n)
	}

	if got := Snippet("short text", []string{"zzz"}, 40); got != "short text" {
		t.Errorf("short = %q", got)
	}
	if got := Snippet(long, nil, 20); strings.HasPrefix(got, "...") || !strings.HasPrefix(got, "filler") {
		t.Errorf("no match should start at the beginning: %q", got)
	}
	if got := Snippet("a  b\n\nc", nil, 40); got != "a b c" {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}
