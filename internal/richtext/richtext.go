// Package richtext converts document bodies between the HTML stored by the
// service, markdown for terminals and plain text for the search index.
package richtext

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]+`)
)

// Sanitizer strips scripts, event handlers and unsafe URLs from document HTML.
// It is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a sanitizer with the user generated content policy.
// Inline data images are allowed since pasted screenshots arrive that way.
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	return &Sanitizer{policy: p}
}

// Sanitize returns the safe subset of s.
func (s *Sanitizer) Sanitize(h string) string {
	return s.policy.Sanitize(h)
}

var defaultSanitizer = NewSanitizer()

// Sanitize cleans h with the default policy.
func Sanitize(h string) string {
	return defaultSanitizer.Sanitize(h)
}

// ToMarkdown renders document HTML as markdown.
func ToMarkdown(h string) (string, error) {
	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(Sanitize(h))
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FromMarkdown renders markdown source as HTML.
func FromMarkdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// PlainText flattens HTML into text, one block per paragraph.
func PlainText(h string) string {
	doc, err := html.Parse(strings.NewReader(h))
	if err != nil {
		return h
	}
	var sb strings.Builder
	collectText(doc, &sb)
	return cleanText(sb.String())
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			return
		case "br":
			sb.WriteString("\n")
			return
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString(alt)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		sb.WriteString("\n\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "pre", "blockquote", "table", "ul", "ol",
		"h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanText(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ImageTag is the HTML inserted into a document after an image upload.
func ImageTag(library, filename string) string {
	return fmt.Sprintf(`<img src="%s">`, html.EscapeString(ImagePath(library, filename)))
}

// ImagePath is the service path an uploaded image is served from.
func ImagePath(library, filename string) string {
	return "/api/images/" + url.PathEscape(library) + "/" + url.PathEscape(filename)
}
