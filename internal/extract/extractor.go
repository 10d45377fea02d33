// Package extract converts files dropped into a library inbox into document HTML.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/quire/internal/richtext"
)

// Extensions lists the formats Extract understands.
var Extensions = []string{
	".md", ".markdown", ".txt", ".rst", ".html", ".htm",
	".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods", ".rtf",
}

// Extractor converts files to HTML.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) can be extracted.
func (e *Extractor) Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, x := range Extensions {
		if x == ext {
			return true
		}
	}
	return false
}

// Extract reads the file at path and returns its content as HTML.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes converts content based on ext, which includes the leading dot.
// Unknown extensions are treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".md", ".markdown":
		return richtext.FromMarkdown(validUTF8(content))
	case ".html", ".htm":
		return string(validUTF8(content)), nil
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".rtf":
		return extractRTF(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odt", ".odp", ".ods":
		return extractODF(content, ext)
	default:
		return textToHTML(string(validUTF8(content))), nil
	}
}

// Title derives a document title from a file name.
func Title(path string) string {
	base := filepath.Base(path)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		return base
	}
	return title
}

// validUTF8 replaces invalid sequences with the replacement character.
func validUTF8(content []byte) []byte {
	if utf8.Valid(content) {
		return content
	}
	return []byte(strings.ToValidUTF8(string(content), "�"))
}

// textToHTML makes a paragraph of every blank-line separated block.
func textToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var b strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i, l := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(l))
		}
		writeElement(&b, "p", strings.Join(lines, "<br>"))
	}
	return b.String()
}

// paragraphs wraps each non-empty text in an escaped <p>.
func paragraphs(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			writeElement(&b, "p", html.EscapeString(t))
		}
	}
	return b.String()
}

func writeElement(b *strings.Builder, tag, inner string) {
	b.WriteString("<" + tag + ">")
	b.WriteString(inner)
	b.WriteString("</" + tag + ">")
}

// readZipEntry returns the bytes of the entry called name.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
