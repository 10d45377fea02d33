package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const pptxSlidePathPrefix = "ppt/slides/slide"

var (
	apTag = regexp.MustCompile(`(?s)<a:p(?:\s[^>]*[^/])?>(.*?)</a:p>`)
	atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

// extractPPTX renders slides in order, each under a "Slide N" heading.
func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}

	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePathPrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, pptxSlidePathPrefix), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n, f.Name})
	}
	// slide10 sorts after slide9.
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var b strings.Builder
	for _, s := range slides {
		xml, err := readZipEntry(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		var texts []string
		for _, p := range apTag.FindAllSubmatch(xml, -1) {
			texts = append(texts, runText(atTag, p[1]))
		}
		body := paragraphs(texts)
		if body == "" {
			continue
		}
		writeElement(&b, "h2", "Slide "+strconv.Itoa(s.n))
		b.WriteString(body)
	}
	return b.String(), nil
}
