package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	// odfBlock matches headings and paragraphs, e.g. <text:p text:style-name="P1">.
	odfBlock = regexp.MustCompile(`(?s)<text:(?:p|h)(?:\s[^>]*[^/])?>(.*?)</text:(?:p|h)>`)
	odfTag   = regexp.MustCompile(`<[^>]+>`)
)

// extractODF renders the paragraphs of an OpenDocument text, presentation or
// spreadsheet (content.xml) as HTML paragraphs.
func extractODF(content []byte, ext string) (string, error) {
	kind := strings.ToUpper(strings.TrimPrefix(ext, "."))
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	xml, err := readZipEntry(zr, "content.xml")
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}
	var texts []string
	for _, m := range odfBlock.FindAllSubmatch(xml, -1) {
		inner := strings.ReplaceAll(string(m[1]), "<text:s/>", " ")
		texts = append(texts, html.UnescapeString(odfTag.ReplaceAllString(inner, "")))
	}
	return paragraphs(texts), nil
}
