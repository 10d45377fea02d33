// Package cli writes quire command output as text or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/quire/internal/doctree"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteLibraries lists libraries. current, when set, is marked with "*".
func WriteLibraries(w io.Writer, libs []models.Library, current string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, models.LibraryListResponse{Libraries: libs})
	}
	if len(libs) == 0 {
		_, err := fmt.Fprintln(w, "No libraries. Create one with: quire libraries create <name>")
		return err
	}
	for _, lib := range libs {
		mark := " "
		if current != "" && (lib.ID() == current || lib.Name == current) {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %-20s %s\n", mark, lib.Name, lib.Path); err != nil {
			return err
		}
	}
	return nil
}

type treeNode struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	Children []treeNode `json:"children,omitempty"`
}

// WriteTree draws the forest with box-drawing prefixes, or nests it as JSON.
// selected, when non-nil, is marked with "*".
func WriteTree(w io.Writer, forest *doctree.Forest, selected *int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, nestedNodes(forest, forest.Roots()))
	}
	if forest.Len() == 0 {
		_, err := fmt.Fprintln(w, "(empty library)")
		return err
	}
	var b strings.Builder
	drawTree(&b, forest, forest.Roots(), "", selected)
	_, err := io.WriteString(w, b.String())
	return err
}

func nestedNodes(forest *doctree.Forest, ids []int64) []treeNode {
	nodes := make([]treeNode, 0, len(ids))
	for _, id := range ids {
		doc, _ := forest.Get(id)
		nodes = append(nodes, treeNode{ID: id, Title: doc.Title, Children: nestedNodes(forest, forest.Children(id))})
	}
	return nodes
}

func drawTree(b *strings.Builder, forest *doctree.Forest, ids []int64, prefix string, selected *int64) {
	for i, id := range ids {
		last := i == len(ids)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		doc, _ := forest.Get(id)
		mark := ""
		if selected != nil && *selected == id {
			mark = " *"
		}
		fmt.Fprintf(b, "%s%s%s [%d]%s\n", prefix, branch, doc.Title, id, mark)
		drawTree(b, forest, forest.Children(id), prefix+indent, selected)
	}
}

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// WriteDocument prints a document. Text output converts the body to markdown.
func WriteDocument(w io.Writer, doc *models.Document, path []models.Document, format OutputFormat) error {
	return WriteDocumentWith(w, doc, path, format, nil)
}

// WriteDocumentWith is WriteDocument with the markdown body passed through
// render when it is non-nil.
func WriteDocumentWith(w io.Writer, doc *models.Document, path []models.Document, format OutputFormat, render Renderer) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	titles := make([]string, 0, len(path))
	for _, p := range path {
		titles = append(titles, p.Title)
	}
	if len(titles) == 0 {
		titles = append(titles, doc.Title)
	}
	body, err := richtext.ToMarkdown(doc.Content)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s  [%d]\n", strings.Join(titles, " / "), doc.ID)
	fmt.Fprintln(w, strings.Repeat("─", 57))
	if body == "" {
		body = "(empty)"
	} else if render != nil {
		if body, err = render(body); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w, body)
	return err
}

// WriteResult prints msg as text, or v as JSON.
func WriteResult(w io.Writer, msg string, v any, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}

// ShareLinks are the two links to a document.
type ShareLinks struct {
	ReadOnly string `json:"read_only"`
	Edit     string `json:"edit"`
}

// WriteShareLinks prints the read-only and edit links.
func WriteShareLinks(w io.Writer, links ShareLinks, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, links)
	}
	_, err := fmt.Fprintf(w, "read-only: %s\nedit:      %s\n", links.ReadOnly, links.Edit)
	return err
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n", len(response.Hits), response.QueryTime)
	if response.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", response.Suggestion)
	}
	fmt.Fprintln(w)
	for i, hit := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s [%d] | Score: %.4f\n", i+1, hit.Title, hit.ID, hit.Score)
		if hit.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(hit.Snippet, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteStatus prints service counts.
func WriteStatus(w io.Writer, serverURL string, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Server:     %s\n", serverURL)
	fmt.Fprintf(w, "Libraries:  %d\n", st.Libraries)
	fmt.Fprintf(w, "Documents:  %d (%d indexed)\n", st.Documents, st.IndexedDocs)
	fmt.Fprintf(w, "Storage:    %s, images on %s\n", st.StorageDriver, st.ImagesBackend)
	if st.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(st.DiskUsageBytes))
	}
	for _, lib := range st.Watched {
		fmt.Fprintf(w, "Watching:   %s\n", lib)
	}
	return nil
}

// FormatBytes renders n with a binary unit, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
