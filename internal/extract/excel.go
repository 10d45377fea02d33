package extract

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a heading followed by a table.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		writeElement(&b, "h2", html.EscapeString(sheet))
		b.WriteString("<table>")
		for _, row := range rows {
			b.WriteString("<tr>")
			for _, cell := range row {
				writeElement(&b, "td", html.EscapeString(cell))
			}
			b.WriteString("</tr>")
		}
		b.WriteString("</table>")
	}
	return b.String(), nil
}
