package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractRTF strips RTF control words and keeps the paragraph breaks.
func extractRTF(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return textToHTML(text), nil
}
