package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	"jaytaylor.com/html2text"
)

func extractText(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid utf-8")
	}
	return string(data), nil
}

func extractHTML(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("html is not valid utf-8")
	}
	return html2text.FromString(string(data), html2text.Options{PrettyTables: true})
}
