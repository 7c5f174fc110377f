package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/mudler/xlog"
)

// extractPDF concatenates the text of every page, each followed by a newline.
// A page that cannot be read contributes an empty string; a container that
// cannot be opened fails the whole document.
func extractPDF(_ context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var buf strings.Builder
	fonts := make(map[string]*pdf.Font)
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		buf.WriteString(pageText(r, i, fonts))
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

func pageText(r *pdf.Reader, n int, fonts map[string]*pdf.Font) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			xlog.Warn("Skipping unreadable pdf page", "page", n, "error", rec)
			text = ""
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return ""
	}

	// cache fonts so charmaps are parsed once per document
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}

	text, err := p.GetPlainText(fonts)
	if err != nil {
		xlog.Warn("Skipping unreadable pdf page", "page", n, "error", err)
		return ""
	}
	return text
}
