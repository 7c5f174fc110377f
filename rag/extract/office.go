package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPresentation returns the text of every text-bearing shape, slide by
// slide in slide order, shapes in document order, each followed by a newline.
func extractPresentation(_ context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open presentation: %w", err)
	}

	type slide struct {
		number int
		file   *zip.File
	}

	var slides []slide
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: f})
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("presentation has no slides")
	}

	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var buf strings.Builder
	for _, s := range slides {
		shapes, err := readZipXML(s.file, slideShapes)
		if err != nil {
			return "", fmt.Errorf("failed to read slide %d: %w", s.number, err)
		}
		for _, shape := range shapes {
			buf.WriteString(shape)
			buf.WriteString("\n")
		}
	}

	return buf.String(), nil
}

// extractWordDocument returns the paragraph texts of the document body, one per line.
func extractWordDocument(_ context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open word document: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		paragraphs, err := readZipXML(f, documentParagraphs)
		if err != nil {
			return "", fmt.Errorf("failed to read document body: %w", err)
		}
		return strings.Join(paragraphs, "\n"), nil
	}

	return "", fmt.Errorf("word document has no body")
}

func readZipXML(f *zip.File, parse func(*xml.Decoder) ([]string, error)) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return parse(xml.NewDecoder(rc))
}

// slideShapes collects the text of each shape (p:sp) that carries a text body.
// Paragraphs (a:p) inside a shape are joined with newlines.
func slideShapes(dec *xml.Decoder) ([]string, error) {
	var (
		shapes     []string
		paragraphs []string
		para       strings.Builder
		depth      int
		hasBody    bool
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return shapes, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				depth++
				if depth == 1 {
					paragraphs = nil
					hasBody = false
				}
			case "txBody":
				hasBody = hasBody || depth > 0
			case "t":
				inText = depth > 0
			case "br":
				if depth > 0 {
					para.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if depth > 0 && hasBody {
					paragraphs = append(paragraphs, para.String())
					para.Reset()
				}
			case "sp":
				depth--
				if depth == 0 && hasBody {
					shapes = append(shapes, strings.Join(paragraphs, "\n"))
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
}

// documentParagraphs collects the text of every w:p paragraph in order.
func documentParagraphs(dec *xml.Decoder) ([]string, error) {
	var (
		paragraphs []string
		para       strings.Builder
		inPara     int
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paragraphs, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara++
			case "t":
				inText = inPara > 0
			case "tab":
				if inPara > 0 {
					para.WriteString("\t")
				}
			case "br", "cr":
				if inPara > 0 {
					para.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara--
				if inPara == 0 {
					paragraphs = append(paragraphs, para.String())
					para.Reset()
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
}
