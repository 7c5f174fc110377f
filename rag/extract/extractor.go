// Package extract turns the raw bytes of an uploaded document into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mudler/localqa/rag/types"
	"github.com/mudler/xlog"
)

// MediaType enumerates the document kinds the extractor knows how to read.
type MediaType int

const (
	PDF MediaType = iota + 1
	Presentation
	PlainText
	WordDocument
	Image
	Audio
	HTML
)

var mediaTypeNames = map[MediaType]string{
	PDF:          "pdf",
	Presentation: "presentation",
	PlainText:    "text",
	WordDocument: "word",
	Image:        "image",
	Audio:        "audio",
	HTML:         "html",
}

// MediaTypes returns every supported media type.
func MediaTypes() []MediaType {
	return []MediaType{PDF, Presentation, PlainText, WordDocument, Image, Audio, HTML}
}

func (m MediaType) String() string {
	if name, ok := mediaTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MediaType(%d)", int(m))
}

var contentTypes = map[string]MediaType{
	"application/pdf": PDF,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": Presentation,
	"text/plain":    PlainText,
	"text/markdown": PlainText,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": WordDocument,
	"image/png":    Image,
	"image/jpeg":   Image,
	"image/jpg":    Image,
	"image/gif":    Image,
	"audio/mpeg":   Audio,
	"audio/mp3":    Audio,
	"audio/wav":    Audio,
	"audio/wave":   Audio,
	"audio/x-wav":  Audio,
	"audio/ogg":    Audio,
	"audio/flac":   Audio,
	"audio/x-flac": Audio,
	"audio/mp4":    Audio,
	"audio/x-m4a":  Audio,
	"audio/webm":   Audio,
	"text/html":    HTML,
}

// ParseMediaType maps a declared content type (parameters allowed) to a MediaType.
func ParseMediaType(contentType string) (MediaType, error) {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = strings.TrimSpace(contentType)
	}
	if mt, ok := contentTypes[strings.ToLower(base)]; ok {
		return mt, nil
	}
	return 0, fmt.Errorf("%w: %q", types.ErrUnsupportedMediaType, contentType)
}

// DetectMediaType sniffs the content, walking up the detected type hierarchy
// until a supported media type is found.
func DetectMediaType(data []byte) (MediaType, error) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if mt, err := ParseMediaType(m.String()); err == nil {
			return mt, nil
		}
	}
	return 0, fmt.Errorf("%w: detected %q", types.ErrUnsupportedMediaType, detected.String())
}

// ResolveMediaType uses the declared content type when it is specific, and
// sniffs the bytes when it is missing or generic.
func ResolveMediaType(declared string, data []byte) (MediaType, error) {
	switch strings.TrimSpace(declared) {
	case "", "application/octet-stream":
		return DetectMediaType(data)
	}
	return ParseMediaType(declared)
}

// Captioner scores a list of candidate captions against an image.
// It returns one confidence per candidate, in candidate order.
type Captioner interface {
	Score(ctx context.Context, img image.Image, candidates []string) ([]float64, error)
}

// Transcriber turns an audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type strategy func(ctx context.Context, data []byte) (string, error)

// Extractor dispatches extraction to one strategy per media type.
type Extractor struct {
	strategies  map[MediaType]strategy
	captioner   Captioner
	transcriber Transcriber
}

type Option func(*Extractor)

// WithCaptioner sets the collaborator used to describe images.
func WithCaptioner(c Captioner) Option {
	return func(e *Extractor) {
		e.captioner = c
	}
}

// WithTranscriber sets the collaborator used to transcribe audio.
func WithTranscriber(t Transcriber) Option {
	return func(e *Extractor) {
		e.transcriber = t
	}
}

// New returns an Extractor. It fails if any media type is left without a strategy.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{}
	for _, o := range opts {
		o(e)
	}

	e.strategies = map[MediaType]strategy{
		PDF:          extractPDF,
		Presentation: extractPresentation,
		PlainText:    extractText,
		WordDocument: extractWordDocument,
		Image:        e.extractImage,
		Audio:        e.extractAudio,
		HTML:         extractHTML,
	}

	for _, mt := range MediaTypes() {
		if _, ok := e.strategies[mt]; !ok {
			return nil, fmt.Errorf("no extraction strategy for media type %s", mt)
		}
	}

	return e, nil
}

// Extract returns the text content of data, read as the given media type.
func (e *Extractor) Extract(ctx context.Context, data []byte, mt MediaType) (string, error) {
	extract, ok := e.strategies[mt]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedMediaType, mt)
	}

	xlog.Debug("Extracting document", "type", mt.String(), "size", len(data))

	text, err := extract(ctx, data)
	if err != nil {
		if errors.Is(err, types.ErrExtractionFailed) || errors.Is(err, types.ErrUnsupportedMediaType) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", types.ErrExtractionFailed, mt, err)
	}

	return text, nil
}
