package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// CaptionTemplates are the candidate descriptions scored against every image.
var CaptionTemplates = []string{
	"This is a photo of",
	"This image contains",
	"This picture shows",
	"The main subject of this image is",
	"This image depicts",
	"The scene in this image is",
	"This photograph captures",
	"The primary focus of this image is",
	"This visual representation includes",
	"The key elements in this image are",
}

// CaptionCount is the number of captions kept for an image.
const CaptionCount = 3

func (e *Extractor) extractImage(ctx context.Context, data []byte) (string, error) {
	if e.captioner == nil {
		return "", fmt.Errorf("no captioner configured")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	scores, err := e.captioner.Score(ctx, img, CaptionTemplates)
	if err != nil {
		return "", fmt.Errorf("captioner (%s image): %w", format, err)
	}
	if len(scores) != len(CaptionTemplates) {
		return "", fmt.Errorf("captioner returned %d scores for %d candidates", len(scores), len(CaptionTemplates))
	}

	return FormatCaptions(CaptionTemplates, scores, CaptionCount), nil
}

// FormatCaptions keeps the n best candidates by score, highest first, ties in
// candidate order, and renders them one per line.
func FormatCaptions(candidates []string, scores []float64, n int) string {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if n > len(order) {
		n = len(order)
	}

	lines := make([]string, 0, n)
	for _, i := range order[:n] {
		lines = append(lines, fmt.Sprintf("%s (confidence: %.2f)", candidates[i], scores[i]))
	}

	return "Image Analysis:\n" + strings.Join(lines, "\n")
}

func (e *Extractor) extractAudio(ctx context.Context, data []byte) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty audio clip")
	}

	// the transcription backend infers the container from the file name
	filename := "audio" + mimetype.Detect(data).Extension()

	transcript, err := e.transcriber.Transcribe(ctx, data, filename)
	if err != nil {
		return "", fmt.Errorf("transcriber: %w", err)
	}

	return "Audio Transcription:\n" + transcript, nil
}
