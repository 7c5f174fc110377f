package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const visionPrompt = `Rate how well each of the following captions describes the image.
Reply with a JSON object of the form {"scores": [...]} holding one non-negative number per caption, in the same order.
Captions:
%s`

// VisionCaptioner scores caption candidates against an image with a
// vision-capable chat model. Scores are normalised to sum to 1.
type VisionCaptioner struct {
	client *openai.Client
	model  string
}

func NewVisionCaptioner(client *openai.Client, model string) *VisionCaptioner {
	return &VisionCaptioner{client: client, model: model}
}

type visionScores struct {
	Scores []float64 `json:"scores"`
}

func (v *VisionCaptioner) Score(ctx context.Context, img image.Image, candidates []string) ([]float64, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c)
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: fmt.Sprintf(visionPrompt, list.String())},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailLow}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned by %s", v.model)
	}

	var out visionScores
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse scores: %w", err)
	}
	if len(out.Scores) != len(candidates) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(candidates), len(out.Scores))
	}

	return Normalize(out.Scores), nil
}

// Normalize clamps negative scores to zero and scales the rest to sum to 1.
// An all-zero input becomes a uniform distribution.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		if s > 0 {
			out[i] = s
			sum += s
		}
	}
	for i := range out {
		if sum == 0 {
			out[i] = 1 / float64(len(out))
		} else {
			out[i] /= sum
		}
	}
	return out
}
