package llm

import (
	"bytes"
	"context"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber sends audio to an OpenAI-compatible transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(client *openai.Client, model string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
