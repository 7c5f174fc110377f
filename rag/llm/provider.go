package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Provider produces a completion for a system and user prompt.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewClient returns an OpenAI-compatible client for the given endpoint.
// An empty baseURL keeps the go-openai default.
func NewClient(token, baseURL string) *openai.Client {
	config := openai.DefaultConfig(token)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// OpenAIProvider calls a chat completion endpoint speaking the OpenAI API.
type OpenAIProvider struct {
	client *openai.Client
	spec   ModelSpec
}

func NewOpenAIProvider(client *openai.Client, spec ModelSpec) *OpenAIProvider {
	return &OpenAIProvider{client: client, spec: spec}
}

func (p *OpenAIProvider) request(system, prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.spec.Deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.spec.Temperature,
		TopP:        p.spec.TopP,
		MaxTokens:   p.spec.MaxTokens,
		Stream:      p.spec.Stream,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	var (
		text string
		err  error
	)
	if p.spec.Stream {
		text, err = p.stream(ctx, p.request(system, prompt))
	} else {
		text, err = p.complete(ctx, p.request(system, prompt))
	}
	if err != nil {
		return "", err
	}

	if p.spec.StripAfter != "" {
		if i := strings.LastIndex(text, p.spec.StripAfter); i >= 0 {
			text = text[i+len(p.spec.StripAfter):]
		}
		text = strings.TrimSpace(text)
	}
	return text, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned by %s", p.spec.Deployment)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) stream(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) > 0 {
			b.WriteString(resp.Choices[0].Delta.Content)
		}
	}
}
