// Package llm talks to the chat models that answer questions about a document.
package llm

import (
	"fmt"
	"strings"
)

// ModelID names one of the models a question can be sent to.
type ModelID string

const (
	Phi3Small   ModelID = "phi-3-small"
	Mistral     ModelID = "mistral"
	MetaLlama3  ModelID = "meta-llama-3"
	GPT4o       ModelID = "gpt-4o"
	Gemini      ModelID = "gemini"
	Jamba15Mini ModelID = "ai21-jamba-1.5-mini"
)

// AllModels lists every known model in display order.
var AllModels = []ModelID{Phi3Small, Mistral, MetaLlama3, GPT4o, Gemini, Jamba15Mini}

func (m ModelID) String() string {
	return string(m)
}

// Valid reports whether m is one of AllModels.
func (m ModelID) Valid() bool {
	for _, known := range AllModels {
		if m == known {
			return true
		}
	}
	return false
}

// ParseModelID trims and validates a model id coming from a request.
func ParseModelID(s string) (ModelID, error) {
	m := ModelID(strings.TrimSpace(s))
	if !m.Valid() {
		return "", fmt.Errorf("unknown model: %q", s)
	}
	return m, nil
}

// ParseModelIDs validates a list of ids, dropping duplicates and keeping order.
func ParseModelIDs(ids []string) ([]ModelID, error) {
	models := make([]ModelID, 0, len(ids))
	seen := map[ModelID]bool{}
	for _, id := range ids {
		m, err := ParseModelID(id)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	return models, nil
}

// ModelSpec holds the request parameters used for a model.
type ModelSpec struct {
	// Deployment is the model name sent to the endpoint.
	Deployment  string
	Temperature float32
	TopP        float32
	MaxTokens   int
	// Stream reads the answer as a stream of deltas.
	Stream bool
	// StripAfter keeps only the text after the last occurrence of this marker.
	StripAfter string
}

// DefaultSpecs are the parameters each model is called with unless overridden.
var DefaultSpecs = map[ModelID]ModelSpec{
	Phi3Small: {
		Deployment: "Phi-3-small-128k-instruct",
		Stream:     true,
		StripAfter: "Response:",
	},
	Mistral: {
		Deployment:  "Mistral-nemo",
		Temperature: 0.7,
		TopP:        1,
		MaxTokens:   1000,
	},
	MetaLlama3: {
		Deployment:  "meta-llama-3-8b-instruct",
		Temperature: 1,
		TopP:        1,
		MaxTokens:   1000,
	},
	GPT4o: {
		Deployment: "gpt-4o",
	},
	Gemini: {
		Deployment: "gemini-1.5-flash",
	},
	Jamba15Mini: {
		Deployment: "AI21-Jamba-1.5-Mini",
	},
}
