package types

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrUnsupportedMediaType is returned when the declared media type has no extraction strategy.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrExtractionFailed is returned when a document container cannot be opened or decoded.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEmptyDocument is returned when a document yields no fragments after chunking.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrSessionNotFound is returned for unknown, closed or expired session identifiers.
	ErrSessionNotFound = errors.New("session not found")
)

// ProviderError reports the failure of a single model. It never aborts a batch.
type ProviderError struct {
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the provider rejected the call with HTTP 429.
func (e *ProviderError) IsRateLimited() bool {
	var apiErr *openai.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(e.Err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
