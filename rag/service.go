package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/mudler/localqa/pkg/chunk"
	"github.com/mudler/localqa/rag/extract"
	"github.com/mudler/localqa/rag/llm"
	"github.com/mudler/localqa/rag/session"
	"github.com/mudler/localqa/rag/types"
	"github.com/mudler/xlog"
)

// TextExtractor reads a document of a known media type into text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mt extract.MediaType) (string, error)
}

// Answerer fans a question out to a set of models.
type Answerer interface {
	AskAll(ctx context.Context, question string, fragments []string, models []llm.ModelID) map[llm.ModelID]llm.Answer
}

// Service runs the upload and question pipelines on top of a session store.
type Service struct {
	extractor       TextExtractor
	answerer        Answerer
	store           session.Store
	topK            int
	maxFragmentSize int
	observer        Observer
}

// Observer receives pipeline events, typically to record metrics.
type Observer interface {
	DocumentIngested(mediaType string, fragments int, err error, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) DocumentIngested(string, int, error, time.Duration) {}

type ServiceOption func(*Service)

// WithTopK sets how many fragments are passed to the models.
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithMaxFragmentSize splits lines longer than n characters. Zero keeps whole lines.
func WithMaxFragmentSize(n int) ServiceOption {
	return func(s *Service) {
		s.maxFragmentSize = n
	}
}

func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewService(extractor TextExtractor, answerer Answerer, store session.Store, opts ...ServiceOption) *Service {
	s := &Service{
		extractor: extractor,
		answerer:  answerer,
		store:     store,
		topK:      DefaultTopK,
		observer:  nopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Part is one document of a multi-document upload.
type Part struct {
	Data      []byte
	MediaType extract.MediaType
}

// Process extracts, chunks and indexes a document without storing it.
func (s *Service) Process(ctx context.Context, data []byte, mt extract.MediaType) ([]string, map[string]int, error) {
	return s.processParts(ctx, []Part{{Data: data, MediaType: mt}})
}

func (s *Service) processParts(ctx context.Context, parts []Part) ([]string, map[string]int, error) {
	var fragments []string
	for _, p := range parts {
		text, err := s.extractor.Extract(ctx, p.Data, p.MediaType)
		if err != nil {
			return nil, nil, err
		}
		fragments = append(fragments, chunk.Fragments(text, s.maxFragmentSize)...)
	}

	if len(fragments) == 0 {
		return nil, nil, fmt.Errorf("%w (%s)", types.ErrEmptyDocument, partsMediaType(parts))
	}

	return fragments, BuildTermFrequency(fragments), nil
}

// partsMediaType names the media type of a set of parts, "mixed" when they differ.
func partsMediaType(parts []Part) string {
	if len(parts) == 0 {
		return "none"
	}
	for _, p := range parts[1:] {
		if p.MediaType != parts[0].MediaType {
			return "mixed"
		}
	}
	return parts[0].MediaType.String()
}

// Upload processes a document and opens a session for it. No session is
// created when any step fails.
func (s *Service) Upload(ctx context.Context, data []byte, mt extract.MediaType) (string, error) {
	return s.UploadParts(ctx, []Part{{Data: data, MediaType: mt}})
}

// UploadParts indexes several documents, in order, as a single session.
// Any failing part aborts the whole upload.
func (s *Service) UploadParts(ctx context.Context, parts []Part) (string, error) {
	start := time.Now()
	mediaType := partsMediaType(parts)

	fragments, tf, err := s.processParts(ctx, parts)
	if err != nil {
		s.observer.DocumentIngested(mediaType, 0, err, time.Since(start))
		xlog.Error("Failed to process document", "type", mediaType, "parts", len(parts), "error", err)
		return "", err
	}

	id, err := s.store.Create(fragments, tf, mediaType)
	s.observer.DocumentIngested(mediaType, len(fragments), err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	xlog.Info("Document indexed", "session", id, "type", mediaType, "parts", len(parts), "fragments", len(fragments), "terms", len(tf))
	return id, nil
}

// Context returns the fragments retrieved for a question.
func (s *Service) Context(sessionID, question string) ([]string, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return Retrieve(question, sess.Fragments, s.topK), nil
}

// Ask retrieves the context for the question and collects one answer per model.
// An empty context is not an error: the models are still asked.
func (s *Service) Ask(ctx context.Context, sessionID, question string, models []llm.ModelID) (map[llm.ModelID]llm.Answer, error) {
	fragments, err := s.Context(sessionID, question)
	if err != nil {
		return nil, err
	}

	if len(fragments) == 0 {
		xlog.Warn("No context available for question", "session", sessionID)
	}

	xlog.Debug("Asking models", "session", sessionID, "models", len(models), "context", len(fragments))
	return s.answerer.AskAll(ctx, question, fragments, models), nil
}

// Terms returns the n most frequent terms of a session.
func (s *Service) Terms(sessionID string, n int) ([]TermCount, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return TopTerms(sess.TermFrequency, n), nil
}

// Close deletes a session.
func (s *Service) Close(sessionID string) error {
	if err := s.store.Delete(sessionID); err != nil {
		return err
	}
	xlog.Info("Session closed", "session", sessionID)
	return nil
}
