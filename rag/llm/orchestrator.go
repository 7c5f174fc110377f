package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mudler/localqa/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
)

// ErrProviderNotConfigured is reported for a selected model with no provider.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Answer is the outcome of asking one model. Err is a *types.ProviderError.
type Answer struct {
	Text string
	Err  error
}

// AnswerObserver is told about every provider call, typically to record metrics.
type AnswerObserver interface {
	ModelAnswered(model string, err error, took time.Duration)
}

type nopAnswerObserver struct{}

func (nopAnswerObserver) ModelAnswered(string, error, time.Duration) {}

// Orchestrator fans a question out to the selected models and gathers one
// answer per model. A failing model never affects the others.
type Orchestrator struct {
	providers   map[ModelID]Provider
	defaults    []ModelID
	timeout     time.Duration
	concurrency int
	observer    AnswerObserver
}

type OrchestratorOption func(*Orchestrator)

// WithTimeout bounds every provider call. Zero means no bound.
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithConcurrency limits the number of provider calls in flight per question.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithDefaultModels sets the models asked when a request selects none.
// Without it every known model is asked.
func WithDefaultModels(models ...ModelID) OrchestratorOption {
	return func(o *Orchestrator) {
		if len(models) > 0 {
			o.defaults = models
		}
	}
}

func WithAnswerObserver(obs AnswerObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func NewOrchestrator(providers map[ModelID]Provider, opts ...OrchestratorOption) (*Orchestrator, error) {
	for id := range providers {
		if !id.Valid() {
			return nil, fmt.Errorf("unknown model: %q", id)
		}
	}

	o := &Orchestrator{
		providers: providers,
		defaults:  AllModels,
		observer:  nopAnswerObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, id := range o.defaults {
		if !id.Valid() {
			return nil, fmt.Errorf("unknown default model: %q", id)
		}
	}
	return o, nil
}

// DefaultModels returns the models asked when none are selected.
func (o *Orchestrator) DefaultModels() []ModelID {
	return append([]ModelID{}, o.defaults...)
}

// Configured reports whether a provider is registered for the model.
func (o *Orchestrator) Configured(id ModelID) bool {
	_, ok := o.providers[id]
	return ok
}

// AskAll sends the prompt built from question and fragments to every model in
// models, concurrently, and returns exactly one answer per distinct model.
func (o *Orchestrator) AskAll(ctx context.Context, question string, fragments []string, models []ModelID) map[ModelID]Answer {
	if len(models) == 0 {
		models = o.defaults
	}

	prompt := BuildPrompt(question, fragments)

	var mu sync.Mutex
	answers := make(map[ModelID]Answer, len(models))

	g := &errgroup.Group{}
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for _, id := range models {
		mu.Lock()
		_, dup := answers[id]
		answers[id] = Answer{}
		mu.Unlock()
		if dup {
			continue
		}

		g.Go(func() error {
			start := time.Now()
			text, err := o.ask(ctx, id, prompt)

			answer := Answer{Text: text}
			if err != nil {
				perr := &types.ProviderError{Model: id.String(), Err: err}
				answer = Answer{Err: perr}
				o.observer.ModelAnswered(id.String(), perr, time.Since(start))
				xlog.Error("Model failed to answer", "model", id, "rate_limited", perr.IsRateLimited(), "error", err)
			} else {
				o.observer.ModelAnswered(id.String(), nil, time.Since(start))
				xlog.Debug("Model answered", "model", id, "took", time.Since(start))
			}

			mu.Lock()
			answers[id] = answer
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return answers
}

func (o *Orchestrator) ask(ctx context.Context, id ModelID, prompt string) (text string, err error) {
	provider, ok := o.providers[id]
	if !ok {
		return "", ErrProviderNotConfigured
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return provider.Complete(ctx, SystemPrompt, prompt)
}
