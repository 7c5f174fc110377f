package llm_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/mudler/localqa/rag/llm"
	"github.com/mudler/localqa/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeProvider struct {
	answer string
	err    error
	panics bool
	delay  time.Duration
	calls  atomic.Int32
	prompt atomic.Value
}

func (f *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.calls.Add(1)
	f.prompt.Store(prompt)
	if f.panics {
		panic("kaboom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	models map[string]error
}

func (r *recordingObserver) ModelAnswered(model string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = err
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		mistral *fakeProvider
		gpt     *fakeProvider
	)

	BeforeEach(func() {
		ctx = context.Background()
		mistral = &fakeProvider{answer: "from mistral"}
		gpt = &fakeProvider{answer: "from gpt"}
	})

	It("should refuse unknown model ids", func() {
		_, err := NewOrchestrator(map[ModelID]Provider{"llama-9": mistral})
		Expect(err).To(HaveOccurred())

		_, err = NewOrchestrator(map[ModelID]Provider{}, WithDefaultModels("nope"))
		Expect(err).To(HaveOccurred())
	})

	It("should answer with one entry per selected model", func() {
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt})
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", []string{"ctx"}, []ModelID{Mistral, GPT4o, Mistral})
		Expect(answers).To(HaveLen(2))
		Expect(answers[Mistral]).To(Equal(Answer{Text: "from mistral"}))
		Expect(answers[GPT4o]).To(Equal(Answer{Text: "from gpt"}))
		Expect(mistral.calls.Load()).To(BeEquivalentTo(1))
		Expect(mistral.prompt.Load()).To(Equal("Instruction: What?\n\nContext:\n1. ctx\n\nResponse:"))
	})

	It("should never call unselected models", func() {
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt})
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, []ModelID{GPT4o})
		Expect(answers).To(HaveKey(GPT4o))
		Expect(answers).ToNot(HaveKey(Mistral))
		Expect(mistral.calls.Load()).To(BeZero())
	})

	It("should isolate a failing provider", func() {
		mistral.err = errors.New("upstream unavailable")
		obs := &recordingObserver{models: map[string]error{}}
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt}, WithAnswerObserver(obs))
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", []string{"ctx"}, []ModelID{Mistral, GPT4o})
		Expect(answers[GPT4o].Text).To(Equal("from gpt"))
		Expect(answers[GPT4o].Err).ToNot(HaveOccurred())

		var perr *types.ProviderError
		Expect(errors.As(answers[Mistral].Err, &perr)).To(BeTrue())
		Expect(perr.Model).To(Equal("mistral"))
		Expect(perr.Err).To(MatchError("upstream unavailable"))

		Expect(obs.models).To(HaveLen(2))
		Expect(obs.models["gpt-4o"]).ToNot(HaveOccurred())
		Expect(obs.models["mistral"]).To(BeAssignableToTypeOf(&types.ProviderError{}))
	})

	It("should turn a panic into an error", func() {
		mistral.panics = true
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt})
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, []ModelID{Mistral, GPT4o})
		Expect(answers[Mistral].Err).To(MatchError(ContainSubstring("kaboom")))
		Expect(answers[GPT4o].Text).To(Equal("from gpt"))
	})

	It("should report missing providers", func() {
		o, err := NewOrchestrator(map[ModelID]Provider{GPT4o: gpt})
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, []ModelID{Gemini})
		Expect(errors.Is(answers[Gemini].Err, ErrProviderNotConfigured)).To(BeTrue())
	})

	It("should fall back to the default models", func() {
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt}, WithDefaultModels(GPT4o))
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, nil)
		Expect(answers).To(HaveLen(1))
		Expect(answers).To(HaveKey(GPT4o))
		Expect(o.DefaultModels()).To(Equal([]ModelID{GPT4o}))
	})

	It("should bound slow providers with the timeout", func() {
		mistral.delay = time.Minute
		o, err := NewOrchestrator(map[ModelID]Provider{Mistral: mistral, GPT4o: gpt}, WithTimeout(50*time.Millisecond))
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, []ModelID{Mistral, GPT4o})
		Expect(errors.Is(answers[Mistral].Err, context.DeadlineExceeded)).To(BeTrue())
		Expect(answers[GPT4o].Text).To(Equal("from gpt"))
	})

	It("should honour the concurrency limit", func() {
		providers := map[ModelID]Provider{}
		for _, m := range AllModels {
			providers[m] = &fakeProvider{answer: m.String(), delay: 10 * time.Millisecond}
		}
		o, err := NewOrchestrator(providers, WithConcurrency(1))
		Expect(err).ToNot(HaveOccurred())

		answers := o.AskAll(ctx, "What?", nil, AllModels)
		Expect(answers).To(HaveLen(len(AllModels)))
		for _, m := range AllModels {
			Expect(answers[m].Text).To(Equal(m.String()))
		}
	})
})
