package main

import (
	"github.com/mudler/localqa/pkg/metrics"
	"github.com/mudler/localqa/rag"
	"github.com/mudler/localqa/rag/extract"
	"github.com/mudler/localqa/rag/llm"
	"github.com/mudler/localqa/rag/session"
	"github.com/mudler/localqa/rag/sources"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the long-lived collaborators shared by every request.
type app struct {
	service      *rag.Service
	orchestrator *llm.Orchestrator
	store        *session.MemoryStore
	fetcher      *sources.Fetcher
	metrics      *metrics.Metrics
	registry     *prometheus.Registry
}

// githubModels are served by the GitHub models endpoint.
var githubModels = []llm.ModelID{llm.Phi3Small, llm.Mistral, llm.MetaLlama3, llm.GPT4o, llm.Jamba15Mini}

func buildProviders(cfg config) map[llm.ModelID]llm.Provider {
	providers := map[llm.ModelID]llm.Provider{}

	if cfg.GitHubToken != "" {
		client := llm.NewClient(cfg.GitHubToken, cfg.GitHubEndpoint)
		for _, id := range githubModels {
			providers[id] = llm.NewOpenAIProvider(client, llm.DefaultSpecs[id])
		}
	} else {
		xlog.Warn("GITHUB_TOKEN is not set, GitHub hosted models are disabled")
	}

	if cfg.GeminiAPIKey != "" {
		client := llm.NewClient(cfg.GeminiAPIKey, cfg.GeminiEndpoint)
		providers[llm.Gemini] = llm.NewOpenAIProvider(client, llm.DefaultSpecs[llm.Gemini])
	} else {
		xlog.Warn("GEMINI_API_KEY is not set, gemini is disabled")
	}

	return providers
}

func buildExtractor(cfg config) (*extract.Extractor, error) {
	var opts []extract.Option

	if cfg.GitHubToken != "" && cfg.VisionModel != "" {
		client := llm.NewClient(cfg.GitHubToken, cfg.GitHubEndpoint)
		opts = append(opts, extract.WithCaptioner(llm.NewVisionCaptioner(client, cfg.VisionModel)))
	} else {
		xlog.Warn("No vision model configured, image uploads will fail")
	}

	if cfg.TranscriptionAPIKey != "" {
		client := llm.NewClient(cfg.TranscriptionAPIKey, cfg.TranscriptionBaseURL)
		opts = append(opts, extract.WithTranscriber(llm.NewWhisperTranscriber(client, cfg.TranscriptionModel)))
	} else {
		xlog.Warn("No transcription key configured, audio uploads will fail")
	}

	return extract.New(opts...)
}

func newApp(cfg config) (*app, error) {
	return newAppWith(cfg, buildProviders(cfg), nil)
}

// newAppWith wires the app around the given providers. A nil extractor is
// built from the configuration.
func newAppWith(cfg config, providers map[llm.ModelID]llm.Provider, extractor rag.TextExtractor) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	store := session.NewMemoryStore(cfg.SessionTTL)
	m := metrics.New(registry, "localqa", store.Len)

	if extractor == nil {
		e, err := buildExtractor(cfg)
		if err != nil {
			return nil, err
		}
		extractor = e
	}

	orchestrator, err := llm.NewOrchestrator(providers,
		llm.WithDefaultModels(cfg.DefaultModels...),
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithConcurrency(cfg.LLMConcurrency),
		llm.WithAnswerObserver(m),
	)
	if err != nil {
		return nil, err
	}

	service := rag.NewService(extractor, orchestrator, store,
		rag.WithTopK(cfg.TopK),
		rag.WithMaxFragmentSize(cfg.MaxFragmentSize),
		rag.WithObserver(m),
	)

	fetcher := sources.NewFetcher(sources.NewHTTPClient(cfg.SourcesTimeout, cfg.SourcesAllowPrivate), cfg.SourcesMaxBytes, cfg.SourcesMaxPages)

	return &app{
		service:      service,
		orchestrator: orchestrator,
		store:        store,
		fetcher:      fetcher,
		metrics:      m,
		registry:     registry,
	}, nil
}
