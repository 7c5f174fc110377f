package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mudler/localqa/rag/llm"
	"github.com/spf13/viper"
)

const defaultGitHubEndpoint = "https://models.inference.ai.azure.com"

type config struct {
	Address         string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	MaxUploadBytes  string
	StaticDir       string

	TopK            int
	MaxFragmentSize int
	SessionTTL      time.Duration

	LLMTimeout     time.Duration
	LLMConcurrency int
	DefaultModels  []llm.ModelID

	GitHubToken    string
	GitHubEndpoint string
	GeminiAPIKey   string
	GeminiEndpoint string
	VisionModel    string

	TranscriptionAPIKey  string
	TranscriptionBaseURL string
	TranscriptionModel   string

	SourcesTimeout  time.Duration
	SourcesMaxBytes int64
	SourcesMaxPages     int
	SourcesAllowPrivate bool
}

// loadEnvFile reads variables from a dotenv file. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("server.port", "PORT")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("transcription.api_key", "OPENAI_API_KEY")
	v.BindEnv("transcription.base_url", "OPENAI_API_BASE_URL")

	v.SetDefault("server.address", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.max_upload_bytes", "50M")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.max_fragment_size", 0)
	v.SetDefault("session.ttl", "0s")

	v.SetDefault("llm.timeout", "0s")
	v.SetDefault("llm.concurrency", 0)
	v.SetDefault("llm.default_models", []string{})

	v.SetDefault("github.endpoint", defaultGitHubEndpoint)
	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("vision.model", "gpt-4o")
	v.SetDefault("transcription.model", "whisper-1")

	v.SetDefault("sources.timeout", "30s")
	v.SetDefault("sources.max_bytes", 50<<20)
	v.SetDefault("sources.max_pages", 20)
	v.SetDefault("sources.allow_private", false)
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Address:         v.GetString("server.address"),
		CORSOrigins:     stringList(v, "server.cors_origins"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		MaxUploadBytes:  v.GetString("server.max_upload_bytes"),
		StaticDir:       v.GetString("server.static_dir"),

		TopK:            v.GetInt("retrieval.top_k"),
		MaxFragmentSize: v.GetInt("retrieval.max_fragment_size"),
		SessionTTL:      v.GetDuration("session.ttl"),

		LLMTimeout:     v.GetDuration("llm.timeout"),
		LLMConcurrency: v.GetInt("llm.concurrency"),

		GitHubToken:    v.GetString("github.token"),
		GitHubEndpoint: v.GetString("github.endpoint"),
		GeminiAPIKey:   v.GetString("gemini.api_key"),
		GeminiEndpoint: v.GetString("gemini.endpoint"),
		VisionModel:    v.GetString("vision.model"),

		TranscriptionAPIKey:  v.GetString("transcription.api_key"),
		TranscriptionBaseURL: v.GetString("transcription.base_url"),
		TranscriptionModel:   v.GetString("transcription.model"),

		SourcesTimeout:      v.GetDuration("sources.timeout"),
		SourcesMaxBytes:     v.GetInt64("sources.max_bytes"),
		SourcesMaxPages:     v.GetInt("sources.max_pages"),
		SourcesAllowPrivate: v.GetBool("sources.allow_private"),
	}

	if cfg.Address == "" {
		cfg.Address = ":" + v.GetString("server.port")
	}

	if cfg.TopK <= 0 {
		return cfg, fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.TopK)
	}
	if cfg.MaxFragmentSize < 0 {
		return cfg, fmt.Errorf("retrieval.max_fragment_size must not be negative, got %d", cfg.MaxFragmentSize)
	}

	models, err := llm.ParseModelIDs(stringList(v, "llm.default_models"))
	if err != nil {
		return cfg, fmt.Errorf("invalid llm.default_models: %w", err)
	}
	if len(models) == 0 {
		models = llm.AllModels
	}
	cfg.DefaultModels = models

	return cfg, nil
}

// stringList reads a list setting. Values from the environment may be
// separated by commas or whitespace.
func stringList(v *viper.Viper, key string) []string {
	var items []string
	for _, field := range v.GetStringSlice(key) {
		for _, item := range strings.Split(field, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
