package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/llm/gemini"
	"github.com/secmon-lab/recall/pkg/service/llm/ollama"
	"github.com/secmon-lab/recall/pkg/service/llm/openai"
	"github.com/urfave/cli/v3"
)

const (
	BackendOllama = "ollama"
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Backend holds CLI flags for the generation and embedding backend
type Backend struct {
	name string

	ollamaHost string

	openaiAPIKey         string
	openaiBaseURL        string
	openaiThinkingModels []string

	geminiProject  string
	geminiLocation string
	geminiModels   []string

	embeddingModel    string
	generationTimeout time.Duration
	embeddingTimeout  time.Duration
}

// Flags returns CLI flags for backend configuration
func (b *Backend) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-backend",
			Usage:       "Generation backend (ollama, gemini, openai)",
			Value:       BackendOllama,
			Sources:     cli.EnvVars("RECALL_LLM_BACKEND"),
			Destination: &b.name,
		},
		&cli.StringFlag{
			Name:        "ollama-host",
			Usage:       "Ollama server URL (default: OLLAMA_HOST or http://127.0.0.1:11434)",
			Category:    "Ollama",
			Sources:     cli.EnvVars("RECALL_OLLAMA_HOST"),
			Destination: &b.ollamaHost,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key for the OpenAI compatible backend",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("RECALL_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &b.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI compatible server",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("RECALL_OPENAI_BASE_URL"),
			Destination: &b.openaiBaseURL,
		},
		&cli.StringSliceFlag{
			Name:        "openai-thinking-model",
			Usage:       "Model that streams reasoning content (repeatable)",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("RECALL_OPENAI_THINKING_MODELS"),
			Destination: &b.openaiThinkingModels,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "Gemini",
			Sources:     cli.EnvVars("RECALL_GEMINI_PROJECT"),
			Destination: &b.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("RECALL_GEMINI_LOCATION"),
			Destination: &b.geminiLocation,
		},
		&cli.StringSliceFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model available as answer model (repeatable)",
			Category:    "Gemini",
			Value:       []string{"gemini-2.5-flash"},
			Sources:     cli.EnvVars("RECALL_GEMINI_MODELS"),
			Destination: &b.geminiModels,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model (default depends on the backend)",
			Sources:     cli.EnvVars("RECALL_EMBEDDING_MODEL"),
			Destination: &b.embeddingModel,
		},
		&cli.DurationFlag{
			Name:        "generation-timeout",
			Usage:       "Upper bound of one generation call (0 disables)",
			Value:       2 * time.Minute,
			Sources:     cli.EnvVars("RECALL_GENERATION_TIMEOUT"),
			Destination: &b.generationTimeout,
		},
		&cli.DurationFlag{
			Name:        "embedding-timeout",
			Usage:       "Upper bound of one embedding call (0 disables)",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("RECALL_EMBEDDING_TIMEOUT"),
			Destination: &b.embeddingTimeout,
		},
	}
}

// LogAttrs returns log attributes for the backend configuration
func (b *Backend) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("backend", b.name),
		slog.String("embedding_model", b.EmbeddingModel()),
		slog.Duration("generation_timeout", b.generationTimeout),
		slog.Duration("embedding_timeout", b.embeddingTimeout),
	}
	switch b.name {
	case BackendOllama:
		attrs = append(attrs, slog.String("host", b.ollamaHost))
	case BackendOpenAI:
		attrs = append(attrs,
			slog.String("base_url", b.openaiBaseURL),
			slog.Bool("api_key_set", b.openaiAPIKey != ""),
		)
	case BackendGemini:
		attrs = append(attrs,
			slog.String("project_id", b.geminiProject),
			slog.String("location", b.geminiLocation),
			slog.Any("models", b.geminiModels),
		)
	}
	return attrs
}

// EmbeddingModel returns the embedding model the backend will use. It is
// empty when the backend picks its own.
func (b *Backend) EmbeddingModel() string {
	if b.embeddingModel != "" {
		return b.embeddingModel
	}
	if b.name == BackendOllama {
		return model.DefaultEmbeddingModel
	}
	return ""
}

func (b *Backend) GenerationTimeout() time.Duration {
	return b.generationTimeout
}

func (b *Backend) EmbeddingTimeout() time.Duration {
	return b.embeddingTimeout
}

// Configure creates the backend client. Nothing is contacted here; the
// caller probes the backend when it needs to.
func (b *Backend) Configure(ctx context.Context) (interfaces.Backend, error) {
	switch b.name {
	case BackendOllama:
		client, err := ollama.New(b.ollamaHost, ollama.WithEmbeddingModel(b.EmbeddingModel()))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create ollama client")
		}
		return client, nil

	case BackendOpenAI:
		if b.openaiAPIKey == "" && b.openaiBaseURL == "" {
			return nil, goerr.New("openai-api-key or openai-base-url is required for the openai backend")
		}
		return openai.New(b.openaiAPIKey, b.openaiBaseURL,
			openai.WithEmbeddingModel(b.embeddingModel),
			openai.WithThinkingModels(b.openaiThinkingModels...),
		), nil

	case BackendGemini:
		client, err := gemini.New(b.geminiProject, b.geminiLocation, b.geminiModels)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini client")
		}
		return client, nil

	default:
		return nil, goerr.New("invalid llm backend", goerr.V("backend", b.name))
	}
}
