package interfaces

import (
	"context"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// GenerateRequest is one generation call against a backend
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Think        bool
}

// Generator runs text generation on a backend
type Generator interface {
	// Stream opens a token stream. The channel is closed when the stream ends;
	// a mid-stream failure arrives as a final chunk with Err set.
	Stream(ctx context.Context, req GenerateRequest) (<-chan model.Chunk, error)

	// Generate runs a non-streaming call and returns the whole answer
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder converts text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelCatalog answers questions about models installed on a backend
type ModelCatalog interface {
	// ListModels returns the names of installed models
	ListModels(ctx context.Context) ([]string, error)

	// SupportsThinking reports whether the model advertises a reasoning channel
	SupportsThinking(ctx context.Context, model string) (bool, error)
}

// VisionModel extracts text from an image with a multimodal model
type VisionModel interface {
	ReadImage(ctx context.Context, model string, prompt string, image []byte) (string, error)
}

// Backend bundles everything a generation backend provides
type Backend interface {
	Generator
	Embedder
	ModelCatalog
	VisionModel
}
