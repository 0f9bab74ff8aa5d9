package gemini

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

// EmbeddingDimension is the vector size requested from Gemini embeddings
const EmbeddingDimension = 768

// ClientFactory creates a gollem client bound to one model
type ClientFactory func(ctx context.Context, modelName string) (gollem.LLMClient, error)

// Client serves generation and embeddings from Gemini on Vertex AI through
// gollem. Gemini models are hosted, so the "installed" set is the configured
// model list.
type Client struct {
	factory ClientFactory
	models  []string

	mu      sync.Mutex
	clients map[string]gollem.LLMClient
}

var _ interfaces.Backend = &Client{}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithClientFactory replaces the Vertex AI client constructor
func WithClientFactory(f ClientFactory) Option {
	return func(c *Client) {
		c.factory = f
	}
}

// New creates a backend for projectID/location that allows models
func New(projectID, location string, models []string, opts ...Option) (*Client, error) {
	if projectID == "" {
		return nil, goerr.New("gemini project id is required")
	}
	if len(models) == 0 {
		return nil, goerr.New("at least one gemini model is required")
	}

	c := &Client{
		models:  models,
		clients: make(map[string]gollem.LLMClient),
		factory: func(ctx context.Context, name string) (gollem.LLMClient, error) {
			return gemini.New(ctx, projectID, location, gemini.WithModel(name))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) client(ctx context.Context, name string) (gollem.LLMClient, error) {
	if name == "" {
		name = c.models[0]
	}
	if !slices.Contains(c.models, name) {
		return nil, goerr.Wrap(model.ErrModelNotFound, "gemini model is not configured",
			goerr.V(model.ModelKey, name),
			goerr.V("models", c.models),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[name]; ok {
		return cl, nil
	}
	cl, err := c.factory(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client", goerr.V(model.ModelKey, name))
	}
	c.clients[name] = cl
	return cl, nil
}

func (c *Client) session(ctx context.Context, req interfaces.GenerateRequest) (gollem.Session, error) {
	cl, err := c.client(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	var opts []gollem.SessionOption
	if req.SystemPrompt != "" {
		opts = append(opts, gollem.WithSessionSystemPrompt(req.SystemPrompt))
	}
	session, err := cl.NewSession(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session", goerr.V(model.ModelKey, req.Model))
	}
	return session, nil
}

// Stream streams answer text. Gemini responses carry no separate reasoning
// channel, so every chunk is a message.
func (c *Client) Stream(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error) {
	session, err := c.session(ctx, req)
	if err != nil {
		return nil, err
	}

	respCh, err := session.Stream(ctx, []gollem.Input{gollem.Text(req.Prompt)})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start Gemini stream", goerr.V(model.ModelKey, req.Model))
	}

	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for resp := range respCh {
			var chunk model.Chunk
			if resp.Error != nil {
				chunk.Err = goerr.Wrap(resp.Error, "Gemini stream failed", goerr.V(model.ModelKey, req.Model))
			} else {
				chunk.Message = strings.Join(resp.Texts, "")
				if chunk.Message == "" {
					continue
				}
			}

			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	session, err := c.session(ctx, req)
	if err != nil {
		return "", err
	}

	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(req.Prompt)})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM", goerr.V(model.ModelKey, req.Model))
	}
	return strings.Join(resp.Texts, ""), nil
}

// ReadImage sends the screenshot inline with the prompt. PNG, JPEG, WebP and
// HEIC/HEIF are accepted; anything else fails and extraction falls back to
// local OCR.
func (c *Client) ReadImage(ctx context.Context, name, prompt string, image []byte) (string, error) {
	img, err := gollem.NewImage(image)
	if err != nil {
		return "", goerr.Wrap(err, "unsupported image for Gemini", goerr.V(model.ModelKey, name))
	}

	session, err := c.session(ctx, interfaces.GenerateRequest{Model: name})
	if err != nil {
		return "", err
	}

	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt), img})
	if err != nil {
		return "", goerr.Wrap(err, "Gemini vision call failed", goerr.V(model.ModelKey, name))
	}
	return strings.Join(resp.Texts, ""), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cl, err := c.client(ctx, "")
	if err != nil {
		return nil, err
	}

	embeddings, err := cl.GenerateEmbedding(ctx, EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}
	return result, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return slices.Clone(c.models), nil
}

func (c *Client) SupportsThinking(ctx context.Context, name string) (bool, error) {
	return false, nil
}
