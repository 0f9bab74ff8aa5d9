package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/ollama/ollama/api"
	ollamamodel "github.com/ollama/ollama/types/model"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

// Client talks to a local Ollama server
type Client struct {
	api            *api.Client
	embeddingModel string
}

var _ interfaces.Backend = &Client{}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithEmbeddingModel overrides model.DefaultEmbeddingModel
func WithEmbeddingModel(name string) Option {
	return func(c *Client) {
		c.embeddingModel = name
	}
}

// New creates a client for host. An empty host reads OLLAMA_HOST like the
// ollama CLI does.
func New(host string, opts ...Option) (*Client, error) {
	var (
		apiClient *api.Client
		err       error
	)
	if host == "" {
		apiClient, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create ollama client from environment")
		}
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid ollama host", goerr.V("host", host))
		}
		apiClient = api.NewClient(base, http.DefaultClient)
	}

	c := &Client{
		api:            apiClient,
		embeddingModel: model.DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

func (c *Client) Stream(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error) {
	stream := true
	genReq := &api.GenerateRequest{
		Model:  req.Model,
		System: req.SystemPrompt,
		Prompt: req.Prompt,
		Stream: &stream,
	}
	if req.Think {
		genReq.Think = &api.ThinkValue{Value: true}
	}

	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)

		err := c.api.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
			if resp.Response == "" && resp.Thinking == "" {
				return nil
			}
			select {
			case ch <- model.Chunk{Message: resp.Response, Thinking: resp.Thinking}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			chunk := model.Chunk{Err: wrapError(err, "ollama stream failed", req.Model)}
			select {
			case ch <- chunk:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (c *Client) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	stream := false
	var sb strings.Builder
	err := c.api.Generate(ctx, &api.GenerateRequest{
		Model:  req.Model,
		System: req.SystemPrompt,
		Prompt: req.Prompt,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", wrapError(err, "ollama generate failed", req.Model)
	}
	return sb.String(), nil
}

func (c *Client) ReadImage(ctx context.Context, name, prompt string, image []byte) (string, error) {
	stream := false
	var sb strings.Builder
	err := c.api.Generate(ctx, &api.GenerateRequest{
		Model:  name,
		Prompt: prompt,
		Images: []api.ImageData{image},
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", wrapError(err, "ollama vision call failed", name)
	}
	return sb.String(), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, wrapError(err, "ollama embed failed", c.embeddingModel)
	}
	if len(resp.Embeddings) == 0 {
		return nil, goerr.New("ollama returned no embedding", goerr.V(model.ModelKey, c.embeddingModel))
	}
	return resp.Embeddings[0], nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list ollama models")
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) SupportsThinking(ctx context.Context, name string) (bool, error) {
	resp, err := c.api.Show(ctx, &api.ShowRequest{Model: name})
	if err != nil {
		return false, wrapError(err, "failed to show ollama model", name)
	}
	return slices.Contains(resp.Capabilities, ollamamodel.CapabilityThinking), nil
}

// wrapError maps a 404 from the server to model.ErrModelNotFound
func wrapError(err error, msg, name string) error {
	var status api.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		return goerr.Wrap(errors.Join(model.ErrModelNotFound, err), msg, goerr.V(model.ModelKey, name))
	}
	return goerr.Wrap(err, msg, goerr.V(model.ModelKey, name))
}
