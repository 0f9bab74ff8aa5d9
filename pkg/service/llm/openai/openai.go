package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

const defaultEmbeddingModel = string(openai.SmallEmbedding3)

// Client talks to the OpenAI API or any server that speaks the same protocol
// (LM Studio, vLLM, llama.cpp server).
type Client struct {
	client         *openai.Client
	embeddingModel string
	thinkingModels []string
}

var _ interfaces.Backend = &Client{}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithEmbeddingModel overrides the default embedding model
func WithEmbeddingModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.embeddingModel = name
		}
	}
}

// WithThinkingModels lists models that stream reasoning content. The API has
// no capability metadata, so this is configured.
func WithThinkingModels(names ...string) Option {
	return func(c *Client) {
		c.thinkingModels = append(c.thinkingModels, names...)
	}
}

// New creates a client. An empty baseURL uses the public OpenAI endpoint.
func New(apiKey, baseURL string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	c := &Client{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: defaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func buildMessages(req interfaces.GenerateRequest) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
}

func (c *Client) Stream(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
		Stream:   true,
	})
	if err != nil {
		return nil, wrapError(err, "failed to start chat completion stream", req.Model)
	}

	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		defer stream.Close() //nolint:errcheck // body already drained

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}

			var chunk model.Chunk
			if err != nil {
				chunk.Err = wrapError(err, "chat completion stream failed", req.Model)
			} else {
				for _, choice := range resp.Choices {
					chunk.Message += choice.Delta.Content
					chunk.Thinking += choice.Delta.ReasoningContent
				}
				if chunk.Message == "" && chunk.Thinking == "" {
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
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
	})
	if err != nil {
		return "", wrapError(err, "chat completion failed", req.Model)
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("chat completion returned no choices", goerr.V(model.ModelKey, req.Model))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) ReadImage(ctx context.Context, name, prompt string, image []byte) (string, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: name,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	})
	if err != nil {
		return "", wrapError(err, "vision completion failed", name)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, wrapError(err, "failed to create embedding", c.embeddingModel)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V(model.ModelKey, c.embeddingModel))
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list models")
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func (c *Client) SupportsThinking(ctx context.Context, name string) (bool, error) {
	return slices.Contains(c.thinkingModels, name), nil
}

func wrapError(err error, msg, name string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return goerr.Wrap(errors.Join(model.ErrModelNotFound, err), msg, goerr.V(model.ModelKey, name))
	}
	return goerr.Wrap(err, msg, goerr.V(model.ModelKey, name))
}
