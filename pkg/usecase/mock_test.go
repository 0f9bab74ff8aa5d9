package usecase_test

import (
	"context"
	"strings"
	"sync"

	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/extractor"
)

type mockGenerator struct {
	streamFn   func(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error)
	generateFn func(ctx context.Context, req interfaces.GenerateRequest) (string, error)

	mu       sync.Mutex
	requests []interfaces.GenerateRequest
}

func (m *mockGenerator) Stream(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.streamFn(ctx, req)
}

func (m *mockGenerator) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.generateFn(ctx, req)
}

func (m *mockGenerator) lastRequest() interfaces.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// sendChunks streams chunks in order and closes the channel
func sendChunks(ctx context.Context, chunks ...model.Chunk) <-chan model.Chunk {
	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

type mockCatalog struct {
	models   []string
	thinking bool
	err      error
}

func (m *mockCatalog) ListModels(ctx context.Context) ([]string, error) {
	return m.models, m.err
}

func (m *mockCatalog) SupportsThinking(ctx context.Context, name string) (bool, error) {
	return m.thinking, nil
}

type mockExtractor struct {
	extractFn func(ctx context.Context, input extractor.Input) (string, error)
}

func (m *mockExtractor) Extract(ctx context.Context, input extractor.Input) (string, error) {
	return m.extractFn(ctx, input)
}

// keywordEmbedder maps text containing "error" and other text to orthogonal vectors
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "error") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type memorySettings struct {
	mu       sync.Mutex
	settings *model.Settings
}

func newMemorySettings(s *model.Settings) *memorySettings {
	return &memorySettings{settings: s}
}

func (m *memorySettings) Snapshot() *model.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *memorySettings) Save(ctx context.Context, s *model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *memorySettings) Update(ctx context.Context, fn func(*model.Settings) error) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.settings.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.settings = next
	return next, nil
}

var _ interfaces.SettingsStore = &memorySettings{}

func collectEvents(ch <-chan model.StreamEvent) []model.StreamEvent {
	var events []model.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
