package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/extractor"
	"github.com/secmon-lab/recall/pkg/utils/tokens"
)

const (
	// DefaultSearchLimit is the number of matches used by Search when k <= 0
	DefaultSearchLimit = 5

	// DefaultPromptTokenLimit bounds capture text embedded into prompts
	DefaultPromptTokenLimit = 6000
)

// Extractor turns an image into text
type Extractor interface {
	Extract(ctx context.Context, input extractor.Input) (string, error)
}

// Searcher embeds capture text and finds captures similar to a query
type Searcher interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, query string, k int) ([]*model.Match, error)
}

type UseCases struct {
	repo     interfaces.CaptureRepository
	settings interfaces.SettingsStore

	extractor         Extractor
	index             Searcher
	generator         interfaces.Generator
	catalog           interfaces.ModelCatalog
	generationTimeout time.Duration
	promptTokenLimit  int
	rejectBusy        bool
	now               func() time.Time

	Capture  *CaptureUseCase
	Query    *QueryUseCase
	History  *HistoryUseCase
	Settings *SettingsUseCase
}

type Option func(*UseCases)

func WithExtractor(e Extractor) Option {
	return func(uc *UseCases) {
		uc.extractor = e
	}
}

func WithIndex(index Searcher) Option {
	return func(uc *UseCases) {
		uc.index = index
	}
}

func WithGenerator(g interfaces.Generator) Option {
	return func(uc *UseCases) {
		uc.generator = g
	}
}

func WithModelCatalog(c interfaces.ModelCatalog) Option {
	return func(uc *UseCases) {
		uc.catalog = c
	}
}

// WithGenerationTimeout bounds every generation call. A timeout is handled as a stream error.
func WithGenerationTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.generationTimeout = d
	}
}

// WithPromptTokenLimit bounds capture text embedded into prompts. 0 disables truncation.
func WithPromptTokenLimit(limit int) Option {
	return func(uc *UseCases) {
		uc.promptTokenLimit = limit
	}
}

// WithRejectBusy makes a query on a session with a live stream fail with
// model.ErrSessionBusy instead of superseding the live stream.
func WithRejectBusy() Option {
	return func(uc *UseCases) {
		uc.rejectBusy = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.CaptureRepository, settings interfaces.SettingsStore, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:             repo,
		settings:         settings,
		promptTokenLimit: DefaultPromptTokenLimit,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Capture = NewCaptureUseCase(repo, settings, uc.extractor, uc.now)
	uc.Query = NewQueryUseCase(repo, settings, QueryConfig{
		Generator:   uc.generator,
		Catalog:     uc.catalog,
		Index:       uc.index,
		Timeout:     uc.generationTimeout,
		TokenBudget: tokens.NewBudget(uc.promptTokenLimit),
		RejectBusy:  uc.rejectBusy,
	})
	uc.History = NewHistoryUseCase(repo)
	uc.Settings = NewSettingsUseCase(settings, repo)

	return uc
}
