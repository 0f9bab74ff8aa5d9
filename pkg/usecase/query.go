package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/tokens"
)

//go:embed prompt/system.md
var systemPromptTmpl string

//go:embed prompt/search.md
var searchPromptTmpl string

var (
	systemPrompt = template.Must(template.New("system").Parse(systemPromptTmpl))
	searchPrompt = template.Must(template.New("search").Parse(searchPromptTmpl))
)

var errSuperseded = errors.New("query superseded by a newer query on the same session")

// QueryInput is one question about a live session
type QueryInput struct {
	// Prompt is free text or a shortcut name
	Prompt string
	// Model overrides the answer model of the settings
	Model string
	// Think overrides the thinking flag of the settings
	Think *bool
}

// QueryConfig holds the backends used by QueryUseCase
type QueryConfig struct {
	Generator   interfaces.Generator
	Catalog     interfaces.ModelCatalog
	Index       Searcher
	Timeout     time.Duration
	TokenBudget *tokens.Budget
	RejectBusy  bool
}

// QueryUseCase answers questions about captures and stores the answers
type QueryUseCase struct {
	repo     interfaces.CaptureRepository
	settings interfaces.SettingsProvider
	cfg      QueryConfig

	mu   sync.Mutex
	live map[model.CaptureID]*liveStream
}

type liveStream struct {
	cancel context.CancelCauseFunc
}

func NewQueryUseCase(repo interfaces.CaptureRepository, settings interfaces.SettingsProvider, cfg QueryConfig) *QueryUseCase {
	if cfg.TokenBudget == nil {
		cfg.TokenBudget = tokens.NewBudget(DefaultPromptTokenLimit)
	}
	return &QueryUseCase{
		repo:     repo,
		settings: settings,
		cfg:      cfg,
		live:     make(map[model.CaptureID]*liveStream),
	}
}

// Stream answers a question about the session's capture as a stream of
// events. Setup failures are returned before any event is produced. Once the
// stream is open, the answer received so far is always saved, then an error
// event is sent if the backend failed, then exactly one done event.
//
// A new Stream on a session that still has a live stream cancels the live one
// unless the use case rejects busy sessions. The cancelled stream saves its
// partial answer and ends with its own done event.
func (uc *QueryUseCase) Stream(ctx context.Context, session *model.Session, input QueryInput) (<-chan model.StreamEvent, error) {
	if session == nil || session.ID == "" {
		return nil, goerr.Wrap(model.ErrCaptureNotFound, "no active session")
	}
	if uc.cfg.Generator == nil {
		return nil, goerr.Wrap(ErrNotConfigured, "generation backend is not configured")
	}

	capture, err := uc.repo.Get(ctx, session.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session capture", goerr.V(model.CaptureIDKey, session.ID))
	}

	prompt := model.ExpandShortcut(strings.TrimSpace(input.Prompt))
	if prompt == "" {
		return nil, goerr.Wrap(ErrPromptRequired, "query prompt is empty")
	}

	settings := uc.settings.Snapshot()
	modelName := answerModel(settings, input.Model)
	if err := uc.ensureModel(ctx, modelName); err != nil {
		return nil, err
	}

	think := settings.Think
	if input.Think != nil {
		think = *input.Think
	}
	think = think && uc.supportsThinking(ctx, modelName)

	req := interfaces.GenerateRequest{
		Model:        modelName,
		SystemPrompt: uc.buildSystemPrompt(ctx, capture.OCRText),
		Prompt:       prompt,
		Think:        think,
	}

	streamCtx, release, err := uc.acquire(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	events := make(chan model.StreamEvent)
	go uc.runStream(ctx, streamCtx, release, session.ID, req, events)

	return events, nil
}

func (uc *QueryUseCase) acquire(ctx context.Context, id model.CaptureID) (context.Context, func(), error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if prev, ok := uc.live[id]; ok {
		if uc.cfg.RejectBusy {
			return nil, nil, goerr.Wrap(model.ErrSessionBusy, "session already has a live query", goerr.V(model.CaptureIDKey, id))
		}
		prev.cancel(errSuperseded)
		logging.From(ctx).Info("superseding live query", model.CaptureIDKey, id)
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	entry := &liveStream{cancel: cancel}
	uc.live[id] = entry

	release := func() {
		uc.mu.Lock()
		if uc.live[id] == entry {
			delete(uc.live, id)
		}
		uc.mu.Unlock()
		cancel(nil)
	}
	return streamCtx, release, nil
}

// runStream sends on events while the caller's ctx is alive. streamCtx also
// ends when the stream is superseded.
func (uc *QueryUseCase) runStream(ctx, streamCtx context.Context, release func(), id model.CaptureID, req interfaces.GenerateRequest, events chan<- model.StreamEvent) {
	defer close(events)
	defer release()

	logger := logging.From(ctx).With(model.CaptureIDKey, id, model.ModelKey, req.Model)
	send := func(ev model.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	logger.Debug("query state changed", "state", types.QueryQuerying)

	genCtx := streamCtx
	if uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(streamCtx, uc.cfg.Timeout)
		defer cancel()
	}

	var answer strings.Builder
	streamErr := uc.forward(genCtx, req, &answer, send, logger)
	if errors.Is(context.Cause(streamCtx), errSuperseded) {
		logger.Info("query superseded, saving partial answer", "answer_length", answer.Len())
		streamErr = nil
	}

	// the caller may be gone already; the answer is saved regardless
	saveCtx := context.WithoutCancel(ctx)
	if err := uc.SaveAnswer(saveCtx, id, answer.String()); err != nil {
		logger.Error("failed to save answer", "error", err)
		send(model.ErrorEvent(err))
	}

	if streamErr != nil {
		logger.Warn("query stream failed",
			"state", types.QueryFailedWithPartialSave,
			"error", streamErr,
			"answer_length", answer.Len(),
		)
		send(model.ErrorEvent(goerr.Wrap(errors.Join(model.ErrStreamFailed, streamErr), "answer stream failed")))
	} else {
		logger.Debug("query state changed", "state", types.QueryCompleted)
	}

	send(model.DoneEvent())
}

// forward relays chunks from the generation stream in arrival order and
// collects message tokens into answer. Thinking tokens are only relayed when
// the request enabled thinking.
func (uc *QueryUseCase) forward(ctx context.Context, req interfaces.GenerateRequest, answer *strings.Builder, send func(model.StreamEvent) bool, logger *slog.Logger) error {
	chunks, err := uc.cfg.Generator.Stream(ctx, req)
	if err != nil {
		return err
	}
	logger.Debug("query state changed", "state", types.QueryStreaming)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				return ctx.Err()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if chunk.Err != nil {
				return chunk.Err
			}

			if req.Think && chunk.Thinking != "" {
				if !send(model.ThinkingEvent(chunk.Thinking)) {
					return ctx.Err()
				}
			}
			if chunk.Message != "" {
				answer.WriteString(chunk.Message)
				if !send(model.MessageEvent(chunk.Message)) {
					return ctx.Err()
				}
			}
		}
	}
}

// Ask answers a question about a stored capture without streaming and
// appends the answer to the capture.
func (uc *QueryUseCase) Ask(ctx context.Context, id model.CaptureID, question string) (string, error) {
	if uc.cfg.Generator == nil {
		return "", goerr.Wrap(ErrNotConfigured, "generation backend is not configured")
	}

	capture, err := uc.repo.Get(ctx, id)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get capture", goerr.V(model.CaptureIDKey, id))
	}

	prompt := model.ExpandShortcut(strings.TrimSpace(question))
	if prompt == "" {
		return "", goerr.Wrap(ErrPromptRequired, "question is empty")
	}

	modelName := answerModel(uc.settings.Snapshot(), "")
	if err := uc.ensureModel(ctx, modelName); err != nil {
		return "", err
	}

	genCtx := ctx
	if uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
		defer cancel()
	}

	answer, err := uc.cfg.Generator.Generate(genCtx, interfaces.GenerateRequest{
		Model:        modelName,
		SystemPrompt: uc.buildSystemPrompt(ctx, capture.OCRText),
		Prompt:       prompt,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate answer", goerr.V(model.CaptureIDKey, id), goerr.V(model.ModelKey, modelName))
	}

	if err := uc.SaveAnswer(ctx, id, answer); err != nil {
		return answer, err
	}
	return answer, nil
}

// Search answers a question from the captures most similar to it. Only message
// tokens are streamed; the done event carries the whole answer and the
// matches. Nothing is stored.
func (uc *QueryUseCase) Search(ctx context.Context, question string, k int) (<-chan model.StreamEvent, error) {
	if uc.cfg.Generator == nil {
		return nil, goerr.Wrap(ErrNotConfigured, "generation backend is not configured")
	}
	if uc.cfg.Index == nil {
		return nil, goerr.Wrap(ErrNotConfigured, "embedding index is not configured")
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, goerr.Wrap(ErrPromptRequired, "search question is empty")
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}

	modelName := answerModel(uc.settings.Snapshot(), "")
	if err := uc.ensureModel(ctx, modelName); err != nil {
		return nil, err
	}

	matches, err := uc.cfg.Index.Search(ctx, question, k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search captures")
	}

	prompt, err := uc.buildSearchPrompt(question, matches)
	if err != nil {
		return nil, err
	}

	events := make(chan model.StreamEvent)
	go func() {
		defer close(events)

		logger := logging.From(ctx).With(model.ModelKey, modelName)
		send := func(ev model.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		genCtx := ctx
		if uc.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
			defer cancel()
		}

		var answer strings.Builder
		req := interfaces.GenerateRequest{Model: modelName, Prompt: prompt}
		if err := uc.forward(genCtx, req, &answer, send, logger); err != nil {
			logger.Warn("search stream failed", "error", err)
			send(model.ErrorEvent(goerr.Wrap(errors.Join(model.ErrStreamFailed, err), "search answer stream failed")))
		}

		done := model.DoneEvent()
		done.Answer = answer.String()
		done.Matches = matches
		send(done)
	}()

	return events, nil
}

// SaveAnswer appends answer to the capture and refreshes the capture's
// embedding from its own text. An embedding failure is returned after the
// answer has been stored.
func (uc *QueryUseCase) SaveAnswer(ctx context.Context, id model.CaptureID, answer string) error {
	capture, err := uc.repo.Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get capture", goerr.V(model.CaptureIDKey, id))
	}

	if err := uc.repo.AppendResponse(ctx, id, answer); err != nil {
		return goerr.Wrap(err, "failed to append answer", goerr.V(model.CaptureIDKey, id))
	}

	if uc.cfg.Index == nil || strings.TrimSpace(capture.OCRText) == "" {
		return nil
	}

	vec, err := uc.cfg.Index.Embed(ctx, capture.OCRText)
	if err != nil {
		return goerr.Wrap(err, "failed to embed capture text", goerr.V(model.CaptureIDKey, id))
	}
	if err := uc.repo.PutEmbedding(ctx, id, vec); err != nil {
		return goerr.Wrap(err, "failed to store embedding", goerr.V(model.CaptureIDKey, id))
	}
	return nil
}

// ListModels returns the models installed on the backend
func (uc *QueryUseCase) ListModels(ctx context.Context) ([]string, error) {
	if uc.cfg.Catalog == nil {
		return nil, goerr.Wrap(ErrNotConfigured, "model catalog is not configured")
	}
	models, err := uc.cfg.Catalog.ListModels(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list models")
	}
	return models, nil
}

func answerModel(settings *model.Settings, override string) string {
	if name := strings.TrimSpace(override); name != "" {
		return name
	}
	if name := strings.TrimSpace(settings.AnswerModel); name != "" {
		return name
	}
	return model.DefaultAnswerModel
}

func (uc *QueryUseCase) ensureModel(ctx context.Context, name string) error {
	if uc.cfg.Catalog == nil {
		return nil
	}
	installed, err := uc.cfg.Catalog.ListModels(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list installed models")
	}
	if !model.ContainsModel(installed, name) {
		return goerr.Wrap(model.ErrModelNotFound, "answer model is not installed",
			goerr.V(model.ModelKey, name),
			goerr.V("installed", installed),
		)
	}
	return nil
}

func (uc *QueryUseCase) supportsThinking(ctx context.Context, name string) bool {
	if uc.cfg.Catalog == nil {
		return false
	}
	ok, err := uc.cfg.Catalog.SupportsThinking(ctx, name)
	if err != nil {
		logging.From(ctx).Warn("failed to look up thinking capability, thinking disabled",
			model.ModelKey, name,
			"error", err,
		)
		return false
	}
	return ok
}

type systemPromptData struct {
	Text string
}

func (uc *QueryUseCase) buildSystemPrompt(ctx context.Context, text string) string {
	text, cut := uc.cfg.TokenBudget.Truncate(text)
	if cut {
		logging.From(ctx).Info("capture text truncated for prompt", "token_limit", uc.cfg.TokenBudget.Limit())
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, systemPromptData{Text: text}); err != nil {
		// only reachable with a broken template
		return "Text extracted from the screenshot:\n\n" + text
	}
	return buf.String()
}

type searchPromptMatch struct {
	Number   int
	Text     string
	Response string
}

type searchPromptData struct {
	Question string
	Matches  []searchPromptMatch
}

func (uc *QueryUseCase) buildSearchPrompt(question string, matches []*model.Match) (string, error) {
	data := searchPromptData{Question: question}

	perMatch := uc.cfg.TokenBudget.Limit()
	if len(matches) > 0 && perMatch > 0 {
		perMatch = max(perMatch/len(matches), 1)
	}

	for i, m := range matches {
		text, _ := uc.cfg.TokenBudget.TruncateTo(m.Capture.OCRText, perMatch)
		data.Matches = append(data.Matches, searchPromptMatch{
			Number:   i + 1,
			Text:     text,
			Response: m.Capture.LatestResponse(),
		})
	}

	var buf bytes.Buffer
	if err := searchPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render search prompt")
	}
	return buf.String(), nil
}
