package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/extractor"
	"github.com/secmon-lab/recall/pkg/service/screen"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// CaptureInput is one screenshot to capture
type CaptureInput struct {
	Image []byte
	// Rect crops the image before extraction. The zero value keeps the whole image.
	Rect screen.Rect
}

// CaptureUseCase turns screenshots and clipboard text into stored captures
type CaptureUseCase struct {
	repo      interfaces.CaptureRepository
	settings  interfaces.SettingsProvider
	extractor Extractor
	now       func() time.Time
}

func NewCaptureUseCase(repo interfaces.CaptureRepository, settings interfaces.SettingsProvider, extractor Extractor, now func() time.Time) *CaptureUseCase {
	if now == nil {
		now = time.Now
	}
	return &CaptureUseCase{
		repo:      repo,
		settings:  settings,
		extractor: extractor,
		now:       now,
	}
}

// Capture extracts the text of the image, stores it as a new capture and
// returns the session to query it. Nothing is stored when extraction fails.
func (uc *CaptureUseCase) Capture(ctx context.Context, input CaptureInput) (*model.Session, error) {
	logger := logging.From(ctx)
	logger.Debug("capture state changed", "state", types.CaptureIdle)

	if uc.extractor == nil {
		return nil, goerr.Wrap(ErrNotConfigured, "text extractor is not configured")
	}
	if len(input.Image) == 0 {
		return nil, goerr.Wrap(ErrNoImage, "no image to capture")
	}

	image := input.Image
	if !input.Rect.IsZero() {
		cropped, err := screen.Crop(image, input.Rect)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to crop capture region")
		}
		image = cropped
	}

	settings := uc.settings.Snapshot()

	logger.Debug("capture state changed", "state", types.CaptureExtracting)
	text, err := uc.extractor.Extract(ctx, extractor.Input{
		Image:       image,
		Language:    settings.OCRLanguage(),
		VisionModel: settings.VisionModel,
	})
	if err != nil {
		logger.Debug("capture state changed", "state", types.CaptureFailed)
		return nil, goerr.Wrap(err, "failed to extract text from capture")
	}

	capture, err := uc.store(ctx, text, settings.HistoryLimit)
	if err != nil {
		logger.Debug("capture state changed", "state", types.CaptureFailed)
		return nil, err
	}

	logger.Info("capture stored",
		"state", types.CapturePersisted,
		model.CaptureIDKey, capture.ID,
		"text_length", len(capture.OCRText),
	)

	return &model.Session{ID: capture.ID, OCRText: capture.OCRText}, nil
}

// CaptureRegion grabs the screen from source and captures the rect region of it
func (uc *CaptureUseCase) CaptureRegion(ctx context.Context, source interfaces.ScreenSource, rect screen.Rect) (*model.Session, error) {
	image, err := source.Grab(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to grab screen")
	}
	return uc.Capture(ctx, CaptureInput{Image: image, Rect: rect})
}

// IngestText stores text as a capture without any extraction step
func (uc *CaptureUseCase) IngestText(ctx context.Context, text string) (*model.Capture, error) {
	settings := uc.settings.Snapshot()
	return uc.store(ctx, text, settings.HistoryLimit)
}

func (uc *CaptureUseCase) store(ctx context.Context, text string, historyLimit int) (*model.Capture, error) {
	capture := model.NewCapture(text, uc.now())
	if err := uc.repo.Create(ctx, capture); err != nil {
		return nil, goerr.Wrap(err, "failed to store capture", goerr.V(model.CaptureIDKey, capture.ID))
	}

	// the capture is kept even when eviction fails
	prune(ctx, uc.repo, historyLimit)

	return capture, nil
}

func prune(ctx context.Context, repo interfaces.CaptureRepository, historyLimit int) {
	if historyLimit <= 0 {
		return
	}

	evicted, err := repo.Prune(ctx, historyLimit)
	if err != nil {
		logging.From(ctx).Warn("failed to evict old captures",
			"error", err,
			"history_limit", historyLimit,
		)
		return
	}
	if len(evicted) > 0 {
		logging.From(ctx).Info("evicted old captures",
			"count", len(evicted),
			"history_limit", historyLimit,
		)
	}
}
