package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

type HistoryUseCase struct {
	repo interfaces.CaptureRepository
}

func NewHistoryUseCase(repo interfaces.CaptureRepository) *HistoryUseCase {
	return &HistoryUseCase{repo: repo}
}

// List returns every capture, newest first
func (uc *HistoryUseCase) List(ctx context.Context) ([]*model.Capture, error) {
	captures, err := uc.repo.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list captures")
	}
	model.SortCapturesNewestFirst(captures)
	return captures, nil
}

func (uc *HistoryUseCase) Get(ctx context.Context, id model.CaptureID) (*model.Capture, error) {
	capture, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get capture", goerr.V(model.CaptureIDKey, id))
	}
	return capture, nil
}

// Delete removes a capture. Deleting a missing capture is not an error.
func (uc *HistoryUseCase) Delete(ctx context.Context, id model.CaptureID) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete capture", goerr.V(model.CaptureIDKey, id))
	}
	logging.From(ctx).Info("capture deleted", model.CaptureIDKey, id)
	return nil
}
