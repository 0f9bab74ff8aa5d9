package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

type SettingsUseCase struct {
	store interfaces.SettingsStore
	repo  interfaces.CaptureRepository
}

func NewSettingsUseCase(store interfaces.SettingsStore, repo interfaces.CaptureRepository) *SettingsUseCase {
	return &SettingsUseCase{
		store: store,
		repo:  repo,
	}
}

// Get returns a copy of the current settings
func (uc *SettingsUseCase) Get() *model.Settings {
	return uc.store.Snapshot().Clone()
}

// Update applies fn to a copy of the current settings, validates the result
// and saves it. fn runs under the store's writer lock so it always sees the
// latest saved value. A history limit is applied to the stored captures right
// away.
func (uc *SettingsUseCase) Update(ctx context.Context, fn func(s *model.Settings) error) (*model.Settings, error) {
	saved, err := uc.store.Update(ctx, func(s *model.Settings) error {
		if err := fn(s); err != nil {
			return err
		}
		return s.Validate()
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update settings")
	}

	prune(ctx, uc.repo, saved.HistoryLimit)

	return saved.Clone(), nil
}
