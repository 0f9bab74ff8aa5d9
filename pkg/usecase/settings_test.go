package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/usecase"
)

func TestSettingsUpdate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	store := newMemorySettings(model.DefaultSettings())
	uc := usecase.New(repo, store)

	for i := range 5 {
		c := model.NewCapture(fmt.Sprintf("capture %d", i), time.UnixMilli(int64(i+1)*1000))
		gt.NoError(t, repo.Create(ctx, c)).Required()
	}

	t.Run("invalid settings are rejected", func(t *testing.T) {
		_, err := uc.Settings.Update(ctx, func(s *model.Settings) error {
			s.HistoryLimit = -1
			return nil
		})
		gt.Error(t, err).Is(model.ErrInvalidSettings)
		gt.Value(t, store.Snapshot().HistoryLimit).Equal(0)
	})

	t.Run("lowering the history limit evicts right away", func(t *testing.T) {
		saved, err := uc.Settings.Update(ctx, func(s *model.Settings) error {
			s.HistoryLimit = 3
			return nil
		})
		gt.NoError(t, err).Required()
		gt.Value(t, saved.HistoryLimit).Equal(3)
		gt.Value(t, store.Snapshot().HistoryLimit).Equal(3)

		captures, err := uc.History.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, captures).Length(3).Required()
		gt.Value(t, captures[2].OCRText).Equal("capture 2")
	})

	t.Run("returned settings are a copy", func(t *testing.T) {
		got := uc.Settings.Get()
		got.AnswerModel = "changed"
		gt.Value(t, store.Snapshot().AnswerModel).Equal(model.DefaultAnswerModel)
	})
}

func TestSettingsConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := newMemorySettings(model.DefaultSettings())
	uc := usecase.New(memory.New(), store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := uc.Settings.Update(ctx, func(s *model.Settings) error {
			s.Think = true
			return nil
		})
		gt.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := uc.Settings.Update(ctx, func(s *model.Settings) error {
			s.HistoryLimit = 3
			return nil
		})
		gt.NoError(t, err)
	}()
	wg.Wait()

	got := uc.Settings.Get()
	gt.Bool(t, got.Think).True()
	gt.Value(t, got.HistoryLimit).Equal(3)
}
