package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

func TestSettingsStoreLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.toml")
		st, err := config.NewSettingsForTest(path).Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, st.Snapshot()).Equal(model.DefaultSettings())

		_, err = os.Stat(path)
		gt.Bool(t, os.IsNotExist(err)).True()
	})

	t.Run("keys missing from the file keep defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.toml")
		gt.NoError(t, os.WriteFile(path, []byte("history_limit = 20\nthink = true\n"), 0600)).Required()

		st, err := config.NewSettingsStore(path)
		gt.NoError(t, err).Required()
		s := st.Snapshot()
		gt.Value(t, s.HistoryLimit).Equal(20)
		gt.Bool(t, s.Think).True()
		gt.Value(t, s.AnswerModel).Equal(model.DefaultAnswerModel)
		gt.Value(t, s.Language).Equal("eng")
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.toml")
		gt.NoError(t, os.WriteFile(path, []byte("history_limit = -3\n"), 0600)).Required()

		_, err := config.NewSettingsStore(path)
		gt.Error(t, err).Is(model.ErrInvalidSettings)
	})

	t.Run("broken toml is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.toml")
		gt.NoError(t, os.WriteFile(path, []byte("history_limit = = 1"), 0600)).Required()

		_, err := config.NewSettingsStore(path)
		gt.Error(t, err).Is(model.ErrInvalidSettings)
	})
}

func TestSettingsStoreSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	st, err := config.NewSettingsStore(path)
	gt.NoError(t, err).Required()

	before := st.Snapshot()
	updated, err := st.Update(ctx, func(s *model.Settings) error {
		s.VisionModel = "llava"
		s.ClipboardMonitoring = true
		return nil
	})
	gt.NoError(t, err).Required()
	gt.Value(t, updated.VisionModel).Equal("llava")

	t.Run("previous snapshot is untouched", func(t *testing.T) {
		gt.Value(t, before.VisionModel).Equal(model.VisionModelLocalOnly)
		gt.Bool(t, before.ClipboardMonitoring).False()
	})

	t.Run("file round trips", func(t *testing.T) {
		reopened, err := config.NewSettingsStore(path)
		gt.NoError(t, err).Required()
		gt.Value(t, reopened.Snapshot()).Equal(updated)
	})

	t.Run("invalid update is not saved", func(t *testing.T) {
		_, err := st.Update(ctx, func(s *model.Settings) error {
			s.HistoryLimit = -1
			return nil
		})
		gt.Error(t, err).Is(model.ErrInvalidSettings)
		gt.Value(t, st.Snapshot().HistoryLimit).Equal(0)
	})
}

func TestSettingsStoreConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	st, err := config.NewSettingsStore(path)
	gt.NoError(t, err).Required()

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Update(ctx, func(s *model.Settings) error {
				s.HistoryLimit++
				return nil
			})
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.Value(t, st.Snapshot().HistoryLimit).Equal(n)

	reopened, err := config.NewSettingsStore(path)
	gt.NoError(t, err).Required()
	gt.Value(t, reopened.Snapshot().HistoryLimit).Equal(n)
}

func TestSettingsStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	st, err := config.NewSettingsStore(path)
	gt.NoError(t, err).Required()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- st.Watch(ctx)
	}()
	defer func() {
		cancel()
		gt.NoError(t, <-done)
	}()

	// give the watcher time to register before the first write
	time.Sleep(100 * time.Millisecond)
	gt.NoError(t, os.WriteFile(path, []byte("history_limit = 7\n"), 0600)).Required()

	deadline := time.Now().Add(5 * time.Second)
	for st.Snapshot().HistoryLimit != 7 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	gt.Value(t, st.Snapshot().HistoryLimit).Equal(7)
}

func TestApplySetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(t *testing.T, s *model.Settings)
		wantErr error
	}{
		{key: "vision_model", value: "llava", check: func(t *testing.T, s *model.Settings) { gt.Value(t, s.VisionModel).Equal("llava") }},
		{key: "answer_model", value: "qwen3", check: func(t *testing.T, s *model.Settings) { gt.Value(t, s.AnswerModel).Equal("qwen3") }},
		{key: "language", value: "jpn", check: func(t *testing.T, s *model.Settings) { gt.Value(t, s.Language).Equal("jpn") }},
		{key: "think", value: "true", check: func(t *testing.T, s *model.Settings) { gt.Bool(t, s.Think).True() }},
		{key: "clipboard_monitoring", value: "1", check: func(t *testing.T, s *model.Settings) { gt.Bool(t, s.ClipboardMonitoring).True() }},
		{key: "history_limit", value: "50", check: func(t *testing.T, s *model.Settings) { gt.Value(t, s.HistoryLimit).Equal(50) }},
		{key: "history_limit", value: "many", wantErr: config.ErrInvalidValue},
		{key: "think", value: "maybe", wantErr: config.ErrInvalidValue},
		{key: "theme", value: "dark", wantErr: config.ErrUnknownSetting},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := model.DefaultSettings()
			err := config.ApplySetting(s, tt.key, tt.value)
			if tt.wantErr != nil {
				gt.Error(t, err).Is(tt.wantErr)
				return
			}
			gt.NoError(t, err).Required()
			tt.check(t, s)
		})
	}
}
