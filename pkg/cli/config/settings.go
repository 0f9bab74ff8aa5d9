package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// reloadDebounce collapses the burst of events an editor produces on save
const reloadDebounce = 300 * time.Millisecond

// Settings holds CLI flags for the user settings file
type Settings struct {
	path string
}

// Flags returns CLI flags for settings configuration
func (s *Settings) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "settings-path",
			Usage:       "User settings TOML file (default: <user config dir>/recall/settings.toml)",
			Sources:     cli.EnvVars("RECALL_SETTINGS_PATH"),
			Destination: &s.path,
		},
	}
}

// LogAttrs returns log attributes for the settings configuration
func (s *Settings) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("path", s.path),
	}
}

// Configure loads the settings file into a store
func (s *Settings) Configure() (*SettingsStore, error) {
	path := s.path
	if path == "" {
		p, err := defaultDataPath("settings.toml")
		if err != nil {
			return nil, err
		}
		path = p
	}
	return NewSettingsStore(path)
}

// SettingsStore keeps the settings file and its current snapshot. Readers get
// the snapshot pointer; writers build a new value and swap it in. A snapshot
// is never mutated after it is published.
type SettingsStore struct {
	path    string
	current atomic.Pointer[model.Settings]

	// serializes writers
	mu sync.Mutex
}

var _ interfaces.SettingsStore = &SettingsStore{}

// NewSettingsStore loads path. A missing file yields model.DefaultSettings()
// and is only written on the first save.
func NewSettingsStore(path string) (*SettingsStore, error) {
	st := &SettingsStore{path: path}

	settings, err := loadSettings(path)
	if err != nil {
		return nil, err
	}
	st.current.Store(settings)
	return st, nil
}

func (st *SettingsStore) Path() string {
	return st.path
}

// Snapshot returns the current settings. The value must not be modified.
func (st *SettingsStore) Snapshot() *model.Settings {
	return st.current.Load()
}

// Save validates, writes and publishes settings
func (st *SettingsStore) Save(ctx context.Context, settings *model.Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.publish(ctx, settings)
}

// Update applies fn to a copy of the current settings and saves the result.
// The whole read-modify-write runs under the writer lock, so concurrent
// updates never overwrite each other.
func (st *SettingsStore) Update(ctx context.Context, fn func(s *model.Settings) error) (*model.Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.Snapshot().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := st.publish(ctx, next); err != nil {
		return nil, err
	}
	return st.Snapshot(), nil
}

// publish must be called with st.mu held
func (st *SettingsStore) publish(ctx context.Context, settings *model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	published := settings.Clone()
	if err := writeSettings(st.path, published); err != nil {
		return err
	}
	st.current.Store(published)

	logging.From(ctx).Info("settings saved", "path", st.path)
	return nil
}

// Watch reloads the snapshot when the file changes on disk, until ctx is
// done. An invalid file keeps the previous snapshot.
func (st *SettingsStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create settings watcher")
	}
	defer func() {
		_ = watcher.Close()
	}()

	// the directory is watched so that rename-on-save editors are followed
	dir := filepath.Dir(st.path)
	if err := watcher.Add(dir); err != nil {
		return goerr.Wrap(err, "failed to watch settings directory", goerr.V("dir", dir))
	}

	target := filepath.Clean(st.path)
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reload = time.After(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Default().Warn("settings watcher error", "error", err)

		case <-reload:
			reload = nil
			st.reload()
		}
	}
}

func (st *SettingsStore) reload() {
	settings, err := loadSettings(st.path)
	if err != nil {
		logging.Default().Warn("ignoring invalid settings file", "path", st.path, "error", err)
		return
	}

	st.mu.Lock()
	st.current.Store(settings)
	st.mu.Unlock()

	logging.Default().Info("settings reloaded", "path", st.path)
}

func loadSettings(path string) (*model.Settings, error) {
	// #nosec G304 - path is provided by CLI argument
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read settings file", goerr.V("path", path))
	}

	// keys missing from the file keep their defaults
	settings := model.DefaultSettings()
	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrInvalidSettings, err), "failed to parse settings file", goerr.V("path", path))
	}
	if err := settings.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid settings file", goerr.V("path", path))
	}
	return settings, nil
}

func writeSettings(path string, settings *model.Settings) error {
	data, err := toml.Marshal(settings)
	if err != nil {
		return goerr.Wrap(err, "failed to encode settings")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return goerr.Wrap(err, "failed to create settings directory", goerr.V("path", path))
	}

	// write then rename so the watcher never reads a half-written file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.toml")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary settings file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return goerr.Wrap(err, "failed to write settings", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return goerr.Wrap(err, "failed to write settings", goerr.V("path", path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return goerr.Wrap(err, "failed to replace settings file", goerr.V("path", path))
	}
	return nil
}

// SettingKeys lists the keys accepted by ApplySetting
var SettingKeys = []string{
	"vision_model",
	"answer_model",
	"think",
	"history_limit",
	"clipboard_monitoring",
	"language",
}

// ApplySetting sets one key of s from its text form
func ApplySetting(s *model.Settings, key, value string) error {
	switch key {
	case "vision_model":
		s.VisionModel = value
	case "answer_model":
		s.AnswerModel = value
	case "language":
		s.Language = value
	case "think", "clipboard_monitoring":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return goerr.Wrap(ErrInvalidValue, "boolean expected", goerr.V("key", key), goerr.V("value", value))
		}
		if key == "think" {
			s.Think = b
		} else {
			s.ClipboardMonitoring = b
		}
	case "history_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return goerr.Wrap(ErrInvalidValue, "integer expected", goerr.V("key", key), goerr.V("value", value))
		}
		s.HistoryLimit = n
	default:
		return goerr.Wrap(ErrUnknownSetting, "unknown setting key", goerr.V("key", key), goerr.V("keys", SettingKeys))
	}
	return nil
}
