package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// VisionModelLocalOnly selects local OCR and skips the vision model entirely
	VisionModelLocalOnly = "tesseract"

	DefaultLanguage       = "eng"
	DefaultAnswerModel    = "llama3.2"
	DefaultEmbeddingModel = "nomic-embed-text"
)

// Settings is an immutable snapshot of user configuration. Producers build a
// new value instead of mutating one that may be shared with readers.
type Settings struct {
	VisionModel         string `toml:"vision_model" json:"vision_model"`
	AnswerModel         string `toml:"answer_model" json:"answer_model"`
	Think               bool   `toml:"think" json:"think"`
	HistoryLimit        int    `toml:"history_limit" json:"history_limit"`
	ClipboardMonitoring bool   `toml:"clipboard_monitoring" json:"clipboard_monitoring"`
	Language            string `toml:"language" json:"language"`
}

// DefaultSettings returns the settings used when no file exists yet
func DefaultSettings() *Settings {
	return &Settings{
		VisionModel: VisionModelLocalOnly,
		AnswerModel: DefaultAnswerModel,
		Language:    DefaultLanguage,
	}
}

// Validate checks if the Settings are valid
func (s *Settings) Validate() error {
	if s.HistoryLimit < 0 {
		return goerr.Wrap(ErrInvalidSettings, "history_limit must not be negative", goerr.V("history_limit", s.HistoryLimit))
	}
	if strings.TrimSpace(s.AnswerModel) == "" {
		return goerr.Wrap(ErrInvalidSettings, "answer_model is required")
	}
	return nil
}

// Clone returns a copy that can be modified and published as a new snapshot
func (s *Settings) Clone() *Settings {
	copied := *s
	return &copied
}

// UsesVisionModel reports whether extraction should try the configured vision model first
func (s *Settings) UsesVisionModel() bool {
	name := strings.TrimSpace(s.VisionModel)
	return name != "" && !strings.EqualFold(name, VisionModelLocalOnly)
}

// OCRLanguage returns the language hint, falling back to DefaultLanguage
func (s *Settings) OCRLanguage() string {
	if s.Language == "" {
		return DefaultLanguage
	}
	return s.Language
}

// ContainsModel reports whether name is among installed. A name without a tag
// and the same name with the ":latest" tag are the same model, on either side.
func ContainsModel(installed []string, name string) bool {
	want := strings.TrimSuffix(name, ":latest")
	for _, m := range installed {
		if strings.TrimSuffix(m, ":latest") == want {
			return true
		}
	}
	return false
}
