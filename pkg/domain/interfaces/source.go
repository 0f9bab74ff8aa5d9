package interfaces

import (
	"context"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// OCR recognizes text in an image locally
type OCR interface {
	Recognize(ctx context.Context, image []byte, language string) (string, error)
}

// TextSource is a passive text source such as the system clipboard
type TextSource interface {
	ReadText(ctx context.Context) (string, error)
}

// SettingsProvider returns the current immutable settings snapshot
type SettingsProvider interface {
	Snapshot() *model.Settings
}

// ScreenSource produces an encoded screenshot of the whole screen
type ScreenSource interface {
	Grab(ctx context.Context) ([]byte, error)
}

// SettingsStore persists settings and publishes each saved value as the new snapshot
type SettingsStore interface {
	SettingsProvider
	Save(ctx context.Context, settings *model.Settings) error

	// Update applies fn to a copy of the current settings and saves the
	// result atomically with respect to other writers
	Update(ctx context.Context, fn func(s *model.Settings) error) (*model.Settings, error)
}
