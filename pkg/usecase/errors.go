package usecase

import "errors"

// Sentinel errors for use case layer
var (
	ErrPromptRequired = errors.New("prompt is required")
	ErrNoImage        = errors.New("image is empty")

	// ErrNotConfigured is returned when an operation needs a backend that was not wired
	ErrNotConfigured = errors.New("component is not configured")
)
