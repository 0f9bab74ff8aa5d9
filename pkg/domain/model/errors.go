package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by every layer. Compare with errors.Is.
var (
	ErrCaptureNotFound      = goerr.New("capture not found")
	ErrCaptureAlreadyExists = goerr.New("capture already exists")

	// ErrModelNotFound means a vision or answer model is not installed on the backend
	ErrModelNotFound = goerr.New("model not found")
	// ErrOCRFailed means every extraction path was exhausted
	ErrOCRFailed = goerr.New("text extraction failed")
	// ErrStreamFailed means the generation backend failed before or during a stream
	ErrStreamFailed = goerr.New("generation stream failed")
	ErrStorage      = goerr.New("storage failure")

	ErrInvalidSettings = goerr.New("invalid settings")
	ErrSessionBusy     = goerr.New("session already has an active query")
)

// Context keys for error values
const (
	CaptureIDKey = "capture_id"
	ModelKey     = "model"
)
