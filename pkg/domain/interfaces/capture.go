package interfaces

import (
	"context"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// CaptureRepository defines the interface for Capture data persistence.
// Every write is atomic with respect to the capture id.
type CaptureRepository interface {
	// Create stores a new capture. Returns model.ErrCaptureAlreadyExists if the id is taken.
	Create(ctx context.Context, capture *model.Capture) error

	// Get returns a snapshot of the capture. Returns model.ErrCaptureNotFound if absent.
	Get(ctx context.Context, id model.CaptureID) (*model.Capture, error)

	// AppendResponse appends one answer to the capture's responses
	AppendResponse(ctx context.Context, id model.CaptureID, response string) error

	// PutEmbedding replaces the capture's embedding
	PutEmbedding(ctx context.Context, id model.CaptureID, embedding []float32) error

	// Delete removes the capture. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id model.CaptureID) error

	// List returns every capture, unordered
	List(ctx context.Context) ([]*model.Capture, error)

	// Prune keeps the newest keep captures and deletes the rest, returning the
	// deleted ids. keep <= 0 means unlimited.
	Prune(ctx context.Context, keep int) ([]model.CaptureID, error)

	Close() error
}
