package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

// CaptureRepository keeps captures in process memory. Values are copied on
// the way in and out so callers never share slices with the store.
type CaptureRepository struct {
	mu       sync.RWMutex
	captures map[model.CaptureID]*model.Capture
}

var _ interfaces.CaptureRepository = &CaptureRepository{}

func New() *CaptureRepository {
	return &CaptureRepository{
		captures: make(map[model.CaptureID]*model.Capture),
	}
}

func (r *CaptureRepository) Create(ctx context.Context, capture *model.Capture) error {
	if capture == nil || capture.ID == "" {
		return goerr.New("capture id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.captures[capture.ID]; exists {
		return goerr.Wrap(model.ErrCaptureAlreadyExists, "capture already exists", goerr.V(model.CaptureIDKey, capture.ID))
	}

	created := capture.Copy()
	if created.Responses == nil {
		created.Responses = []string{}
	}
	r.captures[created.ID] = created
	return nil
}

func (r *CaptureRepository) Get(ctx context.Context, id model.CaptureID) (*model.Capture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.captures[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	return c.Copy(), nil
}

func (r *CaptureRepository) AppendResponse(ctx context.Context, id model.CaptureID, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.captures[id]
	if !exists {
		return goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	c.Responses = append(c.Responses, response)
	return nil
}

func (r *CaptureRepository) PutEmbedding(ctx context.Context, id model.CaptureID, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.captures[id]
	if !exists {
		return goerr.Wrap(model.ErrCaptureNotFound, "capture not found", goerr.V(model.CaptureIDKey, id))
	}
	c.Embedding = make([]float32, len(embedding))
	copy(c.Embedding, embedding)
	return nil
}

func (r *CaptureRepository) Delete(ctx context.Context, id model.CaptureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.captures, id)
	return nil
}

func (r *CaptureRepository) List(ctx context.Context) ([]*model.Capture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Capture, 0, len(r.captures))
	for _, c := range r.captures {
		result = append(result, c.Copy())
	}
	return result, nil
}

func (r *CaptureRepository) Prune(ctx context.Context, keep int) ([]model.CaptureID, error) {
	if keep <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*model.Capture, 0, len(r.captures))
	for _, c := range r.captures {
		all = append(all, c)
	}

	evicted := model.SelectEvictions(all, keep)
	for _, id := range evicted {
		delete(r.captures, id)
	}
	return evicted, nil
}

func (r *CaptureRepository) Close() error {
	return nil
}
