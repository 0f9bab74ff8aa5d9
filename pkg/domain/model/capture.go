package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaptureID is a UUID-based identifier for Capture
type CaptureID string

// NewCaptureID generates a new UUID v4 CaptureID
func NewCaptureID() CaptureID {
	return CaptureID(uuid.New().String())
}

func (id CaptureID) String() string {
	return string(id)
}

// Capture is one persisted record derived from a screenshot or a clipboard event.
// OCRText and Timestamp are fixed at creation. Responses only grow by append and
// Embedding, when present, is always derived from OCRText.
type Capture struct {
	ID        CaptureID `json:"id"`
	OCRText   string    `json:"ocr_text"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
	Embedding []float32 `json:"-"`         // nil until the first answer is saved
	Responses []string  `json:"responses"`
}

// NewCapture builds a fresh record for text captured at the given time
func NewCapture(text string, at time.Time) *Capture {
	return &Capture{
		ID:        NewCaptureID(),
		OCRText:   text,
		Timestamp: at.UnixMilli(),
		Responses: []string{},
	}
}

// CreatedAt returns Timestamp as time.Time
func (c *Capture) CreatedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// HasEmbedding reports whether the capture can take part in similarity search
func (c *Capture) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// LatestResponse returns the most recent non-empty answer, or "" if there is none.
func (c *Capture) LatestResponse() string {
	for i := len(c.Responses) - 1; i >= 0; i-- {
		if strings.TrimSpace(c.Responses[i]) != "" {
			return c.Responses[i]
		}
	}
	return ""
}

// Copy returns a deep copy so callers never share slices with a store
func (c *Capture) Copy() *Capture {
	if c == nil {
		return nil
	}
	copied := &Capture{
		ID:        c.ID,
		OCRText:   c.OCRText,
		Timestamp: c.Timestamp,
		Responses: make([]string, len(c.Responses)),
	}
	copy(copied.Responses, c.Responses)
	if c.Embedding != nil {
		copied.Embedding = make([]float32, len(c.Embedding))
		copy(copied.Embedding, c.Embedding)
	}
	return copied
}

// SortCapturesNewestFirst orders captures by timestamp descending, breaking ties by ID ascending.
func SortCapturesNewestFirst(captures []*Capture) {
	slices.SortStableFunc(captures, func(a, b *Capture) int {
		if a.Timestamp != b.Timestamp {
			if a.Timestamp > b.Timestamp {
				return -1
			}
			return 1
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

// SelectEvictions returns the IDs that must be removed so that only the newest
// keep captures remain. keep <= 0 means unlimited and never evicts.
func SelectEvictions(captures []*Capture, keep int) []CaptureID {
	if keep <= 0 || len(captures) <= keep {
		return nil
	}

	sorted := slices.Clone(captures)
	SortCapturesNewestFirst(sorted)

	evicted := make([]CaptureID, 0, len(sorted)-keep)
	for _, c := range sorted[keep:] {
		evicted = append(evicted, c.ID)
	}
	return evicted
}
