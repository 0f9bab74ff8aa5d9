package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/service/extractor"
	"github.com/secmon-lab/recall/pkg/service/screen"
	"github.com/secmon-lab/recall/pkg/usecase"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)))).Required()
	return buf.Bytes()
}

// tickingClock returns a clock that advances one second per call
func tickingClock() func() time.Time {
	now := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestCapture(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	settings := model.DefaultSettings()
	settings.VisionModel = "llava"
	settings.Language = "jpn"

	var got extractor.Input
	ext := &mockExtractor{
		extractFn: func(ctx context.Context, input extractor.Input) (string, error) {
			got = input
			return "Build failed: exit status 1", nil
		},
	}
	uc := usecase.New(repo, newMemorySettings(settings), usecase.WithExtractor(ext), usecase.WithClock(tickingClock()))

	session, err := uc.Capture.Capture(ctx, usecase.CaptureInput{Image: pngImage(t, 20, 10)})
	gt.NoError(t, err).Required()
	gt.Value(t, session.OCRText).Equal("Build failed: exit status 1")
	gt.Value(t, got.Language).Equal("jpn")
	gt.Value(t, got.VisionModel).Equal("llava")

	stored, err := repo.Get(ctx, session.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.OCRText).Equal("Build failed: exit status 1")
	gt.Value(t, stored.Timestamp).Equal(int64(1_700_000_001_000))
	gt.Bool(t, stored.HasEmbedding()).False()
	gt.Array(t, stored.Responses).Length(0)
}

func TestCaptureRegion(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	var size image.Point
	ext := &mockExtractor{
		extractFn: func(ctx context.Context, input extractor.Input) (string, error) {
			img, err := png.Decode(bytes.NewReader(input.Image))
			if err != nil {
				return "", err
			}
			size = img.Bounds().Size()
			return "region", nil
		},
	}
	uc := usecase.New(repo, newMemorySettings(model.DefaultSettings()), usecase.WithExtractor(ext))

	source := screen.BytesSource(pngImage(t, 100, 80))
	_, err := uc.Capture.CaptureRegion(ctx, source, screen.Rect{X: 10, Y: 10, Width: 30, Height: 20})
	gt.NoError(t, err).Required()
	gt.Value(t, size).Equal(image.Pt(30, 20))
}

func TestCaptureFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	ext := &mockExtractor{
		extractFn: func(ctx context.Context, input extractor.Input) (string, error) {
			return "", errors.Join(model.ErrOCRFailed, errors.New("tesseract crashed"))
		},
	}
	uc := usecase.New(repo, newMemorySettings(model.DefaultSettings()), usecase.WithExtractor(ext))

	_, err := uc.Capture.Capture(ctx, usecase.CaptureInput{Image: pngImage(t, 4, 4)})
	gt.Error(t, err).Is(model.ErrOCRFailed)

	_, err = uc.Capture.Capture(ctx, usecase.CaptureInput{})
	gt.Error(t, err).Is(usecase.ErrNoImage)

	captures, err := repo.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, captures).Length(0)
}

func TestCaptureEvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	settings := model.DefaultSettings()
	settings.HistoryLimit = 2

	texts := []string{"A", "B", "C"}
	i := 0
	ext := &mockExtractor{
		extractFn: func(ctx context.Context, input extractor.Input) (string, error) {
			text := texts[i]
			i++
			return text, nil
		},
	}
	uc := usecase.New(repo, newMemorySettings(settings), usecase.WithExtractor(ext), usecase.WithClock(tickingClock()))

	for range texts {
		_, err := uc.Capture.Capture(ctx, usecase.CaptureInput{Image: pngImage(t, 4, 4)})
		gt.NoError(t, err).Required()
	}

	captures, err := uc.History.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, captures).Length(2).Required()
	gt.Value(t, captures[0].OCRText).Equal("C")
	gt.Value(t, captures[1].OCRText).Equal("B")
}

func TestIngestText(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	uc := usecase.New(repo, newMemorySettings(model.DefaultSettings()))

	capture, err := uc.Capture.IngestText(ctx, "copied text")
	gt.NoError(t, err).Required()

	stored, err := repo.Get(ctx, capture.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.OCRText).Equal("copied text")
}
