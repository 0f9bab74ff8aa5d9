package ocr_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/service/ocr"
)

func newPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 200, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img)).Required()
	return buf.Bytes()
}

func TestPreprocess(t *testing.T) {
	t.Run("upscales narrow crops to grayscale", func(t *testing.T) {
		out, err := ocr.Preprocess(newPNG(t, 100, 40))
		gt.NoError(t, err).Required()

		img, err := png.Decode(bytes.NewReader(out))
		gt.NoError(t, err).Required()
		gt.Value(t, img.Bounds().Dx()).Equal(200)
		gt.Value(t, img.Bounds().Dy()).Equal(80)

		r, g, b, _ := img.At(10, 10).RGBA()
		gt.Value(t, r).Equal(g)
		gt.Value(t, g).Equal(b)
	})

	t.Run("keeps wide images at size", func(t *testing.T) {
		out, err := ocr.Preprocess(newPNG(t, 1200, 10))
		gt.NoError(t, err).Required()

		img, err := png.Decode(bytes.NewReader(out))
		gt.NoError(t, err).Required()
		gt.Value(t, img.Bounds().Dx()).Equal(1200)
	})

	t.Run("rejects non-image data", func(t *testing.T) {
		_, err := ocr.Preprocess([]byte("not an image"))
		gt.Value(t, err).NotNil()
	})
}

func TestTesseractRecognize(t *testing.T) {
	path := os.Getenv("TEST_TESSERACT_IMAGE")
	if path == "" {
		t.Skip("TEST_TESSERACT_IMAGE not set")
	}

	data, err := os.ReadFile(path)
	gt.NoError(t, err).Required()

	text, err := ocr.New().Recognize(context.Background(), data, "eng")
	gt.NoError(t, err).Required()
	gt.String(t, text).NotEqual("")
}
