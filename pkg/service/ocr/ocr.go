package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/otiai10/gosseract/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/safe"

	// additional screenshot formats
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// minWidth is the width below which small crops are upscaled before recognition
const minWidth = 1000

// Tesseract recognizes text with a local tesseract installation
type Tesseract struct {
	preprocess bool
}

var _ interfaces.OCR = &Tesseract{}

// Option is a functional option for Tesseract configuration
type Option func(*Tesseract)

// WithoutPreprocess passes images to tesseract untouched
func WithoutPreprocess() Option {
	return func(t *Tesseract) {
		t.preprocess = false
	}
}

func New(opts ...Option) *Tesseract {
	t := &Tesseract{preprocess: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	if language == "" {
		language = model.DefaultLanguage
	}

	input := image
	if t.preprocess {
		prepared, err := Preprocess(image)
		if err != nil {
			return "", goerr.Wrap(err, "failed to preprocess image")
		}
		input = prepared
	}

	client := gosseract.NewClient()
	defer safe.Close(ctx, client)

	if err := client.SetLanguage(language); err != nil {
		return "", goerr.Wrap(err, "failed to set OCR language", goerr.V("language", language))
	}
	if err := client.SetImageFromBytes(input); err != nil {
		return "", goerr.Wrap(err, "failed to load image into tesseract")
	}

	text, err := client.Text()
	if err != nil {
		return "", goerr.Wrap(err, "tesseract recognition failed", goerr.V("language", language))
	}
	return strings.TrimSpace(text), nil
}

// Preprocess converts the image to grayscale and upscales narrow crops so
// small UI text is legible to tesseract. The result is PNG encoded.
func Preprocess(image []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(image), imaging.AutoOrientation(true))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode image")
	}

	gray := imaging.Grayscale(img)
	if w := gray.Bounds().Dx(); w > 0 && w < minWidth {
		gray = imaging.Resize(gray, w*2, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, goerr.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}
