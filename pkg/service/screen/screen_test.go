package screen_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/service/screen"
)

func newPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img)).Required()
	return buf.Bytes()
}

func TestParseRect(t *testing.T) {
	tests := []struct {
		in      string
		want    screen.Rect
		wantErr bool
	}{
		{in: "10,20,300,400", want: screen.Rect{X: 10, Y: 20, Width: 300, Height: 400}},
		{in: " 0, 0, 1, 1 ", want: screen.Rect{Width: 1, Height: 1}},
		{in: "1,2,3", wantErr: true},
		{in: "a,b,c,d", wantErr: true},
		{in: "0,0,0,10", wantErr: true},
		{in: "-1,0,10,10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := screen.ParseRect(tt.in)
			if tt.wantErr {
				gt.Value(t, err).NotNil()
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestCrop(t *testing.T) {
	src := newPNG(t, 100, 50)

	t.Run("cuts the region", func(t *testing.T) {
		out, err := screen.Crop(src, screen.Rect{X: 10, Y: 5, Width: 30, Height: 20})
		gt.NoError(t, err).Required()

		img, err := png.Decode(bytes.NewReader(out))
		gt.NoError(t, err).Required()
		gt.Value(t, img.Bounds().Dx()).Equal(30)
		gt.Value(t, img.Bounds().Dy()).Equal(20)
	})

	t.Run("zero rect keeps the whole image", func(t *testing.T) {
		out, err := screen.Crop(src, screen.Rect{})
		gt.NoError(t, err).Required()

		img, err := png.Decode(bytes.NewReader(out))
		gt.NoError(t, err).Required()
		gt.Value(t, img.Bounds().Dx()).Equal(100)
	})

	t.Run("region outside the image", func(t *testing.T) {
		_, err := screen.Crop(src, screen.Rect{X: 500, Y: 500, Width: 10, Height: 10})
		gt.Value(t, err).NotNil()
	})
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	data := newPNG(t, 4, 4)
	gt.NoError(t, os.WriteFile(path, data, 0o600)).Required()

	got, err := screen.NewFileSource(path).Grab(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal(data)

	_, err = screen.NewFileSource(filepath.Join(t.TempDir(), "missing.png")).Grab(context.Background())
	gt.Value(t, err).NotNil()

	_, err = screen.BytesSource(nil).Grab(context.Background())
	gt.Value(t, err).NotNil()
}
