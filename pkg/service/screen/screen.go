package screen

import (
	"bytes"
	"context"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/m-mizutani/goerr/v2"

	// additional screenshot formats
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Rect is a screen region in pixels
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether the rect selects nothing, meaning the whole image
func (r Rect) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// ParseRect parses "x,y,width,height"
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, goerr.New("rect must be x,y,width,height", goerr.V("rect", s))
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, goerr.Wrap(err, "invalid rect component", goerr.V("rect", s))
		}
		v[i] = n
	}

	r := Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
		return Rect{}, goerr.New("rect must have a non-negative origin and a positive size", goerr.V("rect", s))
	}
	return r, nil
}

// Crop cuts the region out of an encoded image and returns it as PNG. A zero
// rect returns the whole image re-encoded.
func Crop(data []byte, r Rect) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode screenshot")
	}

	if !r.IsZero() {
		region := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
		if !region.Overlaps(img.Bounds()) {
			return nil, goerr.New("region is outside the screenshot",
				goerr.V("rect", r),
				goerr.V("bounds", img.Bounds().String()),
			)
		}
		img = imaging.Crop(img, region)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, goerr.Wrap(err, "failed to encode region")
	}
	return buf.Bytes(), nil
}

// FileSource grabs the screen from an image file written by an external
// screenshot tool
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Grab(ctx context.Context) ([]byte, error) {
	// #nosec G304 - path is provided by the user
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read screenshot", goerr.V("path", s.path))
	}
	return data, nil
}

// BytesSource serves an image that is already in memory
type BytesSource []byte

func (s BytesSource) Grab(ctx context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, goerr.New("image is empty")
	}
	return s, nil
}
