package preprocess_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/logging"
	"docscan/internal/preprocess"
)

// tiltedLines draws horizontal text-like bars tilted by deg degrees.
func tiltedLines(w, h int, deg float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	slope := math.Tan(deg * math.Pi / 180)
	for y0 := 80; y0 < h-80; y0 += 40 {
		for x := w / 10; x < w-w/10; x++ {
			y := y0 + int(math.Round(float64(x-w/10)*slope))
			for t := 0; t < 3; t++ {
				if y+t >= 0 && y+t < h {
					img.SetGray(x, y+t, color.Gray{Y: 0})
				}
			}
		}
	}
	return img
}

func pngPage(t *testing.T, img image.Image) *domain.Page {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	b := img.Bounds()
	return &domain.Page{MediaType: domain.MediaTypePNG, Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}
}

func newPreprocessor(mutate func(c *config.PreprocessConfig)) *preprocess.Preprocessor {
	cfg := config.DefaultPreprocess()
	if mutate != nil {
		mutate(&cfg)
	}
	return preprocess.New(cfg, logging.Discard())
}

func TestEstimateSkew(t *testing.T) {
	tests := []struct {
		name string
		tilt float64
	}{
		{"level", 0},
		{"tilted down", 3},
		{"tilted up", -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tiltedLines(1000, 800, tt.tilt)
			got := preprocess.EstimateSkew(img, 5, 0.25)
			assert.InDelta(t, tt.tilt, got, 0.5)
		})
	}
}

func TestRotate_StraightensTiltedLines(t *testing.T) {
	img := tiltedLines(1000, 800, 3)
	angle := preprocess.EstimateSkew(img, 5, 0.25)
	require.NotZero(t, angle)

	straightened := preprocess.Rotate(img, angle)
	assert.Equal(t, img.Bounds(), straightened.Bounds())
	assert.InDelta(t, 0, preprocess.EstimateSkew(straightened, 5, 0.25), 0.5)
}

func TestEstimateSkew_BlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	assert.Zero(t, preprocess.EstimateSkew(img, 5, 0.25))
}

func TestMedianFilter_RemovesSpeck(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 5, 5))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(2, 2, color.Gray{Y: 0})

	out := preprocess.MedianFilter(img)
	assert.Equal(t, uint8(255), out.GrayAt(2, 2).Y)
}

func TestStretchContrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 1))
	for x := 0; x < 100; x++ {
		img.SetGray(x, 0, color.Gray{Y: uint8(100 + x/2)})
	}

	out := preprocess.StretchContrast(img, 0.01, 0.99)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(99, 0).Y)
}

func TestStretchContrast_FlatImageUnchanged(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	assert.Same(t, img, preprocess.StretchContrast(img, 0.01, 0.99))
}

func TestScaleFactor(t *testing.T) {
	// 2480 px across an A4 page is already 300 DPI.
	assert.Equal(t, 1.0, preprocess.ScaleFactor(image.Rect(0, 0, 2480, 3508), 300, 0))
	assert.InDelta(t, 2.0, preprocess.ScaleFactor(image.Rect(0, 0, 1240, 1754), 300, 0), 0.01)
	// capped by the pixel budget
	f := preprocess.ScaleFactor(image.Rect(0, 0, 1240, 1754), 300, 1240*1754)
	assert.InDelta(t, 1.0, f, 1e-9)
}

func TestNormalize_ProducesGrayPNG(t *testing.T) {
	p := newPreprocessor(func(c *config.PreprocessConfig) { c.Rescale = false })
	in := pngPage(t, tiltedLines(600, 400, 2))

	out := p.Normalize(context.Background(), in)

	require.NotSame(t, in, out)
	assert.Equal(t, domain.MediaTypePNG, out.MediaType)
	assert.Equal(t, 600, out.Width)
	assert.Equal(t, 400, out.Height)
	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	_, isGray := img.(*image.Gray)
	assert.True(t, isGray)
}

func TestNormalize_Rescales(t *testing.T) {
	p := newPreprocessor(func(c *config.PreprocessConfig) {
		c.Deskew = false
		c.Denoise = false
		c.TargetDPI = 150
	})
	in := pngPage(t, tiltedLines(620, 877, 0))

	out := p.Normalize(context.Background(), in)

	assert.InDelta(t, 1240, out.Width, 2)
	assert.InDelta(t, 1754, out.Height, 2)
}

func TestNormalize_ReturnsOriginalOnFailure(t *testing.T) {
	garbage := &domain.Page{MediaType: domain.MediaTypePNG, Data: []byte("not an image")}
	pdf := &domain.Page{MediaType: domain.MediaTypePDF, Data: []byte("%PDF-1.7")}
	valid := pngPage(t, tiltedLines(300, 300, 1))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		p    *preprocess.Preprocessor
		ctx  context.Context
		page *domain.Page
	}{
		{"undecodable", newPreprocessor(nil), context.Background(), garbage},
		{"pdf passthrough", newPreprocessor(nil), context.Background(), pdf},
		{"disabled", newPreprocessor(func(c *config.PreprocessConfig) { c.Enabled = false }), context.Background(), valid},
		{"pixel budget", newPreprocessor(func(c *config.PreprocessConfig) { c.MaxPixels = 100 }), context.Background(), valid},
		{"canceled", newPreprocessor(nil), canceled, valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.page, tt.p.Normalize(tt.ctx, tt.page))
		})
	}
}

func TestShrink(t *testing.T) {
	p := newPreprocessor(nil)
	in := pngPage(t, tiltedLines(200, 100, 0))

	out, err := p.Shrink(in, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height)
}

func TestShrink_Errors(t *testing.T) {
	p := newPreprocessor(nil)

	_, err := p.Shrink(&domain.Page{MediaType: domain.MediaTypePDF}, 0.5)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMediaType)

	_, err = p.Shrink(pngPage(t, tiltedLines(50, 50, 0)), 1.5)
	assert.Error(t, err)
}
