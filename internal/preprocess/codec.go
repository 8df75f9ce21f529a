package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Raster formats accepted for recognition.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"docscan/internal/domain"
)

// decode parses an encoded image, refusing images above maxPixels before the
// pixel buffer is allocated. maxPixels <= 0 disables the check.
func decode(data []byte, maxPixels int) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %s image %dx%d exceeds %d pixels",
			domain.ErrPayloadTooLarge, format, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s image: %w", format, err)
	}
	return img, nil
}

// Dimensions returns the pixel size of an encoded image without decoding it.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func encodePage(img *image.Gray) (*domain.Page, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	b := img.Bounds()
	return &domain.Page{
		MediaType: domain.MediaTypePNG,
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}
