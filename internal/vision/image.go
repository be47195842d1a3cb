package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported image")

// Image is an uploaded image with its sniffed format and dimensions.
type Image struct {
	Key    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// DecodeImage reads only the image header to learn the format and size.
func DecodeImage(key string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return Image{
		Key:    key,
		Data:   data,
		Format: strings.ToUpper(format),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
