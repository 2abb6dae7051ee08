// Package vision decodes and prepares images for the models. All images are
// converted to RGBA on decode; WebP support comes from x/image.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image holds a decoded image with its original dimensions.
type Image struct {
	RGBA   *image.RGBA
	Width  int
	Height int
}

// Decode decodes JPEG, PNG or WebP bytes into an RGBA image.
func Decode(data []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()
	return &Image{
		RGBA:   rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// Resize scales an image to the given size without preserving the aspect
// ratio.
func Resize(img *Image, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.RGBA, img.RGBA.Bounds(), draw.Over, nil)

	return &Image{
		RGBA:   dst,
		Width:  width,
		Height: height,
	}, nil
}

// EncodeJPEG re-encodes an image as JPEG.
func EncodeJPEG(img *Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.RGBA, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
