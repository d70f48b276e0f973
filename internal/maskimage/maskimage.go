// Package maskimage decodes defect-map images and adapts them to the
// liveness Mask interface.
package maskimage

import (
	"fmt"
	"image"
	"image/color"
	"os"

	// Registered decoders: defect maps are usually BMP or PNG.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes the image at path. The format is detected from content.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open mask: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode mask %s: %w", path, err)
	}
	return img, format, nil
}

// Mask exposes an image's 8-bit colour channels, origin at the top-left
// pixel regardless of the image bounds.
type Mask struct {
	img     image.Image
	flipped bool
}

// FromImage wraps img. With flip set, row 0 of the mask is the bottom row
// of the image (masks authored for bottom-up frame storage).
func FromImage(img image.Image, flip bool) *Mask {
	return &Mask{img: img, flipped: flip}
}

// Width in pixels
func (m *Mask) Width() int { return m.img.Bounds().Dx() }

// Height in pixels
func (m *Mask) Height() int { return m.img.Bounds().Dy() }

// Channels returns the non-premultiplied R, G, B of pixel (x, y).
func (m *Mask) Channels(x, y int) (r, g, b uint8) {
	bounds := m.img.Bounds()
	if m.flipped {
		y = bounds.Dy() - 1 - y
	}
	c := color.NRGBAModel.Convert(m.img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
	return c.R, c.G, c.B
}
