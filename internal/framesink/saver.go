// Package framesink writes healed frames to disk as still images.
package framesink

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// Saver encodes frames to numbered image files.
//
// Thread-safe: can be called from multiple workers concurrently, as long
// as each frame has a distinct Seq.
type Saver struct {
	outputDir   string
	format      string
	jpegQuality int

	framesSaved  atomic.Uint64
	framesFailed atomic.Uint64
}

// NewSaver creates the output directory and validates the format.
//
// Format: "png", "jpeg", "bmp" or "tiff". JPEGQuality: 1-100 (jpeg only).
func NewSaver(outputDir, format string, jpegQuality int) (*Saver, error) {
	format = strings.ToLower(format)
	switch format {
	case "png", "jpeg", "bmp", "tiff":
	case "jpg":
		format = "jpeg"
	default:
		return nil, fmt.Errorf("unsupported output format: %s (must be png, jpeg, bmp or tiff)", format)
	}
	if format == "jpeg" && (jpegQuality < 1 || jpegQuality > 100) {
		return nil, fmt.Errorf("invalid jpeg quality %d (must be 1-100)", jpegQuality)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Saver{
		outputDir:   outputDir,
		format:      format,
		jpegQuality: jpegQuality,
	}, nil
}

// Path returns the file a frame with sequence number seq is written to.
func (s *Saver) Path(seq uint64) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("frame_%06d.%s", seq, s.Ext()))
}

// Save writes f to Path(f.Seq).
func (s *Saver) Save(f *frame.Frame) error {
	return s.SaveTo(f, s.Path(f.Seq))
}

// SaveTo encodes f to path. The file is written under a temporary name
// and renamed, so readers never observe a partial image.
func (s *Saver) SaveTo(f *frame.Frame, path string) error {
	img, err := ToImage(f)
	if err != nil {
		s.framesFailed.Add(1)
		return err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		s.framesFailed.Add(1)
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := s.encode(file, img); err != nil {
		file.Close()
		os.Remove(tmp)
		s.framesFailed.Add(1)
		return fmt.Errorf("%s encode failed: %w", s.format, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		s.framesFailed.Add(1)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		s.framesFailed.Add(1)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}

	s.framesSaved.Add(1)
	return nil
}

// Ext returns the file extension written by the saver, without the dot.
func (s *Saver) Ext() string {
	if s.format == "jpeg" {
		return "jpg"
	}
	return s.format
}

func (s *Saver) encode(w io.Writer, img image.Image) error {
	switch s.format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.jpegQuality})
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return png.Encode(w, img)
	}
}

// Stats returns current save statistics.
func (s *Saver) Stats() (saved, failed uint64) {
	return s.framesSaved.Load(), s.framesFailed.Load()
}

// ToImage converts a BGR24 or BGRA32 frame to an opaque RGBA image.
// Row padding is skipped; alpha is not carried over.
func ToImage(f *frame.Frame) (*image.RGBA, error) {
	if !f.Format.IsInterleavedBGR() {
		return nil, fmt.Errorf("cannot convert %s frame to image", f.Format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	bpp := f.Format.BytesPerPixel()
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	for y := 0; y < f.Height; y++ {
		src := f.Data[y*f.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*bpp+2] // R
			dst[x*4+1] = src[x*bpp+1] // G
			dst[x*4+2] = src[x*bpp+0] // B
			dst[x*4+3] = 255
		}
	}

	return img, nil
}
