// Package render draws key labels into device images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"

	"github.com/andrei-cloud/keydeck/internal/device"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Drawing defaults.
const (
	DefaultSize     = 72
	DefaultFontSize = 12
	DefaultDPI      = 72
)

var (
	// Background is the key background colour.
	Background = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	// Foreground is the label colour.
	Foreground = color.White
)

// Format is an image encoding accepted by devices.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat maps a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// Renderer turns labels into key images and pushes them to a device.
type Renderer struct {
	dev    device.Device
	size   int
	format Format

	// font.Face is not safe for concurrent use.
	mu   sync.Mutex
	face font.Face
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the square key size in pixels.
func WithSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.size = px
		}
	}
}

// WithFormat sets the image encoding.
func WithFormat(f Format) Option {
	return func(r *Renderer) {
		if f != "" {
			r.format = f
		}
	}
}

// New returns a renderer drawing for dev. dev may be nil when only Bitmap
// is used.
func New(dev device.Device, opts ...Option) (*Renderer, error) {
	r := &Renderer{dev: dev, size: DefaultSize, format: FormatPNG}
	for _, opt := range opts {
		opt(r)
	}

	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	r.face, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    DefaultFontSize,
		DPI:     DefaultDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}

	return r, nil
}

// Size returns the key size in pixels.
func (r *Renderer) Size() int {
	return r.size
}

// Format returns the image encoding.
func (r *Renderer) Format() Format {
	return r.format
}

// Bitmap draws label centred on the key background and encodes it. The
// result depends only on the size, format and label.
func (r *Renderer) Bitmap(label string) ([]byte, error) {
	img := r.draw(label)

	var buf bytes.Buffer
	var err error
	switch r.format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode key image: %w", err)
	}

	return buf.Bytes(), nil
}

// Image draws label without encoding it.
func (r *Renderer) Image(label string) *image.RGBA {
	return r.draw(label)
}

func (r *Renderer) draw(label string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	if label == "" {
		return img
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(Foreground),
		Face: r.face,
	}
	m := r.face.Metrics()
	width := d.MeasureString(label)
	size := fixed.I(r.size)
	d.Dot = fixed.Point26_6{
		X: (size - width) / 2,
		Y: (size + m.Ascent - m.Descent) / 2,
	}
	d.DrawString(label)

	return img
}

// Render draws label for key k and sends it to the device.
func (r *Renderer) Render(k int, label string) error {
	if r.dev == nil {
		return nil
	}

	img, err := r.Bitmap(label)
	if err != nil {
		return err
	}
	if err := r.dev.SetKeyImage(k, img); err != nil {
		return fmt.Errorf("failed to set image for key %d: %w", k+1, err)
	}
	if s, ok := r.dev.(device.LabelSink); ok {
		s.SetKeyLabel(k, label)
	}

	return nil
}
