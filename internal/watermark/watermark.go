// Package watermark stamps the studio mark onto generated images.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var ErrDecode = errors.New("watermark: failed to decode image")

const (
	margin      = 20
	minFontSize = 18.0
	shadowSigma = 2.5
)

var (
	fill   = color.NRGBA{R: 255, G: 255, B: 255, A: 153}
	shadow = color.NRGBA{R: 0, G: 0, B: 0, A: 178}
)

var parseFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// Apply draws text in the bottom-right corner of the encoded image in data
// and returns the re-encoded bytes with their MIME type. JPEG input stays
// JPEG; every other format is written as PNG.
func Apply(data []byte, text string) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out, err := Draw(src, text)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	encFormat, mimeType := imaging.PNG, "image/png"
	if format == "jpeg" {
		encFormat, mimeType = imaging.JPEG, "image/jpeg"
	}
	if err := imaging.Encode(&buf, out, encFormat, imaging.JPEGQuality(95)); err != nil {
		return nil, "", fmt.Errorf("watermark: encode: %w", err)
	}
	return buf.Bytes(), mimeType, nil
}

// Draw returns a copy of src with text stamped on it.
func Draw(src image.Image, text string) (*image.NRGBA, error) {
	f, err := parseFont()
	if err != nil {
		return nil, fmt.Errorf("watermark: parse font: %w", err)
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	size := math.Max(minFontSize, float64(min(w, h))/40)
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("watermark: face: %w", err)
	}
	defer face.Close()

	advance := font.MeasureString(face, text)
	descent := face.Metrics().Descent
	dot := fixed.Point26_6{
		X: fixed.I(w-margin) - advance,
		Y: fixed.I(h-margin) - descent,
	}

	canvas := imaging.Clone(src)

	layer := image.NewNRGBA(canvas.Bounds())
	drawText(layer, face, shadow, dot, text)
	layer = imaging.Blur(layer, shadowSigma)
	canvas = imaging.Overlay(canvas, layer, image.Pt(0, 0), 1.0)

	drawText(canvas, face, fill, dot, text)
	return canvas, nil
}

func drawText(dst *image.NRGBA, face font.Face, c color.Color, dot fixed.Point26_6, text string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  dot,
	}
	d.DrawString(text)
}
