package cropper

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register decoder
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp" // register decoder
)

// JPEGQuality is used by Export.
const JPEGQuality = 90

// Background fills output pixels outside the source.
var Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Decode reads a JPEG, PNG or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// NaturalSize returns the pixel size of img.
func NaturalSize(img image.Image) Size {
	b := img.Bounds()
	return Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

// Render draws the region r of src into a w×h canvas.
func Render(src image.Image, r SourceRect, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	if r.W <= 0 || r.H <= 0 || w <= 0 || h <= 0 {
		return dst
	}
	b := src.Bounds()
	cx, cy := r.CX+float64(b.Min.X), r.CY+float64(b.Min.Y)
	rad := r.Rotation * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	kx, ky := float64(w)/r.W, float64(h)/r.H

	// source to destination: scale(k) · rotate(θ) · translate(-c), then move to the canvas centre
	s2d := f64.Aff3{
		kx * cos, -kx * sin, float64(w)/2 - kx*(cos*cx-sin*cy),
		ky * sin, ky * cos, float64(h)/2 - ky*(sin*cx+cos*cy),
	}
	draw.CatmullRom.Transform(dst, s2d, src, b, draw.Over, nil)
	return dst
}

// Preview renders the crop at w×h.
func Preview(src image.Image, container Size, t Transform, crop Rect, w, h int) *image.RGBA {
	return Render(src, ComputeSourceRect(container, NaturalSize(src), t, crop), w, h)
}

// Export renders the crop at k's output size and writes it as JPEG.
func Export(dst io.Writer, src image.Image, container Size, t Transform, crop Rect, k Kind) error {
	w, h := k.Size()
	img := Preview(src, container, t, crop, w, h)
	if err := jpeg.Encode(dst, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return nil
}
