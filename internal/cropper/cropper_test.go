package cropper

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// bands is 2000×1000: red | green (500..1500) | blue with a black 20px dot in the middle.
func bands() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2000, 1000))
	for y := 0; y < 1000; y++ {
		for x := 0; x < 2000; x++ {
			c := green
			switch {
			case x < 500:
				c = red
			case x >= 1500:
				c = blue
			}
			if x >= 990 && x < 1010 && y >= 490 && y < 510 {
				c = black
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func near(t *testing.T, want color.RGBA, got color.Color, msg string) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	diff := func(a uint8, b uint32) int {
		d := int(a) - int(b>>8)
		if d < 0 {
			d = -d
		}
		return d
	}
	assert.LessOrEqual(t, diff(want.R, r)+diff(want.G, g)+diff(want.B, b), 30, "%s: got %v", msg, got)
}

func TestComputeSourceRect_CenteredAvatar(t *testing.T) {
	container := Size{W: 500, H: 500}
	natural := Size{W: 2000, H: 1000}
	crop := DefaultCrop(container, natural, Avatar)
	assert.Equal(t, Rect{X: 125, Y: 125, W: 250, H: 250}, crop)

	r := ComputeSourceRect(container, natural, Identity(), crop)
	assert.InDelta(t, 1000, r.CX, 1e-9)
	assert.InDelta(t, 500, r.CY, 1e-9)
	assert.InDelta(t, 1000, r.W, 1e-9)
	assert.InDelta(t, 1000, r.H, 1e-9)
}

func TestComputeSourceRect_PanZoomRotate(t *testing.T) {
	container := Size{W: 500, H: 500}
	natural := Size{W: 2000, H: 1000}
	crop := Rect{X: 125, Y: 125, W: 250, H: 250}

	r := ComputeSourceRect(container, natural, Transform{Zoom: 1, PanX: 50}, crop)
	assert.InDelta(t, 800, r.CX, 1e-9)

	r = ComputeSourceRect(container, natural, Transform{Zoom: 2}, crop)
	assert.InDelta(t, 500, r.W, 1e-9)
	assert.InDelta(t, 1000, r.CX, 1e-9)

	// crop shifted right of an image turned 90° clockwise lands above the centre in source space
	shifted := Rect{X: 225, Y: 125, W: 250, H: 250}
	r = ComputeSourceRect(container, natural, Transform{Zoom: 1, Rotation: 90}, shifted)
	assert.InDelta(t, 1000, r.CX, 1e-9)
	assert.InDelta(t, 100, r.CY, 1e-9)
	assert.Equal(t, 90.0, r.Rotation)
}

func TestDefaultCrop_Cover(t *testing.T) {
	crop := DefaultCrop(Size{W: 600, H: 600}, Size{W: 1000, H: 1000}, Cover)
	assert.InDelta(t, 600, crop.W, 1e-9)
	assert.InDelta(t, 200, crop.H, 1e-9)
	assert.InDelta(t, 200, crop.Y, 1e-9)
}

func TestPreview_CenteredSquareOfSource(t *testing.T) {
	src := bands()
	container := Size{W: 500, H: 500}
	crop := DefaultCrop(container, NaturalSize(src), Avatar)

	out := Preview(src, container, Identity(), crop, 400, 400)
	require.Equal(t, image.Rect(0, 0, 400, 400), out.Bounds())
	near(t, black, out.At(200, 200), "centre dot")
	for _, p := range []image.Point{{20, 20}, {380, 20}, {20, 380}, {380, 380}, {200, 40}, {100, 300}} {
		near(t, green, out.At(p.X, p.Y), p.String())
	}
}

func TestPreview_Rotated180(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 1000))
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			if x < 500 {
				src.SetRGBA(x, y, red)
			} else {
				src.SetRGBA(x, y, green)
			}
		}
	}
	container := Size{W: 500, H: 500}
	crop := Rect{W: 500, H: 500}
	out := Preview(src, container, Identity().Rotate(180), crop, 400, 400)
	near(t, green, out.At(50, 200), "left after turn")
	near(t, red, out.At(350, 200), "right after turn")
}

func TestPreviewAndExportAgree(t *testing.T) {
	src := bands()
	container := Size{W: 500, H: 500}
	tr := Identity().Drag(10, -5).Wheel(-200)
	crop := DefaultCrop(container, NaturalSize(src), Avatar)

	a := Preview(src, container, tr, crop, 400, 400)
	b := Preview(src, container, tr, crop, 400, 400)
	assert.Equal(t, a.Pix, b.Pix)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, src, container, tr, crop, Avatar))
	dec, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 400), dec.Bounds())
	near(t, color.RGBAModel.Convert(a.At(200, 200)).(color.RGBA), dec.At(200, 200), "centre")

	buf.Reset()
	require.NoError(t, Export(&buf, src, container, Identity(), DefaultCrop(container, NaturalSize(src), Cover), Cover))
	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
}

func TestTransformGestures(t *testing.T) {
	tr := Identity()
	assert.InDelta(t, 2.718281828, tr.Wheel(-1000).Zoom, 1e-6)
	assert.Equal(t, MaxZoom, tr.Wheel(-100000).Zoom)
	assert.Equal(t, MinZoom, tr.Pinch(0.1).Zoom)
	assert.InDelta(t, 1.5, tr.Pinch(1.5).Zoom, 1e-9)
	assert.Equal(t, 270.0, tr.Rotate(-90).Rotation)
	assert.Equal(t, Transform{PanX: 3, PanY: 4, Zoom: 1}, tr.Drag(1, 1).Drag(2, 3))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("cover")
	assert.True(t, ok)
	assert.Equal(t, Cover, k)
	_, ok = ParseKind("banner")
	assert.False(t, ok)
}
