// Package cropper maps a user's pan/zoom/rotate of an image inside a
// container back to source pixels and renders the selected region.
package cropper

import "math"

// Size is a width and height in pixels.
type Size struct {
	W, H float64
}

// Rect is an axis-aligned rectangle in container pixels.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of r.
func (r Rect) Center() (float64, float64) { return r.X + r.W/2, r.Y + r.H/2 }

// SourceRect is the cropped region in source pixels: a rectangle centred on
// (CX, CY), rotated by Rotation degrees relative to the source axes.
type SourceRect struct {
	CX, CY   float64
	W, H     float64
	Rotation float64
}

// Kind selects the output format.
type Kind int

const (
	Avatar Kind = iota
	Cover
)

// Size returns the output dimensions of k.
func (k Kind) Size() (int, int) {
	if k == Cover {
		return 1200, 400
	}
	return 400, 400
}

func (k Kind) String() string {
	if k == Cover {
		return "cover"
	}
	return "avatar"
}

// ParseKind accepts "avatar" or "cover".
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "avatar":
		return Avatar, true
	case "cover":
		return Cover, true
	}
	return Avatar, false
}

// containScale is the object-fit "contain" factor of natural inside container.
func containScale(container, natural Size) float64 {
	if natural.W <= 0 || natural.H <= 0 {
		return 0
	}
	return math.Min(container.W/natural.W, container.H/natural.H)
}

// ComputeSourceRect inverts object-fit "contain" and then t to find which
// source pixels lie under crop. Preview and export both go through here.
func ComputeSourceRect(container, natural Size, t Transform, crop Rect) SourceRect {
	t = t.normalized()
	scale := containScale(container, natural) * t.Zoom
	if scale <= 0 {
		return SourceRect{}
	}
	// image centre in container space after panning
	ix, iy := container.W/2+t.PanX, container.H/2+t.PanY
	cx, cy := crop.Center()
	dx, dy := cx-ix, cy-iy

	rad := -t.Rotation * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	lx := (dx*cos - dy*sin) / scale
	ly := (dx*sin + dy*cos) / scale

	return SourceRect{
		CX:       natural.W/2 + lx,
		CY:       natural.H/2 + ly,
		W:        crop.W / scale,
		H:        crop.H / scale,
		Rotation: t.Rotation,
	}
}

// DefaultCrop centres the largest rectangle of k's aspect ratio inside the
// displayed (contained) image.
func DefaultCrop(container, natural Size, k Kind) Rect {
	s := containScale(container, natural)
	dw, dh := natural.W*s, natural.H*s
	ow, oh := k.Size()
	aspect := float64(ow) / float64(oh)
	w, h := dw, dw/aspect
	if h > dh {
		h, w = dh, dh*aspect
	}
	return Rect{X: (container.W - w) / 2, Y: (container.H - h) / 2, W: w, H: h}
}
