package cropper

import "math"

// Zoom limits.
const (
	MinZoom = 1.0
	MaxZoom = 3.0
)

// wheelStep is the zoom change per wheel delta unit.
const wheelStep = 0.001

// Transform is the user's adjustment of the image inside the container.
// Desktop (drag, wheel) and touch (drag, pinch) gestures update the same value.
type Transform struct {
	PanX, PanY float64
	Zoom       float64
	// Rotation in degrees, clockwise.
	Rotation float64
}

// Identity is the untouched image.
func Identity() Transform { return Transform{Zoom: 1} }

func (t Transform) normalized() Transform {
	if t.Zoom == 0 {
		t.Zoom = 1
	}
	t.Zoom = math.Min(MaxZoom, math.Max(MinZoom, t.Zoom))
	t.Rotation = math.Mod(t.Rotation, 360)
	if t.Rotation < 0 {
		t.Rotation += 360
	}
	return t
}

// Drag pans by a pointer or touch movement in container pixels.
func (t Transform) Drag(dx, dy float64) Transform {
	t.PanX += dx
	t.PanY += dy
	return t.normalized()
}

// Wheel zooms by a mouse wheel delta; negative deltas zoom in.
func (t Transform) Wheel(delta float64) Transform {
	t = t.normalized()
	t.Zoom *= math.Exp(-delta * wheelStep)
	return t.normalized()
}

// Pinch zooms by the ratio of the current to the initial finger distance.
func (t Transform) Pinch(ratio float64) Transform {
	if ratio <= 0 {
		return t.normalized()
	}
	t = t.normalized()
	t.Zoom *= ratio
	return t.normalized()
}

// Rotate turns the image by deg degrees.
func (t Transform) Rotate(deg float64) Transform {
	t.Rotation += deg
	return t.normalized()
}
