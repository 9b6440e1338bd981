package domain

import (
	"fmt"
	"math"
)

// Rect is a selection in source-image pixel coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PixelRect is a Rect rounded onto the integer pixel grid.
type PixelRect struct {
	X, Y, Width, Height int
}

// Validate checks the rect against the bounds of the image it will be applied to.
func (r Rect) Validate(imageWidth, imageHeight int) error {
	switch {
	case r.Width <= 0 || r.Height <= 0:
		return &InvalidRectError{Rect: r, Reason: "width and height must be positive"}
	case r.X < 0 || r.Y < 0:
		return &InvalidRectError{Rect: r, Reason: "x and y must be non-negative"}
	case r.X+r.Width > float64(imageWidth) || r.Y+r.Height > float64(imageHeight):
		return &InvalidRectError{Rect: r, Reason: fmt.Sprintf("extends beyond %dx%d image bounds", imageWidth, imageHeight)}
	}
	return nil
}

// Round snaps the rect onto integer pixels.
func (r Rect) Round() PixelRect {
	return PixelRect{
		X:      int(math.Round(r.X)),
		Y:      int(math.Round(r.Y)),
		Width:  int(math.Round(r.Width)),
		Height: int(math.Round(r.Height)),
	}
}

// Transform maps the rect through a uniform scale followed by a crop at
// (offsetX, offsetY), then clips it to a width x height canvas. Sub-pixel
// overshoot introduced by the scale is absorbed by the clip.
func (r Rect) Transform(scale, offsetX, offsetY float64, width, height int) (Rect, error) {
	x0 := r.X*scale - offsetX
	y0 := r.Y*scale - offsetY
	x1 := (r.X+r.Width)*scale - offsetX
	y1 := (r.Y+r.Height)*scale - offsetY

	x0 = math.Max(0, x0)
	y0 = math.Max(0, y0)
	x1 = math.Min(float64(width), x1)
	y1 = math.Min(float64(height), y1)
	if x1-x0 < 1 || y1-y0 < 1 {
		return Rect{}, &InvalidRectError{Rect: r, Reason: "selection falls outside the prepared image"}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, nil
}
