package imageproc

import (
	"image"
	"image/color"
	"image/draw"

	"imagechain/internal/domain"
)

// MaskEncoding selects how the editable region is expressed.
type MaskEncoding int

const (
	// MaskGrayscale is a single channel: 255 editable, 0 fixed.
	MaskGrayscale MaskEncoding = iota
	// MaskAlpha is RGBA: opaque black fixed, fully transparent editable hole.
	MaskAlpha
)

func (e MaskEncoding) String() string {
	if e == MaskAlpha {
		return "alpha"
	}
	return "grayscale"
}

// GenerateMask rasterizes rect onto a width x height PNG mask. The rect must
// already be in the coordinate space of the image the mask accompanies.
func GenerateMask(width, height int, rect domain.Rect, encoding MaskEncoding) (domain.Image, error) {
	if err := rect.Validate(width, height); err != nil {
		return domain.Image{}, err
	}
	pr := rect.Round()
	canvas := image.Rect(0, 0, width, height)
	hole := image.Rect(pr.X, pr.Y, pr.X+pr.Width, pr.Y+pr.Height).Intersect(canvas)
	if hole.Empty() {
		return domain.Image{}, &domain.InvalidRectError{Rect: rect, Reason: "rounds to an empty pixel region"}
	}

	var m image.Image
	switch encoding {
	case MaskAlpha:
		rgba := image.NewNRGBA(canvas)
		draw.Draw(rgba, canvas, image.NewUniform(color.NRGBA{A: 0xff}), image.Point{}, draw.Src)
		draw.Draw(rgba, hole, image.Transparent, image.Point{}, draw.Src)
		m = rgba
	default:
		gray := image.NewGray(canvas)
		draw.Draw(gray, hole, image.White, image.Point{}, draw.Src)
		m = gray
	}

	data, format, err := Encode(m, domain.FormatPNG, 100)
	if err != nil {
		return domain.Image{}, err
	}
	return domain.Image{Data: data, Format: format, Width: width, Height: height}, nil
}
