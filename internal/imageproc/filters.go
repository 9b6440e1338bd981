package imageproc

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"imagechain/internal/domain"
)

const (
	// EnhanceQuality is the output quality of the local enhance filter.
	EnhanceQuality = 80
	enhanceSharpen = 1.0
	// fraction of pixels clipped at each end of the luminance histogram
	enhanceClip = 0.01
)

// Mirror flips the image horizontally and writes it as lossless PNG, so
// mirroring twice returns the original pixels.
func Mirror(img domain.Image) (domain.Image, error) {
	src, err := Decode(img.Data)
	if err != nil {
		return domain.Image{}, err
	}
	flipped := imaging.FlipH(src)
	data, format, err := Encode(flipped, domain.FormatPNG, 100)
	if err != nil {
		return domain.Image{}, err
	}
	b := flipped.Bounds()
	return domain.Image{Data: data, Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// Enhance stretches contrast to the 1st..99th luminance percentile, applies a
// sharpen pass and re-encodes as JPEG.
func Enhance(img domain.Image) (domain.Image, error) {
	src, err := Decode(img.Data)
	if err != nil {
		return domain.Image{}, err
	}
	lo, hi := luminanceRange(src, enhanceClip)
	var stretched *image.NRGBA
	if hi <= lo {
		stretched = imaging.Clone(src)
	} else {
		scale := 255.0 / float64(hi-lo)
		stretched = imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: stretch(c.R, lo, scale),
				G: stretch(c.G, lo, scale),
				B: stretch(c.B, lo, scale),
				A: c.A,
			}
		})
	}
	sharpened := imaging.Sharpen(stretched, enhanceSharpen)
	data, format, err := Encode(sharpened, domain.FormatJPEG, EnhanceQuality)
	if err != nil {
		return domain.Image{}, err
	}
	b := sharpened.Bounds()
	return domain.Image{Data: data, Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

func stretch(v uint8, lo uint8, scale float64) uint8 {
	f := (float64(v) - float64(lo)) * scale
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f + 0.5)
}

// luminanceRange returns the luminance values below which and above which
// clip of the pixels fall.
func luminanceRange(img image.Image, clip float64) (uint8, uint8) {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y]++
		}
	}
	total := b.Dx() * b.Dy()
	cut := int(float64(total) * clip)

	lo, acc := 0, 0
	for ; lo < 255; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}
	hi := 255
	acc = 0
	for ; hi > 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}
	return uint8(lo), uint8(hi)
}
