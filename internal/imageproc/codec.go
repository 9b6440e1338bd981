// Package imageproc holds the local image stages: probing, normalization,
// mask rasterization, format conversion and the pixel filters that do not
// need a provider.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"imagechain/internal/domain"
)

const (
	// DefaultQuality is the first quality the compression loop tries.
	DefaultQuality = 85
	// QualityStep is subtracted after every over-budget encode.
	QualityStep = 5
	// QualityFloor is the lowest quality tried before giving up.
	QualityFloor = 20
)

// Sniff returns the format detected from the content, ignoring any declared type.
func Sniff(data []byte) (domain.Format, string) {
	mt := mimetype.Detect(data)
	return domain.FormatFromMIME(mt.String()), mt.String()
}

// Probe reads the header of a standard raster and returns an Image with its
// format and dimensions filled in. The buffer is not copied.
func Probe(data []byte) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, &domain.DecodeError{Err: fmt.Errorf("empty buffer")}
	}
	format, _ := Sniff(data)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, &domain.DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.Image{}, &domain.DecodeError{Err: fmt.Errorf("reported dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	return domain.Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode fully decodes a standard raster.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	return img, nil
}

// Encode writes img in the requested format. Quality in [1,100] drives JPEG
// directly; for PNG it selects how many low bits per channel are dropped so
// lower qualities compress further. WebP has no encoder here and is written
// as PNG; the returned format is the one actually produced.
func Encode(img image.Image, format domain.Format, quality int) ([]byte, domain.Format, error) {
	quality = clampQuality(quality)
	var buf bytes.Buffer
	switch format {
	case domain.FormatJPEG:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), domain.FormatJPEG, nil
	case domain.FormatGIF:
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, "", fmt.Errorf("encode gif: %w", err)
		}
		return buf.Bytes(), domain.FormatGIF, nil
	default:
		if err := png.Encode(&buf, posterize(img, quality)); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), domain.FormatPNG, nil
	}
}

// encodeLevel is the encoder setting quality q resolves to for img in format.
// Qualities sharing a level encode to identical bytes.
func encodeLevel(img image.Image, format domain.Format, q int) int {
	switch format {
	case domain.FormatJPEG:
		return clampQuality(q)
	case domain.FormatGIF:
		return 0
	}
	if !posterizable(img) {
		return 0
	}
	return int(pngShift(clampQuality(q)))
}

// prepareForEncode converts img once into the layout Encode works on, so
// repeated encodes at different qualities skip the conversion.
func prepareForEncode(img image.Image, format domain.Format) image.Image {
	switch format {
	case domain.FormatJPEG:
		return flatten(img)
	case domain.FormatGIF:
		return img
	}
	if !posterizable(img) {
		return img
	}
	return toNRGBA(img)
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return DefaultQuality
	case q > 100:
		return 100
	}
	return q
}

// pngShift maps a quality onto the number of low bits dropped per channel.
func pngShift(quality int) uint {
	if quality >= 100 {
		return 0
	}
	shift := (100 - quality + 19) / 20
	if shift > 5 {
		shift = 5
	}
	return uint(shift)
}

func posterizable(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Paletted:
		return false
	}
	return true
}

func posterize(img image.Image, quality int) image.Image {
	shift := pngShift(quality)
	if shift == 0 || !posterizable(img) {
		return img
	}
	src := toNRGBA(img)
	out := image.NewNRGBA(src.Rect)
	mask := uint8(0xff << shift)
	rowBytes := src.Rect.Dx() * 4
	for y := 0; y < src.Rect.Dy(); y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+rowBytes]
		d := out.Pix[y*out.Stride : y*out.Stride+rowBytes]
		for i := 0; i < rowBytes; i += 4 {
			d[i] = s[i] & mask
			d[i+1] = s[i+1] & mask
			d[i+2] = s[i+2] & mask
			d[i+3] = s[i+3]
		}
	}
	return out
}

// flatten composites transparent pixels onto white, as JPEG has no alpha.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	src := toNRGBA(img)
	out := image.NewRGBA(src.Rect)
	rowBytes := src.Rect.Dx() * 4
	for y := 0; y < src.Rect.Dy(); y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+rowBytes]
		d := out.Pix[y*out.Stride : y*out.Stride+rowBytes]
		for i := 0; i < rowBytes; i += 4 {
			a := uint32(s[i+3])
			inv := 255 - a
			d[i] = uint8((uint32(s[i])*a + 255*inv + 127) / 255)
			d[i+1] = uint8((uint32(s[i+1])*a + 255*inv + 127) / 255)
			d[i+2] = uint8((uint32(s[i+2])*a + 255*inv + 127) / 255)
			d[i+3] = 0xff
		}
	}
	return out
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
