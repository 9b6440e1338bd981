package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"imagechain/internal/domain"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// gradient returns a w x h image whose pixels differ across both axes.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / max(1, w-1)), G: uint8(y * 255 / max(1, h-1)), B: uint8((x + y) % 256), A: 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) domain.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	b := img.Bounds()
	return domain.Image{Data: buf.Bytes(), Format: domain.FormatPNG, Width: b.Dx(), Height: b.Dy()}
}

// noise returns a w x h image of seeded random pixels.
func noise(w, h int, seed int64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) domain.Image {
	t.Helper()
	return encodeJPEGQuality(t, img, 95)
}

func encodeJPEGQuality(t *testing.T, img image.Image, quality int) domain.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	b := img.Bounds()
	return domain.Image{Data: buf.Bytes(), Format: domain.FormatJPEG, Width: b.Dx(), Height: b.Dy()}
}

func decodeForTest(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}
