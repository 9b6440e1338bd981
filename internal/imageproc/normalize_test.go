package imageproc

import (
	"bytes"
	"errors"
	"image"
	"math/rand"
	"testing"

	"imagechain/internal/domain"
)

func TestPlanResizePicksMostRestrictiveBound(t *testing.T) {
	plan := planResize(4000, 3000, Constraints{MaxPixels: 9437184, MaxDimension: 2048})
	if !plan.resize {
		t.Fatalf("expected a resize")
	}
	if plan.width != 2048 || plan.height != 1536 {
		t.Fatalf("size = %dx%d, want 2048x1536", plan.width, plan.height)
	}
	if plan.width*plan.height > 9437184 {
		t.Fatalf("pixel budget exceeded: %d", plan.width*plan.height)
	}
	if plan.scale != 0.512 {
		t.Fatalf("scale = %v, want 0.512", plan.scale)
	}
}

func TestPlanResizePixelBoundWins(t *testing.T) {
	// 3000x3000 fits the 4000px dimension cap but not the pixel budget
	plan := planResize(3000, 3000, Constraints{MaxPixels: 4_000_000, MaxDimension: 4000})
	if !plan.resize {
		t.Fatalf("expected a resize")
	}
	if plan.width*plan.height > 4_000_000 {
		t.Fatalf("pixel budget exceeded: %dx%d", plan.width, plan.height)
	}
	if plan.width != plan.height {
		t.Fatalf("aspect ratio not preserved: %dx%d", plan.width, plan.height)
	}
}

func TestPlanResizeNeverUpscales(t *testing.T) {
	plan := planResize(100, 80, Constraints{MaxPixels: 9437184, MaxDimension: 2048})
	if plan.resize || plan.scale != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanCover(t *testing.T) {
	plan := planCover(300, 200, 100, 100)
	if plan.scale != 0.5 {
		t.Fatalf("scale = %v, want 0.5", plan.scale)
	}
	if plan.crop.Dx() != 200 || plan.crop.Dy() != 200 || plan.crop.Min.X != 50 {
		t.Fatalf("crop = %v", plan.crop)
	}
	if plan.offsetX != 25 || plan.offsetY != 0 {
		t.Fatalf("offset = (%v,%v), want (25,0)", plan.offsetX, plan.offsetY)
	}
}

func TestCompressStepsQualityDown(t *testing.T) {
	var tried []int
	enc := func(q int) ([]byte, domain.Format, error) {
		tried = append(tried, q)
		// size shrinks linearly with quality
		return make([]byte, q*1000), domain.FormatPNG, nil
	}
	data, q, _, err := Compress(enc, 62_000)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if q != 60 || len(data) != 60_000 {
		t.Fatalf("quality = %d size = %d, want 60 / 60000", q, len(data))
	}
	want := []int{85, 80, 75, 70, 65, 60}
	if len(tried) != len(want) {
		t.Fatalf("tried %v, want %v", tried, want)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Fatalf("tried %v, want %v", tried, want)
		}
	}
}

func TestCompressFailsAtFloor(t *testing.T) {
	var tried []int
	enc := func(q int) ([]byte, domain.Format, error) {
		tried = append(tried, q)
		return make([]byte, 5<<20), domain.FormatPNG, nil
	}
	_, _, _, err := Compress(enc, 4<<20)
	var budgetErr *domain.CompressionBudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected CompressionBudgetExceededError, got %v", err)
	}
	if budgetErr.Quality != QualityFloor {
		t.Fatalf("quality = %d, want %d", budgetErr.Quality, QualityFloor)
	}
	if tried[len(tried)-1] != QualityFloor || len(tried) != 14 {
		t.Fatalf("tried %v", tried)
	}
}

func TestNormalizePassThroughUnderBudget(t *testing.T) {
	src := encodePNG(t, gradient(120, 90))
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: 4 << 20, MaxDimension: 2048, MaxPixels: 9437184, MinDimension: 64, Format: domain.FormatPNG})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !bytes.Equal(out.Data, src.Data) {
		t.Fatalf("expected the input buffer to pass through untouched")
	}
	if out.Scale != 1 || out.Quality != 0 {
		t.Fatalf("scale=%v quality=%d", out.Scale, out.Quality)
	}
	if out.Width != 120 || out.Height != 90 {
		t.Fatalf("dims = %dx%d", out.Width, out.Height)
	}
}

func TestNormalizeResizesWithinBounds(t *testing.T) {
	src := encodeJPEG(t, gradient(400, 300))
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: 1 << 20, MaxDimension: 200, Format: domain.FormatPNG})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Width != 200 || out.Height != 150 {
		t.Fatalf("dims = %dx%d, want 200x150", out.Width, out.Height)
	}
	if out.Scale != 0.5 {
		t.Fatalf("scale = %v", out.Scale)
	}
	if out.Format != domain.FormatPNG || len(out.Data) > 1<<20 {
		t.Fatalf("format=%s bytes=%d", out.Format, len(out.Data))
	}
	img := decodeForTest(t, out.Data)
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 150 {
		t.Fatalf("decoded bounds %v", img.Bounds())
	}
}

func TestNormalizeExactCover(t *testing.T) {
	src := encodePNG(t, gradient(300, 200))
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: 4 << 20, ExactWidth: 128, ExactHeight: 128, Format: domain.FormatPNG})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Width != 128 || out.Height != 128 {
		t.Fatalf("dims = %dx%d", out.Width, out.Height)
	}
	if out.OffsetX <= 0 || out.OffsetY != 0 {
		t.Fatalf("offset = (%v,%v)", out.OffsetX, out.OffsetY)
	}
}

func TestNormalizeRejectsSmallImages(t *testing.T) {
	src := encodePNG(t, gradient(32, 200))
	n := NewNormalizer(discardLogger())
	_, err := n.Normalize(src, Constraints{MinDimension: 64})
	var dimErr *domain.DimensionTooSmallError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionTooSmallError, got %v", err)
	}
}

func TestNormalizeRejectsUndecodable(t *testing.T) {
	n := NewNormalizer(discardLogger())
	_, err := n.Normalize(domain.Image{Data: []byte("definitely not an image")}, Constraints{MaxBytes: 10})
	var decErr *domain.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestNormalizeCompressionBudgetExceeded(t *testing.T) {
	src := encodePNG(t, gradient(256, 256))
	n := NewNormalizer(discardLogger())
	_, err := n.Normalize(src, Constraints{MaxBytes: 64, Format: domain.FormatPNG})
	var budgetErr *domain.CompressionBudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected CompressionBudgetExceededError, got %v", err)
	}
}

func TestNormalizedImageMapRect(t *testing.T) {
	n := NormalizedImage{Image: domain.Image{Width: 1024, Height: 768}, Scale: 0.5}
	got, err := n.MapRect(domain.Rect{X: 100, Y: 100, Width: 200, Height: 150})
	if err != nil {
		t.Fatalf("map rect: %v", err)
	}
	if got != (domain.Rect{X: 50, Y: 50, Width: 100, Height: 75}) {
		t.Fatalf("got %+v", got)
	}
}

var uploadFormats = []domain.Format{domain.FormatPNG, domain.FormatJPEG, domain.FormatWebP}

func TestNormalizeKeepsAcceptedJPEGUnderBudget(t *testing.T) {
	// photo-like noise is the worst case for PNG re-encoding
	src := encodeJPEGQuality(t, noise(900, 700, 7), 60)
	budget := len(src.Data) + 1024
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: budget, MaxDimension: 2048, MaxPixels: 9437184, MinDimension: 64, Accept: uploadFormats})
	if err != nil {
		t.Fatalf("under-budget jpeg rejected: %v", err)
	}
	if !bytes.Equal(out.Data, src.Data) || out.Format != domain.FormatJPEG || out.Quality != 0 {
		t.Fatalf("expected passthrough, got %s %d bytes quality %d", out.Format, len(out.Data), out.Quality)
	}
}

func TestNormalizeResizedJPEGStaysJPEG(t *testing.T) {
	src := encodeJPEGQuality(t, noise(400, 300, 3), 90)
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: len(src.Data), MaxDimension: 200, Accept: uploadFormats})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Format != domain.FormatJPEG || out.Width != 200 || out.Height != 150 {
		t.Fatalf("out = %s %dx%d", out.Format, out.Width, out.Height)
	}
	if len(out.Data) > len(src.Data) {
		t.Fatalf("bytes = %d, budget %d", len(out.Data), len(src.Data))
	}
}

func TestNormalizeForcedFormatStillConverts(t *testing.T) {
	src := encodeJPEG(t, gradient(120, 90))
	n := NewNormalizer(discardLogger())
	out, err := n.Normalize(src, Constraints{MaxBytes: 4 << 20, Format: domain.FormatPNG, Accept: uploadFormats})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Format != domain.FormatPNG {
		t.Fatalf("format = %s, want png", out.Format)
	}
}

func TestNormalizeStopsWhenQualityHasNoEffect(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 256, 256))
	rng := rand.New(rand.NewSource(1))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(rng.Intn(256))
	}
	src := encodePNG(t, gray)
	n := NewNormalizer(discardLogger())
	_, err := n.Normalize(src, Constraints{MaxBytes: 64, Format: domain.FormatPNG})
	var budgetErr *domain.CompressionBudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected CompressionBudgetExceededError, got %v", err)
	}
	if budgetErr.Quality != DefaultQuality {
		t.Fatalf("quality = %d, want the single attempt at %d", budgetErr.Quality, DefaultQuality)
	}
}

func TestCompressStopsWhenExhausted(t *testing.T) {
	calls := 0
	enc := func(q int) ([]byte, domain.Format, error) {
		calls++
		if calls > 1 {
			return nil, "", errQualityExhausted
		}
		return make([]byte, 100), domain.FormatPNG, nil
	}
	_, _, _, err := Compress(enc, 10)
	var budgetErr *domain.CompressionBudgetExceededError
	if !errors.As(err, &budgetErr) || budgetErr.Size != 100 || budgetErr.Quality != DefaultQuality {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestPosterizeMasksLowBits(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Pix = []uint8{0xff, 0x81, 0x0f, 0x80, 0x13, 0x37, 0x42, 0xff}
	out := posterize(img, 80).(*image.NRGBA)
	want := []uint8{0xfe, 0x80, 0x0e, 0x80, 0x12, 0x36, 0x42, 0xff}
	if !bytes.Equal(out.Pix, want) {
		t.Fatalf("pix = %x, want %x", out.Pix, want)
	}
	if img.Pix[0] != 0xff {
		t.Fatal("source mutated")
	}
}

func TestFlattenCompositesOnWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Pix = []uint8{0, 0, 0, 0, 200, 100, 50, 0xff}
	out := flatten(img).(*image.RGBA)
	want := []uint8{0xff, 0xff, 0xff, 0xff, 200, 100, 50, 0xff}
	if !bytes.Equal(out.Pix, want) {
		t.Fatalf("pix = %v, want %v", out.Pix, want)
	}
}
