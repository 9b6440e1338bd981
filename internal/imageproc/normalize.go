package imageproc

import (
	"errors"
	"image"
	"math"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"imagechain/internal/domain"
	"imagechain/internal/metrics"
)

// Constraints describe what a provider accepts. Zero values disable a bound.
type Constraints struct {
	MaxBytes     int
	MaxDimension int
	MaxPixels    int
	MinDimension int
	// Format forces the output codec. Empty keeps JPEG sources as JPEG and
	// writes everything else as PNG.
	Format domain.Format
	// Accept lists the codecs sent upstream untouched when no resize or
	// recompression is needed. Empty accepts JPEG and PNG. Ignored when
	// Format is set.
	Accept []domain.Format
	// ExactWidth and ExactHeight, when both set, produce exactly that size by
	// scaling to cover and cropping the centre.
	ExactWidth  int
	ExactHeight int
}

func (c Constraints) exact() bool {
	return c.ExactWidth > 0 && c.ExactHeight > 0
}

func (c Constraints) accepts(f domain.Format) bool {
	if c.Format != "" {
		return f == c.Format
	}
	if len(c.Accept) == 0 {
		return f == domain.FormatJPEG || f == domain.FormatPNG
	}
	return slices.Contains(c.Accept, f)
}

// NormalizedImage is the normalizer output. Scale and the offsets describe
// how source coordinates map onto the output: out = src*Scale - Offset.
type NormalizedImage struct {
	domain.Image
	Scale   float64
	OffsetX float64
	OffsetY float64
	// Quality is the encoder quality used, 0 when the input passed through.
	Quality int
}

// MapRect carries a source-space rect into the normalized image.
func (n NormalizedImage) MapRect(r domain.Rect) (domain.Rect, error) {
	return r.Transform(n.Scale, n.OffsetX, n.OffsetY, n.Width, n.Height)
}

// Normalizer brings images inside provider constraints.
type Normalizer struct {
	logger zerolog.Logger
}

func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With().Str("component", "normalizer").Logger()}
}

// Normalize validates img against c, resizes it when a pixel or dimension
// bound is exceeded and compresses it under MaxBytes.
func (n *Normalizer) Normalize(img domain.Image, c Constraints) (NormalizedImage, error) {
	probed, err := Probe(img.Data)
	if err != nil {
		metrics.RecordNormalize("error", 0)
		return NormalizedImage{}, err
	}
	w, h := probed.Width, probed.Height

	if c.MinDimension > 0 && (w < c.MinDimension || h < c.MinDimension) {
		metrics.RecordNormalize("error", 0)
		return NormalizedImage{}, &domain.DimensionTooSmallError{Width: w, Height: h, Min: c.MinDimension}
	}

	target := outputFormat(probed.Format, c.Format)
	plan := planResize(w, h, c)

	needsEncode := plan.resize || !c.accepts(probed.Format) || (c.MaxBytes > 0 && len(img.Data) > c.MaxBytes)
	if !needsEncode {
		metrics.RecordNormalize("passthrough", 0)
		return NormalizedImage{Image: probed, Scale: 1}, nil
	}

	src, err := Decode(img.Data)
	if err != nil {
		metrics.RecordNormalize("error", 0)
		return NormalizedImage{}, err
	}
	if plan.resize {
		n.logger.Debug().
			Int("from_w", w).Int("from_h", h).
			Int("to_w", plan.width).Int("to_h", plan.height).
			Float64("scale", plan.scale).
			Msg("resizing image")
		src = resample(src, plan)
	}

	src = prepareForEncode(src, target)
	varies := encodeLevel(src, target, DefaultQuality) != encodeLevel(src, target, QualityFloor)
	var (
		lastLevel  = -1
		lastData   []byte
		lastFormat domain.Format
	)
	data, quality, produced, err := Compress(func(q int) ([]byte, domain.Format, error) {
		level := encodeLevel(src, target, q)
		if level == lastLevel {
			if !varies {
				return nil, "", errQualityExhausted
			}
			return lastData, lastFormat, nil
		}
		out, f, err := Encode(src, target, q)
		if err != nil {
			return nil, "", err
		}
		lastLevel, lastData, lastFormat = level, out, f
		return out, f, nil
	}, c.MaxBytes)
	if err != nil {
		n.logger.Warn().Err(err).Int("max_bytes", c.MaxBytes).Msg("compression budget exceeded")
		metrics.RecordNormalize("error", 0)
		return NormalizedImage{}, err
	}
	n.logger.Debug().Int("bytes", len(data)).Int("quality", quality).Str("format", string(produced)).Msg("image normalized")
	metrics.RecordNormalize("encoded", quality)

	b := src.Bounds()
	return NormalizedImage{
		Image:   domain.Image{Data: data, Format: produced, Width: b.Dx(), Height: b.Dy()},
		Scale:   plan.scale,
		OffsetX: plan.offsetX,
		OffsetY: plan.offsetY,
		Quality: quality,
	}, nil
}

// errQualityExhausted tells Compress that no lower quality changes the output.
var errQualityExhausted = errors.New("imageproc: quality has no further effect")

// Compress encodes from the same pixels at descending qualities until the
// result fits maxBytes. Each attempt starts from the decoded source, never
// from a previous attempt. maxBytes <= 0 accepts the first encode.
func Compress(encode func(quality int) ([]byte, domain.Format, error), maxBytes int) ([]byte, int, domain.Format, error) {
	var lastSize, lastQuality int
	for q := DefaultQuality; q >= QualityFloor; q -= QualityStep {
		data, format, err := encode(q)
		if errors.Is(err, errQualityExhausted) {
			break
		}
		if err != nil {
			return nil, 0, "", err
		}
		if maxBytes <= 0 || len(data) <= maxBytes {
			return data, q, format, nil
		}
		lastSize, lastQuality = len(data), q
	}
	return nil, 0, "", &domain.CompressionBudgetExceededError{MaxBytes: maxBytes, Size: lastSize, Quality: lastQuality}
}

func outputFormat(source, forced domain.Format) domain.Format {
	if forced != "" {
		if forced == domain.FormatWebP {
			return domain.FormatPNG
		}
		return forced
	}
	if source == domain.FormatJPEG {
		return domain.FormatJPEG
	}
	return domain.FormatPNG
}

type resizePlan struct {
	resize           bool
	scale            float64
	width, height    int
	crop             image.Rectangle
	offsetX, offsetY float64
}

func planResize(w, h int, c Constraints) resizePlan {
	if c.exact() {
		return planCover(w, h, c.ExactWidth, c.ExactHeight)
	}

	scale := 1.0
	if c.MaxPixels > 0 {
		scale = math.Min(scale, math.Sqrt(float64(c.MaxPixels)/float64(w*h)))
	}
	if c.MaxDimension > 0 {
		scale = math.Min(scale, float64(c.MaxDimension)/float64(w))
		scale = math.Min(scale, float64(c.MaxDimension)/float64(h))
	}
	if scale >= 1 {
		return resizePlan{scale: 1, width: w, height: h, crop: image.Rect(0, 0, w, h)}
	}

	tw := max(1, int(math.Floor(float64(w)*scale+0.5)))
	th := max(1, int(math.Floor(float64(h)*scale+0.5)))
	if c.MaxDimension > 0 {
		tw = min(tw, c.MaxDimension)
		th = min(th, c.MaxDimension)
	}
	for c.MaxPixels > 0 && tw*th > c.MaxPixels {
		if tw >= th {
			tw--
		} else {
			th--
		}
	}
	return resizePlan{resize: true, scale: scale, width: tw, height: th, crop: image.Rect(0, 0, w, h)}
}

// planCover scales to cover tw x th and crops the centre.
func planCover(w, h, tw, th int) resizePlan {
	scale := math.Max(float64(tw)/float64(w), float64(th)/float64(h))
	cropW := min(w, int(math.Round(float64(tw)/scale)))
	cropH := min(h, int(math.Round(float64(th)/scale)))
	x0 := (w - cropW) / 2
	y0 := (h - cropH) / 2
	return resizePlan{
		resize:  w != tw || h != th,
		scale:   scale,
		width:   tw,
		height:  th,
		crop:    image.Rect(x0, y0, x0+cropW, y0+cropH),
		offsetX: float64(x0) * scale,
		offsetY: float64(y0) * scale,
	}
}

func resample(src image.Image, plan resizePlan) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, plan.width, plan.height))
	crop := plan.crop.Add(src.Bounds().Min)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
