package imageproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/jdeng/goheif"
	"github.com/rs/zerolog"

	"imagechain/internal/domain"
)

// ConvertQuality is the JPEG quality used for converted camera formats.
const ConvertQuality = 90

// Converter turns legacy camera containers into the pipeline's standard codec.
type Converter struct {
	logger zerolog.Logger
	decode func([]byte) (image.Image, error)
}

func NewConverter(logger zerolog.Logger) *Converter {
	return &Converter{
		logger: logger.With().Str("component", "converter").Logger(),
		decode: decodeHEIF,
	}
}

// EnsureStandardFormat sniffs the content and returns standard rasters
// untouched. HEIC/HEIF input is decoded and re-encoded as JPEG.
func (c *Converter) EnsureStandardFormat(img domain.Image) (domain.Image, error) {
	format, mime := Sniff(img.Data)
	switch {
	case format.Standard():
		probed, err := Probe(img.Data)
		if err != nil {
			return domain.Image{}, &domain.UnsupportedFormatError{MIME: mime, Err: err}
		}
		return probed, nil
	case format == domain.FormatHEIC || format == domain.FormatHEIF:
	default:
		return domain.Image{}, &domain.UnsupportedFormatError{MIME: mime}
	}

	c.logger.Debug().Str("mime", mime).Int("bytes", len(img.Data)).Msg("converting camera format")
	decoded, err := c.decode(img.Data)
	if err != nil {
		return domain.Image{}, &domain.UnsupportedFormatError{MIME: mime, Err: err}
	}
	data, produced, err := Encode(decoded, domain.FormatJPEG, ConvertQuality)
	if err != nil {
		return domain.Image{}, err
	}
	b := decoded.Bounds()
	c.logger.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Int("bytes", len(data)).Msg("converted to jpeg")
	return domain.Image{Data: data, Format: produced, Width: b.Dx(), Height: b.Dy()}, nil
}

func decodeHEIF(data []byte) (img image.Image, err error) {
	// the decoder panics on some truncated containers
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heif decode: %v", r)
		}
	}()
	return goheif.Decode(bytes.NewReader(data))
}
