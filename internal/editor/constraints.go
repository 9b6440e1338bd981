package editor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"imagechain/internal/domain"
	"imagechain/internal/imageproc"
)

// Documented provider limits.
const (
	stabilityMaxBytes     = 4 << 20
	stabilityMinDimension = 64
	stabilityMaxDimension = 2048
	stabilityMaxPixels    = 9_437_184

	dalleMaxBytes = 4 << 20
	dalleSize     = 1024

	transformMaxBytes = 25 << 20
	geminiMaxBytes    = 7 << 20

	maxTransformPrompt = 32000
	maxStabilityPrompt = 1000
	maxDallePrompt     = 1000
	maxOutpaintPrompt  = 10000
)

var (
	// Stability and gpt-image-1 take png, jpeg and webp uploads as-is.
	uploadFormats = []domain.Format{domain.FormatPNG, domain.FormatJPEG, domain.FormatWebP}

	stabilityConstraints = imageproc.Constraints{
		MaxBytes:     stabilityMaxBytes,
		MinDimension: stabilityMinDimension,
		MaxDimension: stabilityMaxDimension,
		MaxPixels:    stabilityMaxPixels,
		Accept:       uploadFormats,
	}
	// dall-e-2 edits require a square PNG
	dalleConstraints = imageproc.Constraints{
		MaxBytes:    dalleMaxBytes,
		ExactWidth:  dalleSize,
		ExactHeight: dalleSize,
		Format:      domain.FormatPNG,
	}
	transformConstraints = imageproc.Constraints{
		MaxBytes: transformMaxBytes,
		Accept:   uploadFormats,
	}
	// the AI enhance call always receives canonical PNG
	geminiConstraints = imageproc.Constraints{
		MaxBytes: geminiMaxBytes,
		Format:   domain.FormatPNG,
	}
)

// StylePrompt turns a style name into an edit instruction.
func StylePrompt(style string) string {
	style = strings.Join(strings.Fields(style), " ")
	// Casers carry state, so one is built per call.
	return "Convert this image to " + cases.Title(language.English).String(style) + " style"
}
