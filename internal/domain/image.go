package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Format identifies the raster codec of an encoded image.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatGIF  Format = "gif"
	FormatHEIC Format = "heic"
	FormatHEIF Format = "heif"
)

// MIME returns the media type for the format.
func (f Format) MIME() string {
	return "image/" + string(f)
}

// Extension returns a file extension suitable for archive entries and uploads.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case "":
		return "bin"
	default:
		return string(f)
	}
}

// Standard reports whether the rest of the pipeline can consume the format
// without going through the converter first.
func (f Format) Standard() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatWebP, FormatGIF:
		return true
	default:
		return false
	}
}

// FormatFromMIME maps a media type onto a Format. Unknown types map to "".
func FormatFromMIME(mime string) Format {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return FormatPNG
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/webp":
		return FormatWebP
	case "image/gif":
		return FormatGIF
	case "image/heic", "image/heic-sequence":
		return FormatHEIC
	case "image/heif", "image/heif-sequence":
		return FormatHEIF
	default:
		return ""
	}
}

// Image is an encoded raster plus the metadata every stage needs. Values are
// immutable once produced; stages return new Images instead of mutating.
type Image struct {
	Data   []byte
	Format Format
	Width  int
	Height int
}

// Size returns the encoded byte length.
func (i Image) Size() int {
	return len(i.Data)
}

// Pixels returns width*height.
func (i Image) Pixels() int {
	return i.Width * i.Height
}

// Clone returns a copy that does not share the underlying buffer.
func (i Image) Clone() Image {
	out := i
	out.Data = append([]byte(nil), i.Data...)
	return out
}

// DataURI renders the image as a self-describing data URI.
func (i Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.Format.MIME(), base64.StdEncoding.EncodeToString(i.Data))
}

// ParseDataURI decodes a base64 data URI. The declared media type only seeds
// Format; consumers sniff the bytes before trusting it.
func ParseDataURI(uri string) (Image, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Image{}, fmt.Errorf("%w: image is required", ErrInvalidImage)
	}
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: expected a data URI", ErrInvalidImage)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: data URI has no payload", ErrInvalidImage)
	}
	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return Image{}, fmt.Errorf("%w: data URI must be base64 encoded", ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	return Image{Data: data, Format: FormatFromMIME(strings.ToLower(params[0]))}, nil
}
