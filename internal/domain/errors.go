package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrTransformationInFlight = errors.New("a transformation is already in flight for this session")
	ErrProviderNotConfigured  = errors.New("provider not configured")
	ErrInvalidIndex           = errors.New("invalid history index")
	ErrInvalidImage           = errors.New("invalid image payload")
)

// DecodeError means the image dimensions could not be determined.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode image: dimensions unavailable"
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DimensionTooSmallError reports an axis below the provider minimum.
type DimensionTooSmallError struct {
	Width, Height, Min int
}

func (e *DimensionTooSmallError) Error() string {
	return fmt.Sprintf("image %dx%d is below the minimum dimension of %dpx", e.Width, e.Height, e.Min)
}

// CompressionBudgetExceededError is returned when the quality floor still
// produces a buffer larger than the budget.
type CompressionBudgetExceededError struct {
	MaxBytes int
	Size     int
	Quality  int
}

func (e *CompressionBudgetExceededError) Error() string {
	return fmt.Sprintf("image is %d bytes at quality %d, budget is %d bytes", e.Size, e.Quality, e.MaxBytes)
}

type InvalidRectError struct {
	Rect   Rect
	Reason string
}

func (e *InvalidRectError) Error() string {
	return fmt.Sprintf("invalid rect {x:%g y:%g w:%g h:%g}: %s", e.Rect.X, e.Rect.Y, e.Rect.Width, e.Rect.Height, e.Reason)
}

// RequirementError names the field a transformation type needs but did not get.
type RequirementError struct {
	Kind  Kind
	Field string
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Kind, e.Field)
}

// ValidationError covers the remaining client-side input problems
// (prompt too long, unknown preset, bad offsets).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type UnsupportedFormatError struct {
	MIME string
	Err  error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported image format %q: %v", e.MIME, e.Err)
	}
	return fmt.Sprintf("unsupported image format %q", e.MIME)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// ProviderError is a failed upstream call. Status is 0 for transport failures.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmptyResultError is returned when a provider answered successfully without an image.
type EmptyResultError struct {
	Provider string
	Detail   string
}

func (e *EmptyResultError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s returned no image", e.Provider)
	}
	return fmt.Sprintf("%s returned no image: %s", e.Provider, e.Detail)
}

// IsClientError reports whether err is an input problem that should never be retried.
func IsClientError(err error) bool {
	var (
		rectErr   *InvalidRectError
		reqErr    *RequirementError
		valErr    *ValidationError
		formatErr *UnsupportedFormatError
	)
	switch {
	case errors.As(err, &rectErr), errors.As(err, &reqErr), errors.As(err, &valErr), errors.As(err, &formatErr):
		return true
	case errors.Is(err, ErrInvalidIndex), errors.Is(err, ErrInvalidImage):
		return true
	}
	return false
}

// HTTPStatus maps an error onto the status code reported at the API boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransformationInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
