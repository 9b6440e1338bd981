// Package editor applies one transformation to one image: it prepares the
// input for the chosen provider, calls it and validates what comes back.
package editor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"imagechain/internal/domain"
	"imagechain/internal/imageproc"
	"imagechain/internal/infra"
	"imagechain/internal/providers/gemini"
	"imagechain/internal/providers/openai"
	"imagechain/internal/providers/stability"
)

// StabilityClient is the subset of the Stability client used here.
type StabilityClient interface {
	Inpaint(ctx context.Context, req stability.InpaintRequest) (*stability.Result, error)
	SearchAndReplace(ctx context.Context, req stability.SearchReplaceRequest) (*stability.Result, error)
	Outpaint(ctx context.Context, req stability.OutpaintRequest) (*stability.Result, error)
}

// OpenAIClient is the subset of the OpenAI client used here.
type OpenAIClient interface {
	Edit(ctx context.Context, req openai.EditRequest) ([]byte, error)
}

// GeminiClient is the subset of the Gemini client used here.
type GeminiClient interface {
	EditImage(ctx context.Context, instruction string, image []byte, mimeType string) (*gemini.Result, error)
}

// Options wires the service.
type Options struct {
	Stability       StabilityClient
	OpenAI          OpenAIClient
	Gemini          GeminiClient
	Normalizer      *imageproc.Normalizer
	Converter       *imageproc.Converter
	TransformModel  string
	InpaintModel    string
	InpaintProvider string
	ResultMaxBytes  int
	ProviderTimeout time.Duration
	Logger          *infra.Logger
}

// Service is stateless and safe for concurrent use.
type Service struct {
	stability       StabilityClient
	openai          OpenAIClient
	gemini          GeminiClient
	normalizer      *imageproc.Normalizer
	converter       *imageproc.Converter
	transformModel  string
	inpaintModel    string
	inpaintProvider string
	resultMaxBytes  int
	providerTimeout time.Duration
	logger          zerolog.Logger
}

func NewService(opts Options) *Service {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = imageproc.NewNormalizer(logger)
	}
	converter := opts.Converter
	if converter == nil {
		converter = imageproc.NewConverter(logger)
	}
	s := &Service{
		stability:       opts.Stability,
		openai:          opts.OpenAI,
		gemini:          opts.Gemini,
		normalizer:      normalizer,
		converter:       converter,
		transformModel:  opts.TransformModel,
		inpaintModel:    opts.InpaintModel,
		inpaintProvider: opts.InpaintProvider,
		resultMaxBytes:  opts.ResultMaxBytes,
		providerTimeout: opts.ProviderTimeout,
		logger:          logger.With().Str("component", "editor").Logger(),
	}
	if s.transformModel == "" {
		s.transformModel = "gpt-image-1"
	}
	if s.inpaintModel == "" {
		s.inpaintModel = "dall-e-2"
	}
	if s.inpaintProvider == "" {
		s.inpaintProvider = domain.InpaintStability
	}
	return s
}

// Convert runs the format converter on its own.
func (s *Service) Convert(img domain.Image) (domain.Image, error) {
	return s.converter.EnsureStandardFormat(img)
}

// Apply runs req against img and returns the validated result. img is never
// modified.
func (s *Service) Apply(ctx context.Context, img domain.Image, req domain.Request) (domain.Image, error) {
	src, err := s.converter.EnsureStandardFormat(img)
	if err != nil {
		return domain.Image{}, err
	}
	if s.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.providerTimeout)
		defer cancel()
	}

	log := s.logger.With().Str("kind", string(req.Kind())).Int("width", src.Width).Int("height", src.Height).Logger()
	log.Debug().Int("bytes", src.Size()).Msg("applying transformation")

	var out domain.Image
	switch r := req.(type) {
	case domain.TransformRequest:
		out, err = s.transform(ctx, src, r)
	case domain.MirrorRequest:
		out, err = imageproc.Mirror(src)
	case domain.InpaintRequest:
		out, err = s.inpaint(ctx, src, r)
	case domain.SearchReplaceRequest:
		out, err = s.searchAndReplace(ctx, src, r)
	case domain.OutpaintRequest:
		out, err = s.outpaint(ctx, src, r)
	case domain.EnhanceRequest:
		if r.Variant == domain.EnhanceLocal {
			out, err = imageproc.Enhance(src)
		} else {
			out, err = s.enhance(ctx, src)
		}
	default:
		err = &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unsupported transformation %T", req)}
	}
	if err != nil {
		log.Warn().Err(err).Msg("transformation failed")
		return domain.Image{}, err
	}
	log.Debug().Int("out_bytes", out.Size()).Int("out_width", out.Width).Int("out_height", out.Height).Msg("transformation complete")
	return out, nil
}

func (s *Service) transform(ctx context.Context, src domain.Image, r domain.TransformRequest) (domain.Image, error) {
	prompt := r.Prompt
	if prompt == "" {
		prompt = StylePrompt(r.Style)
	}
	if err := checkLength("prompt", prompt, maxTransformPrompt); err != nil {
		return domain.Image{}, err
	}
	if s.openai == nil {
		return domain.Image{}, openai.ErrMissingAPIKey
	}
	prepared, err := s.normalizer.Normalize(src, transformConstraints)
	if err != nil {
		return domain.Image{}, err
	}
	data, err := s.openai.Edit(ctx, openai.EditRequest{
		Model:       s.transformModel,
		Prompt:      prompt,
		Image:       prepared.Data,
		ImageFormat: prepared.Format,
	})
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("openai", data)
}

func (s *Service) inpaint(ctx context.Context, src domain.Image, r domain.InpaintRequest) (domain.Image, error) {
	provider := r.Provider
	if provider == "" {
		provider = s.inpaintProvider
	}
	limit := maxStabilityPrompt
	if provider == domain.InpaintOpenAI {
		limit = maxDallePrompt
	}
	if err := checkLength("prompt", r.Prompt, limit); err != nil {
		return domain.Image{}, err
	}
	// the selection is drawn on the image the caller sees
	if err := r.Rect.Validate(src.Width, src.Height); err != nil {
		return domain.Image{}, err
	}

	if provider == domain.InpaintOpenAI {
		return s.inpaintOpenAI(ctx, src, r)
	}
	if s.stability == nil {
		return domain.Image{}, stability.ErrMissingAPIKey
	}
	prepared, mask, err := s.prepareMasked(src, r.Rect, stabilityConstraints, imageproc.MaskGrayscale)
	if err != nil {
		return domain.Image{}, err
	}
	res, err := s.stability.Inpaint(ctx, stability.InpaintRequest{
		Image:       prepared.Data,
		ImageFormat: prepared.Format,
		Mask:        mask.Data,
		Prompt:      r.Prompt,
	})
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("stability", res.Data)
}

func (s *Service) inpaintOpenAI(ctx context.Context, src domain.Image, r domain.InpaintRequest) (domain.Image, error) {
	if s.openai == nil {
		return domain.Image{}, openai.ErrMissingAPIKey
	}
	prepared, mask, err := s.prepareMasked(src, r.Rect, dalleConstraints, imageproc.MaskAlpha)
	if err != nil {
		return domain.Image{}, err
	}
	data, err := s.openai.Edit(ctx, openai.EditRequest{
		Model:          s.inpaintModel,
		Prompt:         r.Prompt,
		Image:          prepared.Data,
		ImageFormat:    prepared.Format,
		Mask:           mask.Data,
		Size:           fmt.Sprintf("%dx%d", dalleSize, dalleSize),
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("openai", data)
}

// prepareMasked normalizes src and rasterizes rect in the normalized space,
// applying the same scale and crop the image went through.
func (s *Service) prepareMasked(src domain.Image, rect domain.Rect, c imageproc.Constraints, enc imageproc.MaskEncoding) (imageproc.NormalizedImage, domain.Image, error) {
	prepared, err := s.normalizer.Normalize(src, c)
	if err != nil {
		return imageproc.NormalizedImage{}, domain.Image{}, err
	}
	mapped, err := prepared.MapRect(rect)
	if err != nil {
		return imageproc.NormalizedImage{}, domain.Image{}, err
	}
	mask, err := imageproc.GenerateMask(prepared.Width, prepared.Height, mapped, enc)
	if err != nil {
		return imageproc.NormalizedImage{}, domain.Image{}, err
	}
	s.logger.Debug().
		Float64("scale", prepared.Scale).
		Float64("x", mapped.X).Float64("y", mapped.Y).
		Float64("w", mapped.Width).Float64("h", mapped.Height).
		Str("encoding", enc.String()).
		Msg("mask generated")
	return prepared, mask, nil
}

func (s *Service) searchAndReplace(ctx context.Context, src domain.Image, r domain.SearchReplaceRequest) (domain.Image, error) {
	if err := checkLength("prompt", r.Prompt, maxStabilityPrompt); err != nil {
		return domain.Image{}, err
	}
	if err := checkLength("searchPrompt", r.SearchPrompt, maxStabilityPrompt); err != nil {
		return domain.Image{}, err
	}
	if s.stability == nil {
		return domain.Image{}, stability.ErrMissingAPIKey
	}
	prepared, err := s.normalizer.Normalize(src, stabilityConstraints)
	if err != nil {
		return domain.Image{}, err
	}
	res, err := s.stability.SearchAndReplace(ctx, stability.SearchReplaceRequest{
		Image:        prepared.Data,
		ImageFormat:  prepared.Format,
		Prompt:       r.Prompt,
		SearchPrompt: r.SearchPrompt,
	})
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("stability", res.Data)
}

func (s *Service) outpaint(ctx context.Context, src domain.Image, r domain.OutpaintRequest) (domain.Image, error) {
	if err := checkLength("prompt", r.Prompt, maxOutpaintPrompt); err != nil {
		return domain.Image{}, err
	}
	if r.StylePreset != "" && !domain.IsStylePreset(r.StylePreset) {
		return domain.Image{}, &domain.ValidationError{Field: "style_preset", Message: "must be one of: " + strings.Join(domain.StylePresets, ", ")}
	}
	if s.stability == nil {
		return domain.Image{}, stability.ErrMissingAPIKey
	}
	prepared, err := s.normalizer.Normalize(src, stabilityConstraints)
	if err != nil {
		return domain.Image{}, err
	}
	res, err := s.stability.Outpaint(ctx, stability.OutpaintRequest{
		Image:       prepared.Data,
		ImageFormat: prepared.Format,
		Left:        r.Left,
		Down:        r.Down,
		Prompt:      r.Prompt,
		StylePreset: r.StylePreset,
	})
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("stability", res.Data)
}

func (s *Service) enhance(ctx context.Context, src domain.Image) (domain.Image, error) {
	if s.gemini == nil {
		return domain.Image{}, gemini.ErrMissingAPIKey
	}
	prepared, err := s.normalizer.Normalize(src, geminiConstraints)
	if err != nil {
		return domain.Image{}, err
	}
	res, err := s.gemini.EditImage(ctx, gemini.EnhanceInstruction, prepared.Data, prepared.Format.MIME())
	if err != nil {
		return domain.Image{}, err
	}
	return s.finish("gemini", res.Data)
}

// finish validates a provider payload and bounds its size.
func (s *Service) finish(provider string, data []byte) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, &domain.EmptyResultError{Provider: provider}
	}
	img, err := imageproc.Probe(data)
	if err != nil {
		return domain.Image{}, &domain.ProviderError{Provider: provider, Status: 200, Message: "result is not a decodable image", Err: err}
	}
	if s.resultMaxBytes <= 0 || img.Size() <= s.resultMaxBytes {
		return img, nil
	}
	s.logger.Debug().Str("provider", provider).Int("bytes", img.Size()).Int("max", s.resultMaxBytes).Msg("bounding provider result")
	bounded, err := s.normalizer.Normalize(img, imageproc.Constraints{MaxBytes: s.resultMaxBytes})
	if err != nil {
		return domain.Image{}, err
	}
	return bounded.Image, nil
}

func checkLength(field, value string, limit int) error {
	if n := utf8.RuneCountInString(value); n > limit {
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters, got %d", limit, n)}
	}
	return nil
}
