// Package gemini wraps the Gemini image generation model used for AI enhance.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"imagechain/internal/domain"
	"imagechain/internal/infra"
	"imagechain/internal/metrics"
)

const (
	providerName = "gemini"
	// DefaultModel is the image-capable Gemini model.
	DefaultModel = "gemini-2.0-flash-preview-image-generation"
	// EnhanceInstruction is the fixed instruction sent with every enhance call.
	EnhanceInstruction = "Enhance this image for vibrant colors and sharpness"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = fmt.Errorf("gemini: api key is required: %w", domain.ErrProviderNotConfigured)

// Options configures the Gemini client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// contentGenerator is the subset of the SDK the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client sends an image plus an instruction and expects an image back.
type Client struct {
	model  string
	models contentGenerator
	logger *infra.Logger
}

// Result is the first inline image in the model response.
type Result struct {
	Data     []byte
	MIMEType string
	// Text holds any text parts the model returned alongside the image.
	Text string
}

// NewClient builds the SDK client when an API key is present. Without one it
// returns a client whose calls fail with ErrMissingAPIKey.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	c := &Client{model: model, logger: logger}

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return c, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.models = sdk.Models
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.models != nil
}

// EditImage sends instruction and the image and returns the first inline image.
// A text-only answer is an EmptyResultError.
func (c *Client) EditImage(ctx context.Context, instruction string, image []byte, mimeType string) (*Result, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}

	c.logger.Debug().Str("model", c.model).Int("image_bytes", len(image)).Msg("gemini: generating content")
	start := time.Now()
	res, err := c.models.GenerateContent(ctx, c.model, contents, config)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			metrics.RecordProviderCall(providerName, "enhance", strconv.Itoa(apiErr.Code), elapsed)
			return nil, &domain.ProviderError{Provider: providerName, Status: apiErr.Code, Message: apiErr.Message, Err: err}
		}
		metrics.RecordProviderCall(providerName, "enhance", "error", elapsed)
		return nil, &domain.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
	}
	metrics.RecordProviderCall(providerName, "enhance", "200", elapsed)

	result := &Result{}
	var texts []string
	if res != nil {
		for _, cand := range res.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					texts = append(texts, part.Text)
				}
				if result.Data == nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					result.Data = part.InlineData.Data
					result.MIMEType = part.InlineData.MIMEType
				}
			}
		}
	}
	result.Text = strings.Join(texts, "\n")
	if result.Data == nil {
		c.logger.Warn().Str("model", c.model).Str("text", result.Text).Msg("gemini: response carried no image")
		return nil, &domain.EmptyResultError{Provider: providerName, Detail: truncate(result.Text, 200)}
	}
	c.logger.Debug().Str("model", c.model).Int("bytes", len(result.Data)).Str("mime", result.MIMEType).Msg("gemini: image received")
	return result, nil
}

// truncate caps s at n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
