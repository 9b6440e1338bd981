// Package stability calls the Stability AI v2beta stable-image edit endpoints.
package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"imagechain/internal/domain"
	"imagechain/internal/infra"
	"imagechain/internal/metrics"
)

const providerName = "stability"

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = fmt.Errorf("stability: api key is required: %w", domain.ErrProviderNotConfigured)

// Options configures the Stability client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs multipart calls against the edit endpoints. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	apiKey string
	http   *resty.Client
	logger *infra.Logger
}

// InpaintRequest replaces the region marked by a grayscale mask.
type InpaintRequest struct {
	Image []byte
	// ImageFormat labels the upload; empty means PNG.
	ImageFormat domain.Format
	Mask        []byte
	Prompt      string
}

// SearchReplaceRequest swaps the object described by SearchPrompt.
type SearchReplaceRequest struct {
	Image        []byte
	ImageFormat  domain.Format
	Prompt       string
	SearchPrompt string
}

// OutpaintRequest extends the canvas to the left and downwards.
type OutpaintRequest struct {
	Image       []byte
	ImageFormat domain.Format
	Left        int
	Down        int
	Prompt      string
	StylePreset string
}

// Result is the raw image returned by the API.
type Result struct {
	Data         []byte
	ContentType  string
	FinishReason string
}

type errorResponse struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New().SetTimeout(timeout)
	}
	rc.SetBaseURL(baseURL).SetHeader("User-Agent", "imagechain/1.0")

	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey: strings.TrimSpace(opts.APIKey),
		http:   rc,
		logger: logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Inpaint calls /v2beta/stable-image/edit/inpaint.
func (c *Client) Inpaint(ctx context.Context, req InpaintRequest) (*Result, error) {
	files := []filePart{
		imagePart(req.Image, req.ImageFormat),
		{field: "mask", name: "mask.png", mime: "image/png", data: req.Mask},
	}
	fields := map[string]string{
		"prompt":        req.Prompt,
		"output_format": "png",
	}
	return c.edit(ctx, "inpaint", files, fields)
}

// SearchAndReplace calls /v2beta/stable-image/edit/search-and-replace.
func (c *Client) SearchAndReplace(ctx context.Context, req SearchReplaceRequest) (*Result, error) {
	files := []filePart{imagePart(req.Image, req.ImageFormat)}
	fields := map[string]string{
		"prompt":        req.Prompt,
		"search_prompt": req.SearchPrompt,
		"output_format": "png",
	}
	return c.edit(ctx, "search-and-replace", files, fields)
}

// Outpaint calls /v2beta/stable-image/edit/outpaint.
func (c *Client) Outpaint(ctx context.Context, req OutpaintRequest) (*Result, error) {
	files := []filePart{imagePart(req.Image, req.ImageFormat)}
	fields := map[string]string{
		"left":          strconv.Itoa(req.Left),
		"down":          strconv.Itoa(req.Down),
		"output_format": "webp",
	}
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fields["prompt"] = p
	}
	if req.StylePreset != "" {
		fields["style_preset"] = req.StylePreset
	}
	return c.edit(ctx, "outpaint", files, fields)
}

type filePart struct {
	field string
	name  string
	mime  string
	data  []byte
}

func imagePart(data []byte, format domain.Format) filePart {
	if format == "" {
		format = domain.FormatPNG
	}
	return filePart{field: "image", name: "image." + format.Extension(), mime: format.MIME(), data: data}
}

func (c *Client) edit(ctx context.Context, operation string, files []filePart, fields map[string]string) (*Result, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Accept", "image/*").
		SetMultipartFormData(fields)
	for _, f := range files {
		r.SetMultipartField(f.field, f.name, f.mime, bytes.NewReader(f.data))
	}

	c.logger.Debug().
		Str("operation", operation).
		Int("image_bytes", len(files[0].data)).
		Msg("stability: sending edit request")

	start := time.Now()
	resp, err := r.Post("/v2beta/stable-image/edit/" + operation)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordProviderCall(providerName, operation, "error", elapsed)
		return nil, &domain.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
	}
	metrics.RecordProviderCall(providerName, operation, strconv.Itoa(resp.StatusCode()), elapsed)

	if resp.IsError() || resp.StatusCode() >= 300 {
		msg := errorMessage(resp.Body(), resp.StatusCode())
		c.logger.Error().Int("status", resp.StatusCode()).Str("operation", operation).Str("message", msg).Msg("stability: edit failed")
		return nil, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode(), Message: msg}
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, &domain.EmptyResultError{Provider: providerName}
	}
	result := &Result{
		Data:         body,
		ContentType:  resp.Header().Get("Content-Type"),
		FinishReason: resp.Header().Get("Finish-Reason"),
	}
	c.logger.Debug().
		Str("operation", operation).
		Int("bytes", len(body)).
		Str("content_type", result.ContentType).
		Str("finish_reason", result.FinishReason).
		Msg("stability: edit succeeded")
	return result, nil
}

// errorMessage prefers the structured message, then the error list, then the status text.
func errorMessage(raw []byte, status int) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		if m := strings.TrimSpace(detail.Message); m != "" {
			return m
		}
		if len(detail.Errors) > 0 {
			return strings.Join(detail.Errors, "; ")
		}
		if detail.Name != "" {
			return detail.Name
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
