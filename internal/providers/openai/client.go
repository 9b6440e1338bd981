// Package openai calls the OpenAI image edit endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
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

const providerName = "openai"

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = fmt.Errorf("openai: api key is required: %w", domain.ErrProviderNotConfigured)

// Options configures the OpenAI client.
type Options struct {
	APIKey         string
	BaseURL        string
	Organization   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs /images/edits calls. Safe for concurrent use.
type Client struct {
	apiKey string
	org    string
	http   *resty.Client
	logger *infra.Logger
}

// EditRequest is a single image edit. Mask is optional; when present its
// transparent pixels mark the editable region.
type EditRequest struct {
	Model  string
	Prompt string
	Image  []byte
	// ImageFormat labels the upload; empty means PNG.
	ImageFormat domain.Format
	Mask        []byte
	// Size is sent only when set, e.g. "1024x1024".
	Size string
	// ResponseFormat is only accepted by the dall-e models.
	ResponseFormat string
}

type editResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
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
	rc.SetBaseURL(baseURL)

	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey: strings.TrimSpace(opts.APIKey),
		org:    strings.TrimSpace(opts.Organization),
		http:   rc,
		logger: logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Edit uploads the image (and mask) and returns the first decoded result.
func (c *Client) Edit(ctx context.Context, req EditRequest) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	fields := map[string]string{
		"model":  req.Model,
		"prompt": req.Prompt,
		"n":      "1",
	}
	if req.Size != "" {
		fields["size"] = req.Size
	}
	if req.ResponseFormat != "" {
		fields["response_format"] = req.ResponseFormat
	}

	format := req.ImageFormat
	if format == "" {
		format = domain.FormatPNG
	}
	r := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetMultipartFormData(fields).
		SetMultipartField("image", "image."+format.Extension(), format.MIME(), bytes.NewReader(req.Image))
	if len(req.Mask) > 0 {
		r.SetMultipartField("mask", "mask.png", "image/png", bytes.NewReader(req.Mask))
	}
	if c.org != "" {
		r.SetHeader("OpenAI-Organization", c.org)
	}

	operation := "edit:" + req.Model
	c.logger.Debug().
		Str("model", req.Model).
		Int("image_bytes", len(req.Image)).
		Int("mask_bytes", len(req.Mask)).
		Msg("openai: sending image edit")

	start := time.Now()
	resp, err := r.Post("/images/edits")
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordProviderCall(providerName, operation, "error", elapsed)
		return nil, &domain.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
	}
	metrics.RecordProviderCall(providerName, operation, strconv.Itoa(resp.StatusCode()), elapsed)

	if resp.StatusCode() >= 300 {
		msg := errorMessage(resp.Body(), resp.StatusCode())
		c.logger.Error().Int("status", resp.StatusCode()).Str("model", req.Model).Str("message", msg).Msg("openai: image edit failed")
		return nil, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode(), Message: msg}
	}

	var decoded editResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode(), Message: "malformed response: " + err.Error(), Err: err}
	}
	if len(decoded.Data) == 0 || strings.TrimSpace(decoded.Data[0].B64JSON) == "" {
		return nil, &domain.EmptyResultError{Provider: providerName, Detail: "no b64_json in response"}
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode(), Message: "invalid base64 payload", Err: err}
	}
	c.logger.Debug().Str("model", req.Model).Int("bytes", len(data)).Msg("openai: image edit succeeded")
	return data, nil
}

func errorMessage(raw []byte, status int) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		if m := strings.TrimSpace(detail.Error.Message); m != "" {
			return m
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
