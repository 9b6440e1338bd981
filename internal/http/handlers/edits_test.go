package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imagechain/internal/domain"
)

type stubEditor struct {
	got       []domain.Request
	converted int
	err       error
}

func (s *stubEditor) Apply(ctx context.Context, img domain.Image, req domain.Request) (domain.Image, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return domain.Image{}, s.err
	}
	return domain.Image{Data: []byte("out"), Format: domain.FormatPNG, Width: 1, Height: 1}, nil
}

func (s *stubEditor) Convert(img domain.Image) (domain.Image, error) {
	s.converted++
	if s.err != nil {
		return domain.Image{}, s.err
	}
	return domain.Image{Data: []byte("jpg"), Format: domain.FormatJPEG, Width: 1, Height: 1}, nil
}

var inputURI = domain.Image{Data: []byte("in"), Format: domain.FormatPNG}.DataURI()

func post(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/test", &buf)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestEditEndpointsBuildRequests(t *testing.T) {
	ed := &stubEditor{}
	app := NewApp(ed, nil, nil, 1<<20)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    map[string]any
		check   func(t *testing.T, req domain.Request)
	}{
		{
			name:    "mirror",
			handler: app.Mirror(),
			body:    map[string]any{"image": inputURI},
			check: func(t *testing.T, req domain.Request) {
				if _, ok := req.(domain.MirrorRequest); !ok {
					t.Fatalf("req = %T", req)
				}
			},
		},
		{
			name:    "dalle route pins provider",
			handler: app.InpaintWith(domain.InpaintOpenAI),
			body: map[string]any{
				"image": inputURI, "prompt": "a hat", "provider": "stability",
				"rect": map[string]float64{"x": 1, "y": 2, "width": 3, "height": 4},
			},
			check: func(t *testing.T, req domain.Request) {
				r, ok := req.(domain.InpaintRequest)
				if !ok || r.Provider != domain.InpaintOpenAI || r.Rect.Width != 3 {
					t.Fatalf("req = %#v", req)
				}
			},
		},
		{
			name:    "search and replace",
			handler: app.SearchAndReplace(),
			body:    map[string]any{"image": inputURI, "prompt": "dog", "searchPrompt": "cat"},
			check: func(t *testing.T, req domain.Request) {
				r, ok := req.(domain.SearchReplaceRequest)
				if !ok || r.SearchPrompt != "cat" {
					t.Fatalf("req = %#v", req)
				}
			},
		},
		{
			name:    "outpaint",
			handler: app.Outpaint(),
			body:    map[string]any{"image": inputURI, "left": 100.4, "down": 0, "style_preset": "anime"},
			check: func(t *testing.T, req domain.Request) {
				r, ok := req.(domain.OutpaintRequest)
				if !ok || r.Left != 100 || r.Down != 0 || r.StylePreset != "anime" {
					t.Fatalf("req = %#v", req)
				}
			},
		},
		{
			name:    "local enhance",
			handler: app.AutoEnhance(domain.EnhanceLocal),
			body:    map[string]any{"image": inputURI},
			check: func(t *testing.T, req domain.Request) {
				r, ok := req.(domain.EnhanceRequest)
				if !ok || r.Variant != domain.EnhanceLocal {
					t.Fatalf("req = %#v", req)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ed.got = nil
			rec := post(t, tc.handler, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			out := decodeBody(t, rec)
			data, _ := out["data"].(map[string]any)
			if data["image"] != "data:image/png;base64,b3V0" {
				t.Fatalf("image = %v", data["image"])
			}
			if len(ed.got) != 1 {
				t.Fatalf("editor calls = %d", len(ed.got))
			}
			tc.check(t, ed.got[0])
		})
	}
}

func TestEditRejectsBeforeCallingEditor(t *testing.T) {
	ed := &stubEditor{}
	app := NewApp(ed, nil, nil, 1<<20)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    any
		want    string
	}{
		{"missing prompt", app.Transform(), map[string]any{"image": inputURI}, "prompt"},
		{"missing rect", app.Inpaint(), map[string]any{"image": inputURI, "prompt": "x"}, "rect"},
		{"outpaint offsets", app.Outpaint(), map[string]any{"image": inputURI, "left": 10}, "down"},
		{"bad preset", app.Outpaint(), map[string]any{"image": inputURI, "left": 10, "down": 10, "style_preset": "oil"}, "style_preset"},
		{"not a data uri", app.Mirror(), map[string]any{"image": "aGVsbG8="}, "data URI"},
		{"missing image", app.Mirror(), map[string]any{}, "image is required"},
		{"malformed json", app.Mirror(), "{", "invalid JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ed.got = nil
			rec := post(t, tc.handler, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			out := decodeBody(t, rec)
			msg, _ := out["error"].(string)
			if !strings.Contains(msg, tc.want) {
				t.Fatalf("error = %q, want mention of %q", msg, tc.want)
			}
			if _, ok := out["data"]; ok {
				t.Fatal("error response carries data")
			}
			if len(ed.got) != 0 {
				t.Fatalf("editor called %d times", len(ed.got))
			}
		})
	}
}

func TestEditMapsFailuresToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"provider", &domain.ProviderError{Provider: "stability", Status: 500, Message: "boom"}, http.StatusInternalServerError},
		{"normalization", &domain.CompressionBudgetExceededError{MaxBytes: 10, Size: 20, Quality: 20}, http.StatusInternalServerError},
		{"rect", &domain.InvalidRectError{Reason: "outside image"}, http.StatusBadRequest},
		{"not configured", errors.Join(domain.ErrProviderNotConfigured), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := NewApp(&stubEditor{err: tc.err}, nil, nil, 1<<20)
			rec := post(t, app.Mirror(), map[string]any{"image": inputURI})
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if out := decodeBody(t, rec); out["error"] == "" {
				t.Fatal("missing error message")
			}
		})
	}
}

func TestEditRejectsOversizedBody(t *testing.T) {
	app := NewApp(&stubEditor{}, nil, nil, 64)
	rec := post(t, app.Mirror(), map[string]any{"image": "data:image/png;base64," + strings.Repeat("A", 200)})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConvert(t *testing.T) {
	ed := &stubEditor{}
	app := NewApp(ed, nil, nil, 1<<20)
	rec := post(t, app.Convert, map[string]any{"image": "data:image/heic;base64,AAAA"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if !strings.HasPrefix(data["image"].(string), "data:image/jpeg;base64,") {
		t.Fatalf("image = %v", data["image"])
	}
	if ed.converted != 1 {
		t.Fatalf("convert calls = %d", ed.converted)
	}
}
