package domain

import (
	"errors"
	"net/http"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestBuildRejectsMissingRequirements(t *testing.T) {
	cases := []struct {
		name  string
		req   TransformationRequest
		field string
	}{
		{"transform without prompt", TransformationRequest{Type: KindTransform}, "prompt"},
		{"inpaint without rect", TransformationRequest{Type: KindInpaint, Prompt: "a cat"}, "rect"},
		{"inpaint without prompt", TransformationRequest{Type: KindInpaint, Rect: &Rect{Width: 1, Height: 1}}, "prompt"},
		{"search-and-replace without search prompt", TransformationRequest{Type: KindSearchReplace, Prompt: "a dog"}, "searchPrompt"},
		{"search-and-replace blank search prompt", TransformationRequest{Type: KindSearchReplace, Prompt: "a dog", SearchPrompt: "  "}, "searchPrompt"},
		{"outpaint without left", TransformationRequest{Type: KindOutpaint, Down: ptr(10.0)}, "left"},
		{"outpaint without down", TransformationRequest{Type: KindOutpaint, Left: ptr(10.0)}, "down"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.Build()
			var reqErr *RequirementError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected RequirementError, got %v", err)
			}
			if reqErr.Field != tc.field {
				t.Fatalf("field = %q, want %q", reqErr.Field, tc.field)
			}
			if HTTPStatus(err) != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", HTTPStatus(err))
			}
		})
	}
}

func TestBuildReturnsVariants(t *testing.T) {
	rect := Rect{X: 1, Y: 2, Width: 3, Height: 4}
	cases := []struct {
		req  TransformationRequest
		want Request
	}{
		{TransformationRequest{Type: KindTransform, Prompt: " ghibli "}, TransformRequest{Prompt: "ghibli"}},
		{TransformationRequest{Type: KindTransform, Style: "anime"}, TransformRequest{Style: "anime"}},
		{TransformationRequest{Type: KindMirror}, MirrorRequest{}},
		{TransformationRequest{Type: KindInpaint, Prompt: "hat", Rect: &rect, Provider: "OpenAI"}, InpaintRequest{Prompt: "hat", Rect: rect, Provider: InpaintOpenAI}},
		{TransformationRequest{Type: KindSearchReplace, Prompt: "dog", SearchPrompt: "cat"}, SearchReplaceRequest{Prompt: "dog", SearchPrompt: "cat"}},
		{TransformationRequest{Type: KindOutpaint, Left: ptr(100.4), Down: ptr(0.0), StylePreset: "anime"}, OutpaintRequest{Left: 100, StylePreset: "anime"}},
		{TransformationRequest{Type: KindAutoEnhance}, EnhanceRequest{Variant: EnhanceAI}},
		{TransformationRequest{Type: KindAutoEnhance, Variant: "local"}, EnhanceRequest{Variant: EnhanceLocal}},
	}

	for _, tc := range cases {
		got, err := tc.req.Build()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.req.Type, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %#v, want %#v", tc.req.Type, got, tc.want)
		}
		if got.Kind() != tc.req.Type {
			t.Fatalf("kind = %q, want %q", got.Kind(), tc.req.Type)
		}
	}
}

func TestBuildValidatesOutpaint(t *testing.T) {
	cases := []struct {
		name string
		req  TransformationRequest
	}{
		{"negative", TransformationRequest{Type: KindOutpaint, Left: ptr(-1.0), Down: ptr(10.0)}},
		{"too large", TransformationRequest{Type: KindOutpaint, Left: ptr(10.0), Down: ptr(2001.0)}},
		{"no extension", TransformationRequest{Type: KindOutpaint, Left: ptr(0.0), Down: ptr(0.0)}},
		{"bad preset", TransformationRequest{Type: KindOutpaint, Left: ptr(10.0), Down: ptr(10.0), StylePreset: "vaporwave"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.Build()
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	_, err := TransformationRequest{Type: "sepia"}.Build()
	if HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (err=%v)", HTTPStatus(err), err)
	}
}

func TestEveryKindHasSchema(t *testing.T) {
	for _, k := range Kinds {
		if _, ok := RequirementsFor(k); !ok {
			t.Fatalf("kind %q has no requirement schema", k)
		}
	}
}
