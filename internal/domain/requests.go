package domain

import (
	"fmt"
	"math"
	"strings"
)

// Kind enumerates the supported transformation types.
type Kind string

const (
	KindTransform     Kind = "transform"
	KindMirror        Kind = "mirror"
	KindInpaint       Kind = "inpaint"
	KindSearchReplace Kind = "search-and-replace"
	KindOutpaint      Kind = "outpaint"
	KindAutoEnhance   Kind = "auto-enhance"
)

// Kinds lists every transformation type in display order.
var Kinds = []Kind{KindTransform, KindMirror, KindInpaint, KindSearchReplace, KindOutpaint, KindAutoEnhance}

// Requirements is the static input schema of a transformation type.
type Requirements struct {
	Prompt       bool `json:"requires_prompt"`
	Rect         bool `json:"requires_rect"`
	SearchPrompt bool `json:"requires_search_prompt"`
	Offsets      bool `json:"requires_offsets"`
}

var requirementSchema = map[Kind]Requirements{
	KindTransform:     {Prompt: true},
	KindMirror:        {},
	KindInpaint:       {Prompt: true, Rect: true},
	KindSearchReplace: {Prompt: true, SearchPrompt: true},
	KindOutpaint:      {Offsets: true},
	KindAutoEnhance:   {},
}

// RequirementsFor returns the schema for k, or false when k is unknown.
func RequirementsFor(k Kind) (Requirements, bool) {
	r, ok := requirementSchema[k]
	return r, ok
}

// Enhance variants.
const (
	EnhanceAI    = "ai"
	EnhanceLocal = "local"
)

// Inpaint providers.
const (
	InpaintStability = "stability"
	InpaintOpenAI    = "openai"
)

// MaxOutpaintExtension bounds each outpaint direction in pixels.
const MaxOutpaintExtension = 2000

// StylePresets are the generation presets accepted by the outpaint provider.
var StylePresets = []string{
	"3d-model", "analog-film", "anime", "cinematic", "comic-book", "digital-art",
	"enhance", "fantasy-art", "isometric", "line-art", "low-poly", "modeling-compound",
	"neon-punk", "origami", "photographic", "pixel-art", "tile-texture",
}

// IsStylePreset reports whether s is one of StylePresets.
func IsStylePreset(s string) bool {
	for _, p := range StylePresets {
		if p == s {
			return true
		}
	}
	return false
}

// Request is one concrete transformation. Each variant carries exactly the
// fields its type needs.
type Request interface {
	Kind() Kind
}

type TransformRequest struct {
	Prompt string
	// Style is a named look ("anime", "watercolor painting") used to build a
	// prompt when Prompt is empty.
	Style string
}

type MirrorRequest struct{}

type InpaintRequest struct {
	Prompt   string
	Rect     Rect
	Provider string
}

type SearchReplaceRequest struct {
	Prompt       string
	SearchPrompt string
}

type OutpaintRequest struct {
	Left        int
	Down        int
	Prompt      string
	StylePreset string
}

type EnhanceRequest struct {
	Variant string
}

func (TransformRequest) Kind() Kind     { return KindTransform }
func (MirrorRequest) Kind() Kind        { return KindMirror }
func (InpaintRequest) Kind() Kind       { return KindInpaint }
func (SearchReplaceRequest) Kind() Kind { return KindSearchReplace }
func (OutpaintRequest) Kind() Kind      { return KindOutpaint }
func (EnhanceRequest) Kind() Kind       { return KindAutoEnhance }

// TransformationRequest is the wire form accepted by the API. Build turns it
// into a typed Request after checking the requirement schema.
type TransformationRequest struct {
	Type         Kind     `json:"type"`
	Index        *int     `json:"index,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	SearchPrompt string   `json:"searchPrompt,omitempty"`
	Rect         *Rect    `json:"rect,omitempty"`
	Left         *float64 `json:"left,omitempty"`
	Down         *float64 `json:"down,omitempty"`
	StylePreset  string   `json:"style_preset,omitempty"`
	Style        string   `json:"style,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Variant      string   `json:"variant,omitempty"`
}

// Build validates the wire request and returns the matching variant. It never
// touches the network; every failure is a client error.
func (t TransformationRequest) Build() (Request, error) {
	schema, ok := RequirementsFor(t.Type)
	if !ok {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transformation type %q", t.Type)}
	}

	prompt := strings.TrimSpace(t.Prompt)
	if schema.Prompt && prompt == "" && !(t.Type == KindTransform && strings.TrimSpace(t.Style) != "") {
		return nil, &RequirementError{Kind: t.Type, Field: "prompt"}
	}
	if schema.Rect && t.Rect == nil {
		return nil, &RequirementError{Kind: t.Type, Field: "rect"}
	}
	if schema.SearchPrompt && strings.TrimSpace(t.SearchPrompt) == "" {
		return nil, &RequirementError{Kind: t.Type, Field: "searchPrompt"}
	}
	if schema.Offsets {
		if t.Left == nil {
			return nil, &RequirementError{Kind: t.Type, Field: "left"}
		}
		if t.Down == nil {
			return nil, &RequirementError{Kind: t.Type, Field: "down"}
		}
	}

	switch t.Type {
	case KindTransform:
		return TransformRequest{Prompt: prompt, Style: strings.TrimSpace(t.Style)}, nil
	case KindMirror:
		return MirrorRequest{}, nil
	case KindInpaint:
		provider := strings.ToLower(strings.TrimSpace(t.Provider))
		if provider != "" && provider != InpaintStability && provider != InpaintOpenAI {
			return nil, &ValidationError{Field: "provider", Message: fmt.Sprintf("unknown inpaint provider %q", t.Provider)}
		}
		return InpaintRequest{Prompt: prompt, Rect: *t.Rect, Provider: provider}, nil
	case KindSearchReplace:
		return SearchReplaceRequest{Prompt: prompt, SearchPrompt: strings.TrimSpace(t.SearchPrompt)}, nil
	case KindOutpaint:
		left, err := extension("left", *t.Left)
		if err != nil {
			return nil, err
		}
		down, err := extension("down", *t.Down)
		if err != nil {
			return nil, err
		}
		if left == 0 && down == 0 {
			return nil, &ValidationError{Field: "left", Message: "left or down must extend the canvas"}
		}
		if t.StylePreset != "" && !IsStylePreset(t.StylePreset) {
			return nil, &ValidationError{
				Field:   "style_preset",
				Message: "must be one of: " + strings.Join(StylePresets, ", "),
			}
		}
		return OutpaintRequest{Left: left, Down: down, Prompt: prompt, StylePreset: t.StylePreset}, nil
	case KindAutoEnhance:
		variant := strings.ToLower(strings.TrimSpace(t.Variant))
		switch variant {
		case "":
			variant = EnhanceAI
		case EnhanceAI, EnhanceLocal:
		default:
			return nil, &ValidationError{Field: "variant", Message: fmt.Sprintf("unknown enhance variant %q", t.Variant)}
		}
		return EnhanceRequest{Variant: variant}, nil
	}
	return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transformation type %q", t.Type)}
}

func extension(field string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: field, Message: "must be a number"}
	}
	if v < 0 || v > MaxOutpaintExtension {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("must be between 0 and %d", MaxOutpaintExtension)}
	}
	return int(math.Round(v)), nil
}
