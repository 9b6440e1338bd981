package handlers

import (
	"net/http"

	"imagechain/internal/domain"
)

// editBody is the stateless request: the image travels with every call.
type editBody struct {
	Image string `json:"image"`
	domain.TransformationRequest
}

type imageResponse struct {
	Image string `json:"image"`
}

// edit builds a stateless endpoint for one transformation kind. fix pins
// fields that are implied by the route.
func (a *App) edit(kind domain.Kind, fix func(*domain.TransformationRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body editBody
		if err := a.decode(w, r, &body); err != nil {
			a.error(w, r, err)
			return
		}
		req := body.TransformationRequest
		req.Type = kind
		req.Index = nil
		if fix != nil {
			fix(&req)
		}
		// Validate the request before paying for the image decode.
		built, err := req.Build()
		if err != nil {
			a.error(w, r, err)
			return
		}
		img, err := domain.ParseDataURI(body.Image)
		if err != nil {
			a.error(w, r, err)
			return
		}
		out, err := a.Editor.Apply(r.Context(), img, built)
		if err != nil {
			a.error(w, r, err)
			return
		}
		a.data(w, http.StatusOK, imageResponse{Image: out.DataURI()})
	}
}

func (a *App) Transform() http.HandlerFunc {
	return a.edit(domain.KindTransform, nil)
}

func (a *App) Mirror() http.HandlerFunc {
	return a.edit(domain.KindMirror, nil)
}

// Inpaint uses the provider named in the body, or the configured default.
func (a *App) Inpaint() http.HandlerFunc {
	return a.edit(domain.KindInpaint, nil)
}

func (a *App) InpaintWith(provider string) http.HandlerFunc {
	return a.edit(domain.KindInpaint, func(req *domain.TransformationRequest) {
		req.Provider = provider
	})
}

func (a *App) SearchAndReplace() http.HandlerFunc {
	return a.edit(domain.KindSearchReplace, nil)
}

func (a *App) Outpaint() http.HandlerFunc {
	return a.edit(domain.KindOutpaint, nil)
}

func (a *App) AutoEnhance(variant string) http.HandlerFunc {
	return a.edit(domain.KindAutoEnhance, func(req *domain.TransformationRequest) {
		req.Variant = variant
	})
}

// Convert returns standard formats untouched and HEIC/HEIF as JPEG.
func (a *App) Convert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Image string `json:"image"`
	}
	if err := a.decode(w, r, &body); err != nil {
		a.error(w, r, err)
		return
	}
	img, err := domain.ParseDataURI(body.Image)
	if err != nil {
		a.error(w, r, err)
		return
	}
	out, err := a.Editor.Convert(img)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusOK, imageResponse{Image: out.DataURI()})
}
