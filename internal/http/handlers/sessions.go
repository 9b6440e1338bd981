package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"imagechain/internal/domain"
	"imagechain/internal/history"
	"imagechain/pkg/zip"
)

type entryView struct {
	Index     int       `json:"index"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind,omitempty"`
	MIME      string    `json:"mime"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionView struct {
	ID        string      `json:"id"`
	Version   int64       `json:"version"`
	State     string      `json:"state"`
	Images    []entryView `json:"images"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (a *App) view(s *history.Session) sessionView {
	entries := s.History.Entries()
	out := sessionView{
		ID:        s.ID.String(),
		Version:   s.Version,
		State:     string(a.Sessions.State(s.ID)),
		Images:    make([]entryView, len(entries)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for i, e := range entries {
		out.Images[i] = entryView{
			Index:     i,
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			MIME:      e.Image.Format.MIME(),
			Width:     e.Image.Width,
			Height:    e.Image.Height,
			Bytes:     e.Size(),
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("session %q: %w", chi.URLParam(r, "id"), domain.ErrNotFound)
	}
	return id, nil
}

func imageIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidIndex, raw)
	}
	return n, nil
}

// CreateSession converts the upload and opens a history with it as entry 0.
func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
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
	s, err := a.Sessions.Start(r.Context(), img)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusCreated, a.view(s))
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	s, err := a.Sessions.Session(r.Context(), id)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusOK, a.view(s))
}

func (a *App) GetSessionImage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	index, err := imageIndex(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	e, err := a.Sessions.Image(r.Context(), id, index)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusOK, map[string]any{
		"index": index,
		"kind":  string(e.Kind),
		"image": e.Image.DataURI(),
	})
}

// ApplyTransformation extends the history from its tail, or from body.index
// after dropping everything past it.
func (a *App) ApplyTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	var req domain.TransformationRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, r, err)
		return
	}
	s, err := a.Sessions.Apply(r.Context(), id, req)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusOK, map[string]any{
		"session": a.view(s),
		"image":   s.History.Tail().Image.DataURI(),
	})
}

func (a *App) RemoveSessionImage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	index, err := imageIndex(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	s, err := a.Sessions.Remove(r.Context(), id, index)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.data(w, http.StatusOK, a.view(s))
}

// SessionArchive streams every history image as a zip.
func (a *App) SessionArchive(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	s, entries, err := a.Sessions.Archive(r.Context(), id)
	if err != nil {
		a.error(w, r, err)
		return
	}
	assets := make([]zip.Asset, len(entries))
	for i, e := range entries {
		name := "original"
		if e.Kind != "" {
			name = string(e.Kind)
		}
		assets[i] = zip.Asset{
			Filename: fmt.Sprintf("%02d-%s.%s", i, name, e.Image.Format.Extension()),
			MIME:     e.Image.Format.MIME(),
			Data:     e.Image.Data,
			Modified: e.CreatedAt,
		}
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.zip"`, s.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	if err := a.Sessions.Delete(r.Context(), id); err != nil {
		a.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
