package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagechain/internal/domain"
	"imagechain/internal/history"
	"imagechain/internal/infra"
	"imagechain/internal/middleware"
)

// Sessions is the orchestrator surface used by the session endpoints.
type Sessions interface {
	Start(ctx context.Context, upload domain.Image) (*history.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*history.Session, error)
	Image(ctx context.Context, id uuid.UUID, index int) (history.Entry, error)
	Archive(ctx context.Context, id uuid.UUID) (*history.Session, []history.Entry, error)
	State(id uuid.UUID) history.SlotState
	Apply(ctx context.Context, id uuid.UUID, req domain.TransformationRequest) (*history.Session, error)
	Remove(ctx context.Context, id uuid.UUID, index int) (*history.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type App struct {
	Editor         history.Editor
	Sessions       Sessions
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

func NewApp(editor history.Editor, sessions Sessions, logger *infra.Logger, maxUploadBytes int64) *App {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &App{Editor: editor, Sessions: sessions, Logger: l, MaxUploadBytes: maxUploadBytes}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) data(w http.ResponseWriter, code int, v any) {
	a.json(w, code, map[string]any{"data": v})
}

// error writes {"error": msg} with the status for err's category.
func (a *App) error(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.HTTPStatus(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		code = http.StatusRequestEntityTooLarge
	}
	event := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		event = a.Logger.Error()
	}
	event.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Int("status", code).
		Msg("request failed")
	a.json(w, code, map[string]string{"error": err.Error()})
}

// decode reads a JSON body bounded by MaxUploadBytes.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := r.Body
	if a.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &domain.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
