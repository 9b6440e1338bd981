package history

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagechain/internal/domain"
	"imagechain/internal/infra"
	"imagechain/internal/metrics"
)

// Editor applies a single transformation.
type Editor interface {
	Apply(ctx context.Context, img domain.Image, req domain.Request) (domain.Image, error)
	Convert(img domain.Image) (domain.Image, error)
}

// SlotState is the dispatch state of a session.
type SlotState string

const (
	StateIdle        SlotState = "idle"
	StateDispatching SlotState = "dispatching"
)

// Orchestrator extends session histories one transformation at a time.
type Orchestrator struct {
	store  Store
	editor Editor
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewOrchestrator(store Store, editor Editor, logger *infra.Logger) *Orchestrator {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Orchestrator{
		store:    store,
		editor:   editor,
		logger:   l.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Start converts the upload and opens a session whose history is [original].
func (o *Orchestrator) Start(ctx context.Context, upload domain.Image) (*Session, error) {
	original, err := o.editor.Convert(upload)
	if err != nil {
		return nil, err
	}
	now := o.now()
	s := &Session{
		ID:        uuid.New(),
		History:   New(Entry{ID: uuid.New(), Image: original, CreatedAt: now}),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Create(ctx, s); err != nil {
		return nil, err
	}
	o.logger.Info().Str("session_id", s.ID.String()).Int("width", original.Width).Int("height", original.Height).Msg("session started")
	return s, nil
}

// Session returns the stored session.
func (o *Orchestrator) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	return o.store.Get(ctx, id)
}

// Image returns entry index of session id with its bytes loaded.
func (o *Orchestrator) Image(ctx context.Context, id uuid.UUID, index int) (Entry, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	e, err := s.History.At(index)
	if err != nil {
		return Entry{}, err
	}
	return o.store.Load(ctx, id, e)
}

// Archive returns the session and every entry with its bytes loaded.
func (o *Orchestrator) Archive(ctx context.Context, id uuid.UUID) (*Session, []Entry, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries := s.History.Entries()
	for i, e := range entries {
		if entries[i], err = o.store.Load(ctx, id, e); err != nil {
			return nil, nil, err
		}
	}
	return s, entries, nil
}

// State reports whether a transformation is currently dispatching for id.
func (o *Orchestrator) State(id uuid.UUID) SlotState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[id]; ok {
		return StateDispatching
	}
	return StateIdle
}

// Apply validates req, then transforms the tail (or entry req.Index, after
// truncating everything past it) and appends the result. On failure the
// stored history is left exactly as it was.
func (o *Orchestrator) Apply(ctx context.Context, id uuid.UUID, wire domain.TransformationRequest) (*Session, error) {
	req, err := wire.Build()
	if err != nil {
		return nil, err
	}
	if !o.acquire(id) {
		return nil, domain.ErrTransformationInFlight
	}
	defer o.release(id)

	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	index := s.History.Len() - 1
	if wire.Index != nil {
		index = *wire.Index
	}
	base, err := s.History.TruncateTo(index)
	if err != nil {
		return nil, err
	}

	log := o.logger.With().Str("session_id", id.String()).Str("kind", string(req.Kind())).Int("source_index", index).Logger()
	if dropped := s.History.Len() - base.Len(); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("re-targeting earlier entry")
	}

	source, err := o.store.Load(ctx, id, base.Tail())
	if err != nil {
		return nil, err
	}
	out, err := o.editor.Apply(ctx, source.Image, req)
	if err != nil {
		metrics.RecordTransformation(string(req.Kind()), "failed")
		log.Warn().Err(err).Msg("transformation failed")
		return nil, err
	}

	next := base.Append(Entry{ID: uuid.New(), Image: out, Kind: req.Kind(), CreatedAt: o.now()})
	updated, err := o.store.Replace(ctx, id, s.Version, next)
	if err != nil {
		metrics.RecordTransformation(string(req.Kind()), "failed")
		return nil, err
	}
	metrics.RecordTransformation(string(req.Kind()), "succeeded")
	log.Info().Int("history_len", updated.History.Len()).Msg("transformation appended")
	return updated, nil
}

// Remove drops entry index and everything after it.
func (o *Orchestrator) Remove(ctx context.Context, id uuid.UUID, index int) (*Session, error) {
	if !o.acquire(id) {
		return nil, domain.ErrTransformationInFlight
	}
	defer o.release(id)

	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := s.History.Remove(index)
	if err != nil {
		return nil, err
	}
	return o.store.Replace(ctx, id, s.Version, next)
}

// Delete drops the session. A session with a transformation in flight
// cannot be deleted.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	if !o.acquire(id) {
		return domain.ErrTransformationInFlight
	}
	defer o.release(id)
	if err := o.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Error().Err(err).Str("session_id", id.String()).Msg("delete session")
		}
		return err
	}
	return nil
}

func (o *Orchestrator) acquire(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}
