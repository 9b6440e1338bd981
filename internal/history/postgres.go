package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"imagechain/internal/domain"
	"imagechain/internal/infra"
	"imagechain/internal/sqlinline"
)

// BlobStore holds the encoded image bytes referenced by session rows.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// PostgresStore keeps session metadata in Postgres and image bytes in a
// BlobStore. Every write is a single statement guarded by the session version.
type PostgresStore struct {
	sql    infra.SQLExecutor
	blobs  BlobStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewPostgresStore(sql infra.SQLExecutor, blobs BlobStore, logger *infra.Logger) *PostgresStore {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &PostgresStore{sql: sql, blobs: blobs, logger: l.With().Str("component", "session_store").Logger(), now: time.Now}
}

// EnsureSchema creates the session tables when they are missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.sql.Exec(ctx, sqlinline.QEnsureSessionSchema); err != nil {
		return fmt.Errorf("ensure session schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	if s.History.Len() != 1 {
		return fmt.Errorf("create session: expected only the original entry, got %d", s.History.Len())
	}
	original := s.History.Tail()
	key, err := p.blobs.Write(ctx, blobKey(s.ID, original), original.Image.Data)
	if err != nil {
		return err
	}
	_, err = p.sql.Exec(ctx, sqlinline.QInsertSession,
		s.ID.String(), s.Version, s.CreatedAt,
		original.ID.String(), key, original.Image.Format.MIME(),
		original.Image.Width, original.Image.Height, original.Image.Size(),
	)
	if err != nil {
		p.discard(ctx, key)
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s := &Session{ID: id}
	err := p.sql.QueryRow(ctx, sqlinline.QSelectSession, id.String()).Scan(&s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	rows, err := p.listImages(ctx, id)
	if err != nil {
		return nil, err
	}
	// Image bytes stay in the blob store until Load asks for them.
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			ID:        r.entryID,
			Kind:      domain.Kind(r.kind),
			CreatedAt: r.createdAt,
			Bytes:     r.bytes,
			blobKey:   r.storageKey,
			Image: domain.Image{
				Format: domain.FormatFromMIME(r.mime),
				Width:  r.width,
				Height: r.height,
			},
		})
	}
	h, err := FromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	s.History = h
	return s, nil
}

// Load reads the blob behind e when Get left it out.
func (p *PostgresStore) Load(ctx context.Context, id uuid.UUID, e Entry) (Entry, error) {
	if e.Loaded() {
		return e, nil
	}
	if e.blobKey == "" {
		return Entry{}, fmt.Errorf("session %s: entry %s has no stored image", id, e.ID)
	}
	data, err := p.blobs.Read(ctx, e.blobKey)
	if err != nil {
		return Entry{}, fmt.Errorf("read image %s: %w", e.ID, err)
	}
	e.Image.Data = data
	return e, nil
}

func (p *PostgresStore) Replace(ctx context.Context, id uuid.UUID, expectedVersion int64, h History) (*Session, error) {
	stored, err := p.listImages(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, domain.ErrNotFound
	}
	prefix := 0
	for prefix < len(stored) && prefix < h.Len() && stored[prefix].entryID == h.entries[prefix].ID {
		prefix++
	}
	if prefix == 0 {
		return nil, fmt.Errorf("replace session %s: history does not share the original entry", id)
	}

	fresh := h.entries[prefix:]
	var (
		ids, kinds, keys, mimes []string
		idxs, widths, heights   []int32
		sizes                   []int32
		created                 []time.Time
	)
	for i, e := range fresh {
		key, err := p.blobs.Write(ctx, blobKey(id, e), e.Image.Data)
		if err != nil {
			p.discard(ctx, keys...)
			return nil, err
		}
		ids = append(ids, e.ID.String())
		idxs = append(idxs, int32(prefix+i))
		kinds = append(kinds, string(e.Kind))
		keys = append(keys, key)
		mimes = append(mimes, e.Image.Format.MIME())
		widths = append(widths, int32(e.Image.Width))
		heights = append(heights, int32(e.Image.Height))
		sizes = append(sizes, int32(e.Size()))
		created = append(created, e.CreatedAt)
	}

	var (
		version   int64
		updatedAt time.Time
		pruned    []string
	)
	err = p.sql.QueryRow(ctx, sqlinline.QReplaceSessionImages,
		id.String(), expectedVersion, prefix, p.now(),
		ids, idxs, kinds, keys, mimes, widths, heights, sizes, created,
	).Scan(&version, &updatedAt, &pruned)
	if err != nil {
		p.discard(ctx, keys...)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransformationInFlight
		}
		return nil, fmt.Errorf("replace session images: %w", err)
	}
	p.discard(ctx, pruned...)

	// The original image row shares the session's creation time.
	return &Session{ID: id, History: h, Version: version, CreatedAt: stored[0].createdAt, UpdatedAt: updatedAt}, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	var (
		deleted int64
		keys    []string
	)
	if err := p.sql.QueryRow(ctx, sqlinline.QDeleteSession, id.String()).Scan(&deleted, &keys); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if deleted == 0 {
		return domain.ErrNotFound
	}
	p.discard(ctx, keys...)
	return nil
}

type imageRow struct {
	idx        int
	entryID    uuid.UUID
	kind       string
	storageKey string
	mime       string
	width      int
	height     int
	bytes      int
	createdAt  time.Time
}

func (p *PostgresStore) listImages(ctx context.Context, id uuid.UUID) ([]imageRow, error) {
	rows, err := p.sql.Query(ctx, sqlinline.QListSessionImages, id.String())
	if err != nil {
		return nil, fmt.Errorf("list session images: %w", err)
	}
	defer rows.Close()

	var out []imageRow
	for rows.Next() {
		var (
			r       imageRow
			entryID string
		)
		if err := rows.Scan(&r.idx, &entryID, &r.kind, &r.storageKey, &r.mime, &r.width, &r.height, &r.bytes, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan session image: %w", err)
		}
		parsed, err := uuid.Parse(entryID)
		if err != nil {
			return nil, fmt.Errorf("scan session image: %w", err)
		}
		r.entryID = parsed
		if r.idx != len(out) {
			return nil, fmt.Errorf("session %s: image index %d out of sequence", id, r.idx)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session images: %w", err)
	}
	return out, nil
}

// discard removes blobs that are no longer referenced. Failures only leak
// storage, so they are logged rather than returned.
func (p *PostgresStore) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := p.blobs.Delete(ctx, key); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("discard image blob")
		}
	}
}

func blobKey(sessionID uuid.UUID, e Entry) string {
	return fmt.Sprintf("sessions/%s/%s.%s", sessionID, e.ID, e.Image.Format.Extension())
}

var _ Store = (*PostgresStore)(nil)
