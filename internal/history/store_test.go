package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"imagechain/internal/domain"
)

func TestMemoryStoreReplaceChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	all := entries(2)
	s := &Session{ID: uuid.New(), History: New(all[0]), Version: 1, CreatedAt: time.Now()}
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := s.History.Append(all[1])
	updated, err := store.Replace(ctx, s.ID, 1, next)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if updated.Version != 2 || updated.History.Len() != 2 {
		t.Fatalf("updated = version %d len %d", updated.Version, updated.History.Len())
	}

	if _, err := store.Replace(ctx, s.ID, 1, s.History); !errors.Is(err, domain.ErrTransformationInFlight) {
		t.Fatalf("stale replace err = %v", err)
	}
	got, _ := store.Get(ctx, s.ID)
	if got.History.Len() != 2 {
		t.Fatalf("stale replace changed history: len %d", got.History.Len())
	}
}

func TestMemoryStoreMissingSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()
	if _, err := store.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
	if _, err := store.Replace(ctx, id, 1, History{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Replace err = %v", err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete err = %v", err)
	}
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreTTL(time.Hour)
	store.now = func() time.Time { return clock }

	all := entries(1)
	idle := &Session{ID: uuid.New(), History: New(all[0]), Version: 1}
	busy := &Session{ID: uuid.New(), History: New(all[0]), Version: 1}
	for _, s := range []*Session{idle, busy} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// Reads keep a session alive.
	clock = clock.Add(40 * time.Minute)
	if _, err := store.Get(ctx, busy.ID); err != nil {
		t.Fatalf("Get busy: %v", err)
	}
	clock = clock.Add(40 * time.Minute)
	if _, err := store.Get(ctx, busy.ID); err != nil {
		t.Fatalf("busy session expired: %v", err)
	}
	if _, ok := store.sessions[idle.ID]; ok {
		t.Fatal("idle session survived the sweep")
	}
	if _, err := store.Get(ctx, idle.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("idle Get err = %v", err)
	}
}

func TestMemoryStoreWithoutTTLKeepsSessions(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	s := &Session{ID: uuid.New(), History: New(entries(1)[0]), Version: 1}
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock = clock.Add(1000 * time.Hour)
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
}
