// Package history owns the chained-transformation state: the ordered list of
// images a session has produced and the orchestrator that extends it.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"imagechain/internal/domain"
)

// Entry is one image in a history. Kind is empty for the original upload.
type Entry struct {
	ID        uuid.UUID
	Image     domain.Image
	Kind      domain.Kind
	CreatedAt time.Time
	// Bytes is the stored size. Stores set it when they return the entry
	// without Image.Data; Store.Load fills the data in.
	Bytes int

	blobKey string
}

// Loaded reports whether the encoded image bytes are present.
func (e Entry) Loaded() bool {
	return e.Image.Data != nil
}

// Size is the encoded size, whether or not the bytes are loaded.
func (e Entry) Size() int {
	if e.Loaded() {
		return len(e.Image.Data)
	}
	return e.Bytes
}

// History is an immutable ordered sequence of entries. Index 0 is the
// original; index n is the result of the n-th applied transformation. Every
// mutating method returns a new History and leaves the receiver untouched.
type History struct {
	entries []Entry
}

// New starts a history from the original upload.
func New(original Entry) History {
	return History{entries: []Entry{original}}
}

// FromEntries rebuilds a history loaded from storage.
func FromEntries(entries []Entry) (History, error) {
	if len(entries) == 0 {
		return History{}, fmt.Errorf("history: at least the original entry is required")
	}
	return History{entries: append([]Entry(nil), entries...)}, nil
}

func (h History) Len() int {
	return len(h.entries)
}

// At returns entry i.
func (h History) At(i int) (Entry, error) {
	if i < 0 || i >= len(h.entries) {
		return Entry{}, fmt.Errorf("%w: %d not in [0,%d)", domain.ErrInvalidIndex, i, len(h.entries))
	}
	return h.entries[i], nil
}

// Tail returns the newest entry.
func (h History) Tail() Entry {
	if len(h.entries) == 0 {
		return Entry{}
	}
	return h.entries[len(h.entries)-1]
}

// Entries returns a copy of all entries.
func (h History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// TruncateTo keeps entries 0..k and drops everything after k.
func (h History) TruncateTo(k int) (History, error) {
	if _, err := h.At(k); err != nil {
		return History{}, err
	}
	return History{entries: append([]Entry(nil), h.entries[:k+1]...)}, nil
}

// Remove drops entry k and every entry derived from it. The original cannot
// be removed.
func (h History) Remove(k int) (History, error) {
	if k == 0 {
		return History{}, fmt.Errorf("%w: the original image cannot be removed", domain.ErrInvalidIndex)
	}
	if _, err := h.At(k); err != nil {
		return History{}, err
	}
	return History{entries: append([]Entry(nil), h.entries[:k]...)}, nil
}

// Append adds e as the new tail.
func (h History) Append(e Entry) History {
	out := make([]Entry, len(h.entries), len(h.entries)+1)
	copy(out, h.entries)
	return History{entries: append(out, e)}
}

// SharedPrefix returns how many leading entries h and other have in common,
// compared by ID.
func (h History) SharedPrefix(other History) int {
	n := 0
	for n < len(h.entries) && n < len(other.entries) && h.entries[n].ID == other.entries[n].ID {
		n++
	}
	return n
}
