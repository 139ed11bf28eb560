package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/once/pkg/once"
)

// Repository implements once.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	entries map[string]*once.Entry
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		entries: make(map[string]*once.Entry),
	}
}

func (r *Repository) CreateEntry(ctx context.Context, entry *once.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return once.ErrEntryExists
	}

	// Create a copy to avoid external modifications
	r.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (*once.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, once.ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

func (r *Repository) MarkServed(ctx context.Context, id string, servedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return once.ErrEntryNotFound
	}
	if entry.State != once.EntryStatePending {
		return once.ErrEntryAlreadyServed
	}
	entry.State = once.EntryStateServed
	entry.ServedAt = &servedAt
	return nil
}

func (r *Repository) ListEntriesByState(ctx context.Context, state once.EntryState) ([]*once.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*once.Entry
	for _, entry := range r.entries {
		if entry.State == state {
			result = append(result, copyEntry(entry))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		return once.ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

func copyEntry(entry *once.Entry) *once.Entry {
	c := *entry
	if entry.ServedAt != nil {
		t := *entry.ServedAt
		c.ServedAt = &t
	}
	return &c
}
