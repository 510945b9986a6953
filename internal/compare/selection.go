package compare

import (
	"context"
	"fmt"
	"sync"

	"vesta/internal/store"
)

// Comparer fetches a comparison table for listing ids
type Comparer interface {
	Compare(ctx context.Context, ids []string) (*Table, error)
}

// Selection is the set of listings the user picked for comparison. All
// selected listings share one category.
type Selection struct {
	mu    sync.Mutex
	items []*store.Listing
	limit int
}

// NewSelection creates an empty selection capped at MaxItems
func NewSelection() *Selection {
	return &Selection{limit: MaxItems}
}

// Toggle adds l, or removes it when already selected. Adding a listing
// of another category or adding to a full selection does nothing. The
// result reports whether l is selected afterwards.
func (s *Selection) Toggle(l *store.Listing) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it.ID == l.ID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return false
		}
	}
	if len(s.items) > 0 && s.items[0].Category != l.Category {
		return false
	}
	if len(s.items) >= s.limit {
		return false
	}
	s.items = append(s.items, l)
	return true
}

// Contains reports whether the listing id is selected
func (s *Selection) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Category is the category of the current selection, "" when empty
func (s *Selection) Category() store.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return ""
	}
	return s.items[0].Category
}

// Len returns the number of selected listings
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IDs returns the selected ids in selection order
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.items))
	for i, it := range s.items {
		ids[i] = it.ID
	}
	return ids
}

// Clear empties the selection
func (s *Selection) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// Compare requests the table for the current selection
func (s *Selection) Compare(ctx context.Context, c Comparer) (*Table, error) {
	ids := s.IDs()
	if len(ids) < MinItems {
		return nil, fmt.Errorf("select at least %d listings to compare: %w", MinItems, store.ErrInvalid)
	}
	return c.Compare(ctx, ids)
}
