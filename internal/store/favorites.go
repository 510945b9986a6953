package store

import (
	"fmt"
	"time"
)

// AddFavorite marks listingID as a favorite of userID and returns the
// listing with its updated favorite count.
func (s *Store) AddFavorite(userID, listingID string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}

	favs := s.favorites[userID]
	if favs == nil {
		favs = make(map[string]time.Time)
		s.favorites[userID] = favs
	}
	if _, exists := favs[listingID]; exists {
		return nil, fmt.Errorf("favorite %s: %w", listingID, ErrConflict)
	}
	favs[listingID] = s.now().UTC()
	l.FavoriteCount++
	return cloneListing(l), nil
}

// RemoveFavorite drops a favorite and returns the updated listing
func (s *Store) RemoveFavorite(userID, listingID string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	favs := s.favorites[userID]
	if _, exists := favs[listingID]; !exists {
		return nil, fmt.Errorf("favorite %s: %w", listingID, ErrNotFound)
	}
	delete(favs, listingID)
	if len(favs) == 0 {
		delete(s.favorites, userID)
	}

	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}
	if l.FavoriteCount > 0 {
		l.FavoriteCount--
	}
	return cloneListing(l), nil
}

// Favorites returns the user's favorite listings, most recent first
func (s *Store) Favorites(userID string) []*Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type fav struct {
		l  *Listing
		at time.Time
	}
	favs := make([]fav, 0, len(s.favorites[userID]))
	for id, at := range s.favorites[userID] {
		if l, ok := s.listings[id]; ok {
			favs = append(favs, fav{l: cloneListing(l), at: at})
		}
	}
	sortByTime(favs, func(f fav) time.Time { return f.at }, true)

	out := make([]*Listing, len(favs))
	for i, f := range favs {
		out[i] = f.l
	}
	return out
}

// FavoriteStatus reports whether userID favorited the listing and its count
func (s *Store) FavoriteStatus(userID, listingID string) (bool, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	if !ok {
		return false, 0, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}
	_, fav := s.favorites[userID][listingID]
	return fav, l.FavoriteCount, nil
}
