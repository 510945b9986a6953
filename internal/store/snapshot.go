package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

type favoriteRecord struct {
	UserID    string
	ListingID string
	At        time.Time
}

type snapshot struct {
	Version       int
	SavedAt       time.Time
	Users         []*User
	Listings      []*Listing
	Favorites     []favoriteRecord
	Conversations []*Conversation
	Messages      []*Message
	Notifications []*Notification
}

// MarshalSnapshot encodes the whole store as msgpack
func (s *Store) MarshalSnapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{Version: snapshotVersion, SavedAt: s.now().UTC()}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	for _, l := range s.listings {
		snap.Listings = append(snap.Listings, l)
	}
	for userID, favs := range s.favorites {
		for listingID, at := range favs {
			snap.Favorites = append(snap.Favorites, favoriteRecord{UserID: userID, ListingID: listingID, At: at})
		}
	}
	for _, c := range s.conversations {
		snap.Conversations = append(snap.Conversations, c)
	}
	for _, msgs := range s.messages {
		snap.Messages = append(snap.Messages, msgs...)
	}
	for _, ns := range s.notifications {
		snap.Notifications = append(snap.Notifications, ns...)
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot replaces the store contents with a decoded snapshot
func (s *Store) UnmarshalSnapshot(data []byte) error {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d: %w", snap.Version, snapshotVersion, ErrInvalid)
	}

	users := make(map[string]*User, len(snap.Users))
	emails := make(map[string]string, len(snap.Users))
	for _, u := range snap.Users {
		users[u.ID] = u
		emails[normalizeEmail(u.Email)] = u.ID
	}
	listings := make(map[string]*Listing, len(snap.Listings))
	for _, l := range snap.Listings {
		if l.Images == nil {
			l.Images = []string{}
		}
		listings[l.ID] = l
	}
	favorites := make(map[string]map[string]time.Time)
	for _, f := range snap.Favorites {
		if favorites[f.UserID] == nil {
			favorites[f.UserID] = make(map[string]time.Time)
		}
		favorites[f.UserID][f.ListingID] = f.At
	}

	sort.SliceStable(snap.Messages, func(i, j int) bool {
		return snap.Messages[i].CreatedAt.Before(snap.Messages[j].CreatedAt)
	})
	messages := make(map[string][]*Message)
	for _, m := range snap.Messages {
		messages[m.ConversationID] = append(messages[m.ConversationID], m)
	}
	conversations := make(map[string]*Conversation, len(snap.Conversations))
	for _, c := range snap.Conversations {
		if c.Unread == nil {
			c.Unread = make(map[string]int)
		}
		if c.Hidden == nil {
			c.Hidden = make(map[string]bool)
		}
		// LastMessage must alias the stored message so read flags stay in sync.
		if msgs := messages[c.ID]; len(msgs) > 0 {
			c.LastMessage = msgs[len(msgs)-1]
		}
		conversations[c.ID] = c
	}

	sort.SliceStable(snap.Notifications, func(i, j int) bool {
		return snap.Notifications[i].CreatedAt.Before(snap.Notifications[j].CreatedAt)
	})
	notifications := make(map[string][]*Notification)
	for _, n := range snap.Notifications {
		notifications[n.UserID] = append(notifications[n.UserID], n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.emails = emails
	s.listings = listings
	s.favorites = favorites
	s.conversations = conversations
	s.messages = messages
	s.notifications = notifications
	return nil
}

// SaveFile writes a snapshot atomically to path
func (s *Store) SaveFile(path string) error {
	data, err := s.MarshalSnapshot()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadFile restores a snapshot written by SaveFile. A missing file is not
// an error and leaves the store empty.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return s.UnmarshalSnapshot(data)
}

// RunSnapshots saves the store every interval until ctx is done, then
// writes a final snapshot.
func (s *Store) RunSnapshots(ctx context.Context, path string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SaveFile(path); err != nil {
				logger.Error("snapshot failed", "path", path, "error", err)
			} else {
				logger.Debug("snapshot saved", "path", path)
			}
		case <-ctx.Done():
			if err := s.SaveFile(path); err != nil {
				logger.Error("final snapshot failed", "path", path, "error", err)
			} else {
				logger.Info("final snapshot saved", "path", path)
			}
			return
		}
	}
}
