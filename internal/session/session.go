// Package session persists the client's bearer token and user between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vesta/internal/store"
)

// FileName is the session file created under the user config dir
const FileName = "session.json"

type state struct {
	Token string      `json:"token"`
	User  *store.User `json:"user,omitempty"`
}

// Session is a JSON file holding the token and serialized user
type Session struct {
	path string

	mu    sync.RWMutex
	state state
}

// DefaultPath is <user config dir>/vesta/session.json
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "vesta", FileName), nil
}

// Open loads the session at path. A missing file is an empty session.
func Open(path string) (*Session, error) {
	s := &Session{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file
func (s *Session) Path() string {
	return s.path
}

// Token returns the saved bearer token, "" when logged out.
// It matches api.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// User returns the saved user or nil
func (s *Session) User() *store.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// LoggedIn reports whether a token is saved
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// Save stores token and user and writes the file
func (s *Session) Save(token string, user *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state{Token: token, User: user}
	return s.write()
}

// Clear forgets the session and removes the file
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// write replaces the file atomically; callers hold mu.
func (s *Session) write() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
