// Package session holds the bearer token for the backend API. The token
// is an explicit object injected where needed, persisted under the user
// config dir, with subscriber callbacks for auth-state changes instead
// of a global event bus.
package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Session owns the current auth token. Safe for concurrent use.
type Session struct {
	mu          sync.RWMutex
	token       string
	path        string
	subscribers []func(authenticated bool)
}

// DefaultTokenPath returns the token file location under the user
// config dir.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", eris.Wrap(err, "session: resolve config dir")
	}
	return filepath.Join(dir, "carbonlens", "token"), nil
}

// Load opens the session at path, reading any previously stored token.
// A missing file is an anonymous session, not an error.
func Load(path string) (*Session, error) {
	s := &Session{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, eris.Wrap(err, "session: read token file")
	}
	s.token = strings.TrimSpace(string(data))
	return s, nil
}

// Token returns the current bearer token, or "" when anonymous.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a token is present.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// Subscribe registers a callback invoked after every auth-state change.
func (s *Session) Subscribe(fn func(authenticated bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// SetToken stores the token in memory and on disk, then notifies
// subscribers.
func (s *Session) SetToken(token string) error {
	s.mu.Lock()
	s.token = token
	subs := append([]func(bool){}, s.subscribers...)
	s.mu.Unlock()

	if err := s.persist(token); err != nil {
		return err
	}
	for _, fn := range subs {
		fn(token != "")
	}
	return nil
}

// Clear forgets the token and removes the token file.
func (s *Session) Clear() error {
	return s.SetToken("")
}

func (s *Session) persist(token string) error {
	if s.path == "" {
		return nil
	}
	if token == "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return eris.Wrap(err, "session: remove token file")
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return eris.Wrap(err, "session: create config dir")
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return eris.Wrap(err, "session: write token file")
	}
	return nil
}
