package orchestrator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrSessionNotFound is returned when no session has been persisted yet.
var ErrSessionNotFound = errors.New("orchestrator: session not found")

// SessionStore persists finished sessions.
type SessionStore interface {
	Load() (*Session, error)
	Save(*Session) error
}

// Store keeps the most recent session as a JSON file.
type Store struct {
	path string
}

// NewStore creates a store writing to path (typically
// .jaegis/state/session.json).
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted session if present.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Save writes the session through a temp file and rename.
func (s *Store) Save(session *Session) error {
	if session == nil {
		return errors.New("orchestrator: nil session")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
