// Package session persists the client-local identity: the opaque user id, the
// current lobby, and the chosen display name. It replaces ambient key-value
// lookups with an explicit store handed to the components that need it.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Session is the identity scoped to this device. Cleared on game end or lobby
// closure.
type Session struct {
	UserID     string `json:"user_id"`
	LobbyID    string `json:"lobby_id"`
	PlayerName string `json:"player_name"`
}

// Complete reports whether the session carries everything a game screen needs.
func (s Session) Complete() bool {
	return s.UserID != "" && s.LobbyID != "" && s.PlayerName != ""
}

// Store reads and writes one session file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath resolves the session file location, honoring the
// STORYGUESS_SESSION override.
func DefaultPath() (string, error) {
	if p := os.Getenv("STORYGUESS_SESSION"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "storyguess", "session.json"), nil
}

// Load returns the stored session, or a zero session when none exists.
func (st *Store) Load() (Session, error) {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parsing session: %w", err)
	}
	return s, nil
}

func (st *Store) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(st.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Clear removes the session file. Clearing an absent session is not an error.
func (st *Store) Clear() error {
	err := os.Remove(st.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
