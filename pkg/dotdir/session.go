package dotdir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionFileName = "session.json"

// SessionState records the fragments admitted to the working-memory window
// so that separate CLI invocations can rebuild it. Only hashes are stored;
// content, tags, and timestamps are recovered from the content store.
type SessionState struct {
	// Hashes lists admitted fragment hashes in admission order.
	Hashes []string `json:"hashes"`

	// UpdatedAt is when the session state was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadSessionState reads the persisted session state from the target
// directory. Returns nil without error when no session exists.
func (m *Manager) LoadSessionState(overrideDir string) (*SessionState, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, nil
	}

	path := filepath.Join(target, sessionFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}

	return &state, nil
}

// SaveSession persists the session state to the target directory.
func (m *Manager) SaveSession(overrideDir string, state *SessionState) error {
	if state == nil {
		return fmt.Errorf("nil session state")
	}

	target, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("no engram directory found, run \"engram init\" first")
	}

	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}

	path := filepath.Join(target, sessionFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}

	return nil
}

// ClearSession removes the persisted session state. Clearing a session
// that does not exist is not an error.
func (m *Manager) ClearSession(overrideDir string) error {
	target, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if target == "" {
		return nil
	}

	path := filepath.Join(target, sessionFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session state: %w", err)
	}

	return nil
}
