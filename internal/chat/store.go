/*
This file defines the HistoryStore interface and its file-backed
implementation. History is loaded once at startup and checkpointed whole;
the in-memory ring in ServerChat is the live copy.
*/
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// HistoryStore persists the room's recent history across restarts.
type HistoryStore interface {
	// Load returns the persisted history, oldest first. A store that has
	// never been written returns an empty slice.
	Load() ([]ChatMessage, error)

	// Save replaces the persisted history with the given messages.
	Save(messages []ChatMessage) error
}

// FileHistoryStore is the JSON-file-backed HistoryStore.
type FileHistoryStore struct {
	path string
}

// NewFileHistoryStore creates a store at the given path. The file is not
// touched until the first Save.
func NewFileHistoryStore(path string) *FileHistoryStore {
	return &FileHistoryStore{path: path}
}

// Load reads the persisted history. A missing file is an empty history; an
// unreadable one is an error the caller must treat as fatal.
func (s *FileHistoryStore) Load() ([]ChatMessage, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chat history %s: %w", s.path, err)
	}

	var messages []ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("chat history %s is corrupt: %w", s.path, err)
	}
	return messages, nil
}

// Save writes the history with an atomic temp-file replace.
func (s *FileHistoryStore) Save(messages []ChatMessage) error {
	raw, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write chat history: %w", err)
	}

	return os.Rename(tmp, s.path)
}
