/*
Package users binds authenticated sessions to persistent identities.

This file defines the Store interface and its file-backed implementation.
The file store keeps the whole identity map in memory, checkpointing to disk
on every mutation with an atomic replace write. A missing store file starts
empty; an unreadable one is an error the caller must treat as fatal.
*/
package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Store is the durable home of identities, keyed by UUID.
type Store interface {
	// Get looks an identity up by UUID.
	Get(uuid string) (User, bool, error)

	// FindByLoginKey looks an identity up by its credential key.
	FindByLoginKey(loginKey string) (User, bool, error)

	// Upsert inserts or replaces an identity.
	Upsert(user User) error

	// All returns every stored identity.
	All() ([]User, error)

	// Close flushes any buffered state.
	Close() error
}

// FileStore is the JSON-file-backed Store.
type FileStore struct {
	path string

	mu      sync.RWMutex
	byUUID  map[string]User
	byLogin map[string]string
}

// NewFileStore loads the store from disk. A missing file is not an error;
// the store starts empty and the file is created on first save.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		byUUID:  make(map[string]User),
		byLogin: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read user store %s: %w", path, err)
	}

	var stored []User
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("user store %s is corrupt: %w", path, err)
	}

	for _, u := range stored {
		s.byUUID[u.UUID] = u
		s.byLogin[u.LoginKey] = u.UUID
	}

	return s, nil
}

// Get looks an identity up by UUID.
func (s *FileStore) Get(uuid string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byUUID[uuid]
	return u, ok, nil
}

// FindByLoginKey looks an identity up by its credential key.
func (s *FileStore) FindByLoginKey(loginKey string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uuid, ok := s.byLogin[loginKey]
	if !ok {
		return User{}, false, nil
	}

	u, ok := s.byUUID[uuid]
	return u, ok, nil
}

// Upsert inserts or replaces an identity and checkpoints the store to disk.
func (s *FileStore) Upsert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byUUID[user.UUID] = user
	s.byLogin[user.LoginKey] = user.UUID

	return s.saveLocked()
}

// All returns every stored identity.
func (s *FileStore) All() ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.byUUID))
	for _, u := range s.byUUID {
		out = append(out, u)
	}
	return out, nil
}

// Close flushes the store to disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the store with an atomic temp-file replace so a crash
// mid-write can never corrupt the previous checkpoint. Callers hold mu.
func (s *FileStore) saveLocked() error {
	stored := make([]User, 0, len(s.byUUID))
	for _, u := range s.byUUID {
		stored = append(stored, u)
	}

	raw, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write user store: %w", err)
	}

	return os.Rename(tmp, s.path)
}

// VerifyPassword implements the authenticator's credential check. Unknown
// usernames are accepted; the account is provisioned at login with the same
// password.
func (s *FileStore) VerifyPassword(username, password string) (bool, error) {
	u, ok, err := s.FindByLoginKey(username)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil, nil
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
