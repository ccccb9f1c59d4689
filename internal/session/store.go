package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store handles persistence of sessions.
type Store struct {
	basePath string
}

// NewStore creates a session store under configPath/sessions.
func NewStore(configPath string) *Store {
	return &Store{
		basePath: filepath.Join(configPath, "sessions"),
	}
}

// RepoHash generates a consistent hash for a repository path.
// This is used to scope sessions to a specific project.
func (s *Store) RepoHash(repoPath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(repoPath)))
	return hex.EncodeToString(hash[:])[:12] // Short hash is sufficient
}

// Save persists a session to disk.
func (s *Store) Save(session *Session) error {
	if session.ID == "" {
		return errors.New("session has no id")
	}
	if session.RepoHash == "" {
		session.RepoHash = s.RepoHash(session.RepoPath)
	}

	dir := filepath.Join(s.basePath, session.RepoHash)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.json", session.ID))
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// sessions hold tool output, which can include file contents
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// ErrNotFound is returned by Load for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Load retrieves a specific session.
func (s *Store) Load(id string, repoPath string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	repoHash := s.RepoHash(repoPath)
	filename := filepath.Join(s.basePath, repoHash, fmt.Sprintf("%s.json", id))

	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// List returns all sessions for a given repository.
// Sessions are sorted by UpdatedAt (newest first).
func (s *Store) List(repoPath string) ([]SessionMeta, error) {
	repoHash := s.RepoHash(repoPath)
	dir := filepath.Join(s.basePath, repoHash)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []SessionMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	sessions := []SessionMeta{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue // Skip invalid files
		}

		sessions = append(sessions, sess.Meta())
	}

	// Sort by UpdatedAt descending
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

// Latest returns the most recently updated session for repoPath, or
// ErrNotFound when there is none.
func (s *Store) Latest(repoPath string) (*Session, error) {
	metas, err := s.List(repoPath)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(metas[0].ID, repoPath)
}

// Delete removes a session file.
func (s *Store) Delete(id string, repoPath string) error {
	if err := checkID(id); err != nil {
		return err
	}
	filename := filepath.Join(s.basePath, s.RepoHash(repoPath), fmt.Sprintf("%s.json", id))
	if err := os.Remove(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
