// Package storage provides a typed, read-tolerant view of the host
// application's on-disk conversation store. The layout is fixed by the host:
//
//	<root>/message/<sessionID>/msg_*.json
//	<root>/part/<messageID>/prt_*.json
//	<root>/session/<projectDir>/<sessionID>.json
//
// Session documents are handled as raw maps so fields this tool does not know
// about survive a rewrite byte-for-byte in content.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store gives access to a conversation store rooted at a single directory.
// All paths are derived from Root; nothing is read from the environment.
type Store struct {
	Root      string
	BackupDir string
}

// New creates a Store for the given storage root and backup directory.
func New(root, backupDir string) *Store {
	return &Store{Root: root, BackupDir: backupDir}
}

// MessageRoot returns the directory holding per-session message directories.
func (s *Store) MessageRoot() string {
	return filepath.Join(s.Root, "message")
}

// MessageDir returns the directory holding one session's message files.
func (s *Store) MessageDir(sessionID string) string {
	return filepath.Join(s.MessageRoot(), sessionID)
}

// PartRoot returns the directory holding per-message part directories.
func (s *Store) PartRoot() string {
	return filepath.Join(s.Root, "part")
}

// PartDir returns the directory holding one message's part files.
func (s *Store) PartDir(messageID string) string {
	return filepath.Join(s.PartRoot(), messageID)
}

// SessionRoot returns the directory holding project-scoped session metadata.
func (s *Store) SessionRoot() string {
	return filepath.Join(s.Root, "session")
}

// SessionProjectDirs lists the project directories under the session root.
// A missing session root yields an empty list, not an error.
func (s *Store) SessionProjectDirs() ([]string, error) {
	entries, err := os.ReadDir(s.SessionRoot())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(s.SessionRoot(), e.Name()))
		}
	}
	return dirs, nil
}

// SessionDirs lists the per-session message directories under the message
// root. The message root itself must exist; scanning an absent store is a
// configuration problem the caller should hear about.
func (s *Store) SessionDirs() ([]string, error) {
	entries, err := os.ReadDir(s.MessageRoot())
	if err != nil {
		return nil, fmt.Errorf("reading message root %s: %w", s.MessageRoot(), err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// MessageFiles returns the message files for one session, sorted by name.
// A missing session directory yields an empty list.
func (s *Store) MessageFiles(sessionID string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.MessageDir(sessionID), "msg_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// PartFiles returns the part files owned by one message, sorted by name.
// A missing part directory yields an empty list.
func (s *Store) PartFiles(messageID string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.PartDir(messageID), "prt_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// RelPath returns path relative to the store root, for mirroring the store
// layout inside a backup directory.
func (s *Store) RelPath(path string) (string, error) {
	return filepath.Rel(s.Root, path)
}
