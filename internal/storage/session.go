package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// Session titles fall back to these when metadata is missing or unreadable.
const (
	TitleUntitled = "Untitled"
	TitleUnknown  = "Unknown"
)

// FindSessionFile locates the metadata file for a session. Session metadata
// is sharded by project directory, so every shard is searched; the empty
// string means no shard contains the session.
func (s *Store) FindSessionFile(sessionID string) (string, error) {
	dirs, err := s.SessionProjectDirs()
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, sessionID+".json")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// ReadSessionDoc reads session metadata as a raw document so unknown fields
// pass through a rewrite untouched. Parse failures get one repair pass, the
// same as message reads.
func (s *Store) ReadSessionDoc(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var doc map[string]any
	if uerr := json.Unmarshal(raw, &doc); uerr != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, fmt.Errorf("parsing session file %s: %w", path, uerr)
		}
		if rerr := json.Unmarshal([]byte(repaired), &doc); rerr != nil {
			return nil, fmt.Errorf("parsing session file %s: %w", path, uerr)
		}
		log.Debug().Str("file", path).Msg("session document recovered by JSON repair")
	}
	return doc, nil
}

// WriteSessionDoc writes session metadata back with the host's two-space
// indentation.
func (s *Store) WriteSessionDoc(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// SessionTitle resolves a session's title, best effort. Missing metadata,
// unreadable metadata, or an absent title field never fail a caller; they
// yield the Unknown/Untitled sentinels instead.
func (s *Store) SessionTitle(sessionID string) string {
	path, err := s.FindSessionFile(sessionID)
	if err != nil || path == "" {
		return TitleUnknown
	}
	doc, err := s.ReadSessionDoc(path)
	if err != nil {
		log.Debug().Err(err).Str("session", sessionID).Msg("session metadata unreadable")
		return TitleUnknown
	}
	if title, ok := doc["title"].(string); ok && title != "" {
		return title
	}
	return TitleUntitled
}
