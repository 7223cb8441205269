// Package scan walks the message store and reports every message carrying
// the invalid-thinking-signature error. Scanning is read-only.
package scan

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hexmos/session-repair/internal/storage"
)

// Record describes one corrupted message found in the store.
type Record struct {
	MessageID    string            `json:"message_id"`
	SessionID    string            `json:"session_id"`
	SessionTitle string            `json:"session_title"`
	ErrorText    string            `json:"error_message"`
	Position     *storage.Position `json:"position,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	TimeString   string            `json:"timestamp_str"`
	ModelID      string            `json:"model_id"`
	ProviderID   string            `json:"provider_id"`
	FilePath     string            `json:"file_path"`
}

// Scanner finds corrupted messages across the whole store.
type Scanner struct {
	store *storage.Store
}

// NewScanner creates a Scanner over the given store.
func NewScanner(store *storage.Store) *Scanner {
	return &Scanner{store: store}
}

// Scan enumerates every message in the store and returns the corrupted ones,
// newest first. Unreadable message files are skipped; only a missing or
// unlistable message root fails the scan.
func (s *Scanner) Scan() ([]Record, error) {
	sessionIDs, err := s.store.SessionDirs()
	if err != nil {
		return nil, err
	}

	titles := map[string]string{}
	var records []Record

	for _, sessionID := range sessionIDs {
		files, err := s.store.MessageFiles(sessionID)
		if err != nil {
			log.Debug().Err(err).Str("session", sessionID).Msg("skipping unlistable session directory")
			continue
		}
		for _, path := range files {
			msg, err := s.store.ReadMessage(path)
			if err != nil {
				log.Debug().Err(err).Str("file", path).Msg("skipping unreadable message file")
				continue
			}
			if !msg.HasThinkingSignatureError() {
				continue
			}

			title, ok := titles[sessionID]
			if !ok {
				title = s.store.SessionTitle(sessionID)
				titles[sessionID] = title
			}

			errText := msg.ErrorText()
			records = append(records, Record{
				MessageID:    msg.ID,
				SessionID:    sessionID,
				SessionTitle: title,
				ErrorText:    errText,
				Position:     storage.ParsePosition(errText),
				Timestamp:    msg.Time.Created,
				TimeString:   formatMillis(msg.Time.Created),
				ModelID:      orUnknown(msg.ModelID),
				ProviderID:   orUnknown(msg.ProviderID),
				FilePath:     path,
			})
		}
	}

	// Newest first; stable so same-timestamp records keep store order, which
	// downstream grouping relies on.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	return records, nil
}

func formatMillis(millis int64) string {
	if millis == 0 {
		return "Unknown"
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04:05")
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
