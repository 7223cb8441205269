package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// Message is the stored record for one conversation turn.
type Message struct {
	ID         string        `json:"id"`
	Role       string        `json:"role"`
	SessionID  string        `json:"sessionID,omitempty"`
	Time       MessageTime   `json:"time"`
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// FilePath is where the record was read from; not part of the document.
	FilePath string `json:"-"`
}

// MessageTime carries the host's creation timestamp in unix milliseconds.
type MessageTime struct {
	Created int64 `json:"created"`
}

// MessageError is the host's record of a failed API call.
type MessageError struct {
	Name string           `json:"name,omitempty"`
	Data MessageErrorData `json:"data"`
}

// MessageErrorData holds the free-text error description.
type MessageErrorData struct {
	Message string `json:"message"`
}

// Roles used by the host application.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrorText returns the free-text error message, or "" when the message
// recorded no error.
func (m *Message) ErrorText() string {
	if m.Error == nil {
		return ""
	}
	return m.Error.Data.Message
}

// HasThinkingSignatureError reports whether the message recorded the
// invalid-thinking-block-signature failure this tool repairs. All three
// markers must be present; error texts matching only a subset are unrelated
// failures.
func (m *Message) HasThinkingSignatureError() bool {
	text := m.ErrorText()
	return strings.Contains(text, "Invalid") &&
		strings.Contains(text, "signature") &&
		strings.Contains(text, "thinking")
}

// Position is the (message slot, content slot) coordinate the provider
// reports inside its error text, e.g. "messages.1.content.0". The slot index
// counts entries of the linear API request, not the store's message order.
type Position struct {
	MessageIndex int `json:"message_index"`
	ContentIndex int `json:"content_index"`
}

var positionPattern = regexp.MustCompile(`messages\.(\d+)\.content\.(\d+)`)

// ParsePosition extracts a Position from provider error text. Returns nil
// when the text carries no position, which callers treat as "fall back to the
// default target".
func ParsePosition(errText string) *Position {
	m := positionPattern.FindStringSubmatch(errText)
	if m == nil {
		return nil
	}
	msgIdx, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	contentIdx, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return &Position{MessageIndex: msgIdx, ContentIndex: contentIdx}
}

// ReadMessage reads and parses one message file. A document that fails to
// parse gets a single repair pass before the read is given up on; repair
// output is never written back.
func (s *Store) ReadMessage(path string) (*Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading message file: %w", err)
	}

	var msg Message
	if uerr := json.Unmarshal(raw, &msg); uerr != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), uerr)
		}
		if rerr := json.Unmarshal([]byte(repaired), &msg); rerr != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), uerr)
		}
		log.Debug().Str("file", path).Msg("message document recovered by JSON repair")
	}

	if msg.ID == "" {
		msg.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	msg.FilePath = path
	return &msg, nil
}

// SessionMessages reads every message of a session, sorted by creation time
// ascending. Unreadable files are skipped with a debug log; a session
// directory that does not exist yields an empty list.
func (s *Store) SessionMessages(sessionID string) ([]*Message, error) {
	files, err := s.MessageFiles(sessionID)
	if err != nil {
		return nil, err
	}

	var messages []*Message
	for _, path := range files {
		msg, err := s.ReadMessage(path)
		if err != nil {
			log.Debug().Err(err).Str("file", path).Msg("skipping unreadable message file")
			continue
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Time.Created < messages[j].Time.Created
	})
	return messages, nil
}
