// Package locate resolves which stored messages must be removed to clear an
// invalid-thinking-signature failure: the root-cause message that actually
// holds the bad thinking block, and the symptom messages that merely recorded
// the resulting API failures.
package locate

import (
	"github.com/hexmos/session-repair/internal/storage"
)

// Target is the root-cause message identified for removal. LowConfidence is
// set when the locator had to fall back to the earliest assistant message
// because the reported position was missing, non-positive, or out of range.
type Target struct {
	Message       *storage.Message
	LowConfidence bool
}

// Locator identifies removal targets within a single session.
type Locator struct {
	store *storage.Store
}

// NewLocator creates a Locator over the given store.
func NewLocator(store *storage.Store) *Locator {
	return &Locator{store: store}
}

// PrimaryTarget finds the message holding the invalid thinking block.
//
// The provider reports a slot index N into the linear API request, where
// assistant entries occupy every other slot starting at 1, so N maps to the
// assistant ordinal (N-1)/2 over the session's assistant messages in creation
// order. That assumes a strictly alternating turn structure; when the
// assumption cannot be applied (nil position, N <= 0, ordinal out of range)
// the earliest assistant message is returned with LowConfidence set rather
// than guessing further. Returns nil when the session has no assistant
// messages at all.
func (l *Locator) PrimaryTarget(sessionID string, pos *storage.Position) (*Target, error) {
	messages, err := l.store.SessionMessages(sessionID)
	if err != nil {
		return nil, err
	}

	var assistants []*storage.Message
	for _, m := range messages {
		if m.Role == storage.RoleAssistant {
			assistants = append(assistants, m)
		}
	}
	if len(assistants) == 0 {
		return nil, nil
	}

	if pos != nil && pos.MessageIndex > 0 {
		ordinal := (pos.MessageIndex - 1) / 2
		if ordinal < len(assistants) {
			return &Target{Message: assistants[ordinal]}, nil
		}
	}

	return &Target{Message: assistants[0], LowConfidence: true}, nil
}

// ErrorRecords returns every message in the session whose error text matches
// the thinking-signature failure. These recorded failed API calls caused by
// the root-cause message and are removed alongside it.
func (l *Locator) ErrorRecords(sessionID string) ([]*storage.Message, error) {
	messages, err := l.store.SessionMessages(sessionID)
	if err != nil {
		return nil, err
	}

	var records []*storage.Message
	for _, m := range messages {
		if m.HasThinkingSignatureError() {
			records = append(records, m)
		}
	}
	return records, nil
}
