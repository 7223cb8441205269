package repair

import (
	"github.com/rs/zerolog/log"
)

// rewriteSessionMetadata scrubs removed message IDs out of the session
// document's three views of the message set: the messageOrder index, the
// messages lookup map, and conversation.history. The document is loaded
// once, all three filters applied in memory, and written back only when
// something actually changed, so a crash can never leave the three views
// disagreeing with each other.
//
// Session metadata is sharded across project directories; every shard is
// searched and the file that contains the session is patched. Returns false
// when no shard holds the session or nothing referenced the removed IDs.
func (r *Repairer) rewriteSessionMetadata(sessionID string, removedIDs []string) (bool, error) {
	path, err := r.store.FindSessionFile(sessionID)
	if err != nil {
		return false, err
	}
	if path == "" {
		log.Debug().Str("session", sessionID).Msg("no session metadata found to rewrite")
		return false, nil
	}

	doc, err := r.store.ReadSessionDoc(path)
	if err != nil {
		return false, err
	}

	removed := make(map[string]bool, len(removedIDs))
	for _, id := range removedIDs {
		removed[id] = true
	}

	if !scrubSessionDoc(doc, removed) {
		return false, nil
	}
	if err := r.store.WriteSessionDoc(path, doc); err != nil {
		return false, err
	}
	return true, nil
}

// scrubSessionDoc filters the removed IDs out of the document in place and
// reports whether anything changed. Structures that are absent or of an
// unexpected shape pass through untouched.
func scrubSessionDoc(doc map[string]any, removed map[string]bool) bool {
	modified := false

	if order, ok := doc["messageOrder"].([]any); ok {
		kept := make([]any, 0, len(order))
		dropped := false
		for _, v := range order {
			if id, ok := v.(string); ok && removed[id] {
				dropped = true
				continue
			}
			kept = append(kept, v)
		}
		if dropped {
			doc["messageOrder"] = kept
			modified = true
		}
	}

	if messages, ok := doc["messages"].(map[string]any); ok {
		for id := range removed {
			if _, ok := messages[id]; ok {
				delete(messages, id)
				modified = true
			}
		}
	}

	if conversation, ok := doc["conversation"].(map[string]any); ok {
		if history, ok := conversation["history"].([]any); ok {
			kept := make([]any, 0, len(history))
			dropped := false
			for _, e := range history {
				if entry, ok := e.(map[string]any); ok {
					if id, ok := entry["messageId"].(string); ok && removed[id] {
						dropped = true
						continue
					}
				}
				// Entries that are not structured per message pass through.
				kept = append(kept, e)
			}
			if dropped {
				conversation["history"] = kept
				modified = true
			}
		}
	}

	return modified
}
