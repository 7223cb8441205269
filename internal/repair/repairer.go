// Package repair removes a session's corrupted messages and keeps the store
// consistent while doing it: every affected file is snapshotted before the
// first deletion, deletions are best-effort, and the session metadata's three
// views of the message set (messageOrder, messages map, conversation history)
// are rewritten in a single pass so no dangling reference survives.
package repair

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hexmos/session-repair/internal/locate"
	"github.com/hexmos/session-repair/internal/storage"
)

// ErrNothingToRepair is returned when a session contains no message that can
// be identified for removal. The store is untouched in that case.
var ErrNothingToRepair = errors.New("could not identify any messages to remove")

// BackupError reports a failed snapshot. No deletion has happened when this
// is returned; the store is untouched.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backing up %s: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// FailedDelete records one file that could not be removed during the
// best-effort deletion pass.
type FailedDelete struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result reports what a repair removed (or, on dry run, would remove).
type Result struct {
	RunID             string         `json:"run_id"`
	SessionID         string         `json:"session_id"`
	DryRun            bool           `json:"dry_run"`
	RemovedMessageIDs []string       `json:"messages_removed"`
	RemovedPartCount  int            `json:"parts_removed"`
	BackupDir         string         `json:"backup_path,omitempty"`
	FailedDeletes     []FailedDelete `json:"failed_deletes,omitempty"`
	MetadataRewritten bool           `json:"metadata_rewritten"`
	LowConfidence     bool           `json:"low_confidence"`
}

// Repairer removes corrupted messages from sessions.
type Repairer struct {
	store   *storage.Store
	locator *locate.Locator
}

// NewRepairer creates a Repairer over the given store.
func NewRepairer(store *storage.Store) *Repairer {
	return &Repairer{store: store, locator: locate.NewLocator(store)}
}

// Repair removes the root-cause message and every signature-error record
// from a session, along with their parts, then scrubs the session metadata.
//
// The ordering guarantee: the snapshot completes before the first deletion,
// and all deletions are attempted before the metadata rewrite. Per-file
// deletion failures are recorded in the Result but do not fail the repair;
// only an empty removal set or a snapshot failure does.
func (r *Repairer) Repair(sessionID string, pos *storage.Position, dryRun bool) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		DryRun:    dryRun,
	}

	targets, lowConfidence, err := r.removalSet(sessionID, pos)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNothingToRepair
	}
	result.LowConfidence = lowConfidence

	// Collect every file involved before touching anything.
	var files []string
	var partFiles []string
	for _, msg := range targets {
		result.RemovedMessageIDs = append(result.RemovedMessageIDs, msg.ID)
		files = append(files, msg.FilePath)

		parts, err := r.store.PartFiles(msg.ID)
		if err != nil {
			return nil, fmt.Errorf("listing parts for %s: %w", msg.ID, err)
		}
		partFiles = append(partFiles, parts...)
		files = append(files, parts...)
	}
	result.RemovedPartCount = len(partFiles)

	if dryRun {
		return result, nil
	}

	backupDir, err := r.backup(sessionID, files)
	if err != nil {
		return nil, err
	}
	result.BackupDir = backupDir

	log.Info().
		Str("run_id", result.RunID).
		Str("session", sessionID).
		Int("messages", len(targets)).
		Int("parts", len(partFiles)).
		Str("backup", backupDir).
		Msg("removing corrupted messages")

	r.deleteFiles(partFiles, result)
	var messageFiles []string
	for _, msg := range targets {
		messageFiles = append(messageFiles, msg.FilePath)
	}
	r.deleteFiles(messageFiles, result)
	for _, msg := range targets {
		r.removePartDir(msg.ID)
	}

	rewritten, err := r.rewriteSessionMetadata(sessionID, result.RemovedMessageIDs)
	if err != nil {
		// Message files are already gone; report the rewrite problem without
		// failing the run, the same as a per-file delete failure. A retried
		// rewrite is idempotent.
		log.Warn().Err(err).Str("session", sessionID).Msg("session metadata rewrite failed")
	}
	result.MetadataRewritten = rewritten

	return result, nil
}

// removalSet computes the ordered, deduplicated set of messages to remove:
// the root-cause target first, then every error record.
func (r *Repairer) removalSet(sessionID string, pos *storage.Position) ([]*storage.Message, bool, error) {
	primary, err := r.locator.PrimaryTarget(sessionID, pos)
	if err != nil {
		return nil, false, err
	}
	errorRecords, err := r.locator.ErrorRecords(sessionID)
	if err != nil {
		return nil, false, err
	}

	var targets []*storage.Message
	seen := map[string]bool{}
	lowConfidence := false

	if primary != nil {
		targets = append(targets, primary.Message)
		seen[primary.Message.ID] = true
		lowConfidence = primary.LowConfidence
	}
	for _, msg := range errorRecords {
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		targets = append(targets, msg)
	}
	return targets, lowConfidence, nil
}
