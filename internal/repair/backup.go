package repair

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// backup copies every file into a fresh timestamped directory under the
// backup root, mirroring each file's path relative to the store root. Any
// failure aborts with a *BackupError before the caller deletes anything.
func (r *Repairer) backup(sessionID string, files []string) (string, error) {
	name := sessionID
	if len(name) > 20 {
		name = name[:20]
	}
	backupDir := filepath.Join(r.store.BackupDir,
		fmt.Sprintf("session_%s_%s", name, time.Now().Format("20060102_150405")))

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", &BackupError{Path: backupDir, Err: err}
	}

	for _, path := range files {
		rel, err := r.store.RelPath(path)
		if err != nil {
			return "", &BackupError{Path: path, Err: err}
		}
		dest := filepath.Join(backupDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", &BackupError{Path: dest, Err: err}
		}
		if err := copyFile(path, dest); err != nil {
			return "", &BackupError{Path: path, Err: err}
		}
	}

	return backupDir, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// deleteFiles removes each file, recording failures on the result instead of
// aborting: one locked file must not block cleanup of the rest.
func (r *Repairer) deleteFiles(files []string, result *Result) {
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", path).Msg("could not delete file")
			result.FailedDeletes = append(result.FailedDeletes, FailedDelete{
				Path: path,
				Err:  err.Error(),
			})
		}
	}
}

// removePartDir drops a message's now-empty part directory. Best effort: a
// directory that is non-empty or already gone is left alone.
func (r *Repairer) removePartDir(messageID string) {
	if err := os.Remove(r.store.PartDir(messageID)); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("message", messageID).Msg("part directory not removed")
	}
}
