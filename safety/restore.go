package safety

import (
	"fmt"
	"os"
	"path/filepath"

	"imagededup/hashing"
	"imagededup/logging"
	"imagededup/types"
)

// Restore copies files from a prior pre-deletion backup back to their
// original locations. Entries whose original already exists are treated as
// already restored, so running Restore twice is harmless.
func (e *Engine) Restore(backupID string) (*types.RestoreResult, error) {
	manifest, err := e.LoadManifest(types.BackupPreDeletion, backupID)
	if err != nil {
		return nil, err
	}

	result := &types.RestoreResult{
		BackupID:     backupID,
		TotalEntries: len(manifest.Entries),
	}

	for _, entry := range manifest.Entries {
		if _, err := os.Stat(entry.OriginalPath); err == nil {
			result.AlreadyPresent = append(result.AlreadyPresent, entry.OriginalPath)
			continue
		}

		if err := e.restoreEntry(entry); err != nil {
			logging.LogError("restore failed for %s: %v", entry.OriginalPath, err)
			result.Failed = append(result.Failed, types.FailedDeletion{
				Path:  entry.OriginalPath,
				Error: err.Error(),
			})
			continue
		}
		result.Restored = append(result.Restored, entry.OriginalPath)
	}

	status := types.StatusCompleted
	if len(result.Failed) > 0 {
		status = types.StatusPartial
	}
	e.appendLog("restore", status, len(result.Restored)+len(result.AlreadyPresent), len(result.Failed), result.TotalEntries, backupID)

	return result, nil
}

// restoreEntry copies one backup file back and re-verifies its digest.
func (e *Engine) restoreEntry(entry types.ManifestEntry) error {
	if entry.BackupPath == "" {
		return fmt.Errorf("manifest entry for %s has no backup copy", entry.OriginalPath)
	}

	if err := os.MkdirAll(filepath.Dir(entry.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("cannot recreate directory for %s: %w", entry.OriginalPath, err)
	}

	if err := copyFile(entry.BackupPath, entry.OriginalPath); err != nil {
		return err
	}

	ok, err := hashing.VerifyFile(entry.OriginalPath, entry.Digest)
	if err != nil {
		return fmt.Errorf("cannot verify restored file %s: %w", entry.OriginalPath, err)
	}
	if !ok {
		return &types.BackupIntegrityError{
			Path:         entry.OriginalPath,
			SourceDigest: entry.Digest,
		}
	}

	return nil
}
