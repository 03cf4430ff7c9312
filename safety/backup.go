package safety

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"imagededup/hashing"
	"imagededup/logging"
	"imagededup/types"

	"golang.org/x/sync/errgroup"
)

// BackupBeforeAnalysis records a point-in-time reference manifest for the
// images about to be analyzed: path, size and digest per file, no copies.
func (e *Engine) BackupBeforeAnalysis(images []*types.ImageRecord) (*types.BackupManifest, error) {
	manifest := &types.BackupManifest{
		ID:        e.newBackupID(),
		Kind:      types.BackupPreAnalysis,
		CreatedAt: e.now(),
		Version:   manifestVersion,
	}

	for _, img := range images {
		digest := img.Digest
		if digest == "" {
			computed, err := hashing.DigestFile(img.Path)
			if err != nil {
				logging.LogWarning("pre-analysis backup skipping unreadable file %s: %v", img.Path, err)
				continue
			}
			digest = computed
		}
		manifest.Entries = append(manifest.Entries, types.ManifestEntry{
			OriginalPath: img.Path,
			Digest:       digest,
			Size:         img.Size,
			Verified:     true,
		})
		manifest.TotalBytes += img.Size
	}
	manifest.TotalFiles = len(manifest.Entries)

	if err := e.writeManifest(manifest); err != nil {
		e.appendLog(types.BackupPreAnalysis, types.StatusFailed, 0, len(images), len(images), err.Error())
		return nil, err
	}

	e.appendLog(types.BackupPreAnalysis, types.StatusCompleted, manifest.TotalFiles, len(images)-manifest.TotalFiles, len(images), manifest.ID)
	return manifest, nil
}

// BackupBeforeDeletion copies every file into a fresh backup location and
// verifies each copy by re-hashing both sides. Any mismatch fails the entire
// operation with a BackupIntegrityError: no file may be deleted if its
// backup could not be verified.
func (e *Engine) BackupBeforeDeletion(ctx context.Context, paths []string) (*types.BackupManifest, error) {
	e.setState(StateBackingUp)

	manifest := &types.BackupManifest{
		ID:        e.newBackupID(),
		Kind:      types.BackupPreDeletion,
		CreatedAt: e.now(),
		Version:   manifestVersion,
	}

	filesDir := e.filesDir(manifest.ID)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		e.setState(StateFailed)
		return nil, fmt.Errorf("cannot create backup directory %s: %w", filesDir, err)
	}

	entries := make([]types.ManifestEntry, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			// Index prefix keeps colliding basenames apart.
			backupPath := filepath.Join(filesDir, fmt.Sprintf("%06d_%s", i, filepath.Base(path)))
			entry, err := e.copyAndVerify(path, backupPath)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.setState(StateFailed)
		e.appendLog(types.BackupPreDeletion, types.StatusFailed, 0, len(paths), len(paths), err.Error())
		return nil, err
	}

	e.setState(StateVerifying)
	manifest.Entries = entries
	manifest.TotalFiles = len(entries)
	for _, entry := range entries {
		manifest.TotalBytes += entry.Size
	}

	if err := e.writeManifest(manifest); err != nil {
		e.setState(StateFailed)
		return nil, err
	}

	e.setState(StateReadyToDelete)
	e.appendLog(types.BackupPreDeletion, types.StatusCompleted, manifest.TotalFiles, 0, manifest.TotalFiles, manifest.ID)
	return manifest, nil
}

// copyAndVerify copies one file and re-hashes both the source and the copy.
func (e *Engine) copyAndVerify(sourcePath, backupPath string) (types.ManifestEntry, error) {
	entry := types.ManifestEntry{OriginalPath: sourcePath, BackupPath: backupPath}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return entry, fmt.Errorf("cannot stat %s for backup: %w", sourcePath, err)
	}
	entry.Size = info.Size()

	if err := copyFile(sourcePath, backupPath); err != nil {
		return entry, err
	}

	sourceDigest, err := e.digestFile(sourcePath)
	if err != nil {
		return entry, fmt.Errorf("cannot hash source %s: %w", sourcePath, err)
	}
	backupDigest, err := e.digestFile(backupPath)
	if err != nil {
		return entry, fmt.Errorf("cannot hash backup copy %s: %w", backupPath, err)
	}

	if sourceDigest != backupDigest {
		return entry, &types.BackupIntegrityError{
			Path:         sourcePath,
			SourceDigest: sourceDigest,
			BackupDigest: backupDigest,
		}
	}

	entry.Digest = sourceDigest
	entry.Verified = true
	return entry, nil
}

func copyFile(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", sourcePath, err)
	}
	defer source.Close()

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", destPath, err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("cannot copy %s to %s: %w", sourcePath, destPath, err)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		return fmt.Errorf("cannot sync %s: %w", destPath, err)
	}
	return dest.Close()
}
