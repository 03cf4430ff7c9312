package safety_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"imagededup/hashing"
	"imagededup/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupBeforeAnalysisRecordsDigests(t *testing.T) {
	engine, log := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "first image")
	b := writeFile(t, dir, "b.jpg", "second image")

	manifest, err := engine.BackupBeforeAnalysis([]*types.ImageRecord{
		{Path: a, Size: 11},
		{Path: b, Size: 12},
	})
	require.NoError(t, err)

	assert.Equal(t, types.BackupPreAnalysis, manifest.Kind)
	assert.Equal(t, 2, manifest.TotalFiles)
	require.Len(t, manifest.Entries, 2)
	for _, entry := range manifest.Entries {
		assert.NotEmpty(t, entry.Digest)
		assert.Empty(t, entry.BackupPath)
		assert.True(t, entry.Verified)
	}

	entry, ok := log.last()
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, entry.Status)
}

func TestBackupBeforeAnalysisSkipsUnreadable(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "readable")

	manifest, err := engine.BackupBeforeAnalysis([]*types.ImageRecord{
		{Path: a},
		{Path: filepath.Join(dir, "vanished.jpg")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, manifest.TotalFiles)
	assert.Equal(t, a, manifest.Entries[0].OriginalPath)
}

func TestBackupBeforeDeletionCopiesAndVerifies(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "payload a")
	b := writeFile(t, dir, "b.jpg", "payload b")

	manifest, err := engine.BackupBeforeDeletion(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, types.BackupPreDeletion, manifest.Kind)
	require.Len(t, manifest.Entries, 2)
	for i, source := range []string{a, b} {
		entry := manifest.Entries[i]
		assert.Equal(t, source, entry.OriginalPath)
		assert.True(t, entry.Verified)

		ok, err := hashing.VerifyFile(entry.BackupPath, entry.Digest)
		require.NoError(t, err)
		assert.True(t, ok, "backup copy of %s must match its digest", source)
	}
}

func TestBackupBeforeDeletionFailsOnMissingFile(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "exists")

	_, err := engine.BackupBeforeDeletion(context.Background(), []string{a, filepath.Join(dir, "gone.jpg")})

	require.Error(t, err)
	// Originals are untouched after a failed backup.
	_, statErr := os.Stat(a)
	assert.NoError(t, statErr)
}

func TestManifestRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "round trip")

	written, err := engine.BackupBeforeDeletion(context.Background(), []string{a})
	require.NoError(t, err)

	loaded, err := engine.LoadManifest(types.BackupPreDeletion, written.ID)
	require.NoError(t, err)

	assert.Equal(t, written.ID, loaded.ID)
	assert.Equal(t, written.Kind, loaded.Kind)
	assert.Equal(t, written.TotalFiles, loaded.TotalFiles)
	assert.Equal(t, written.Entries, loaded.Entries)
}

func TestLoadManifestDetectsTampering(t *testing.T) {
	engine, _, root := newTestEngineAt(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "tamper target")

	manifest, err := engine.BackupBeforeAnalysis([]*types.ImageRecord{{Path: a}})
	require.NoError(t, err)

	// Flip a byte in the stored manifest; the verification record must
	// refuse it afterwards.
	manifestFile := filepath.Join(root, types.BackupPreAnalysis, manifest.ID+".json")
	data, err := os.ReadFile(manifestFile)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(manifestFile, data, 0o644))

	_, err = engine.LoadManifest(types.BackupPreAnalysis, manifest.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification record")
}

func TestListBackupsOrdered(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "listing")

	first, err := engine.BackupBeforeAnalysis([]*types.ImageRecord{{Path: a}})
	require.NoError(t, err)
	second, err := engine.BackupBeforeAnalysis([]*types.ImageRecord{{Path: a}})
	require.NoError(t, err)

	ids, err := engine.ListBackups(types.BackupPreAnalysis)
	require.NoError(t, err)

	assert.Len(t, ids, 2)
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)

	// No pre-deletion backups were made.
	empty, err := engine.ListBackups(types.BackupPreDeletion)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
