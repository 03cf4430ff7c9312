package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imagededup/hashing"
	"imagededup/types"

	"github.com/google/uuid"
)

// manifestVersion is bumped whenever the on-disk manifest layout changes;
// restore refuses manifests from a newer layout than it understands.
const manifestVersion = 1

// verificationRecord is written alongside a manifest; its digest covers the
// serialized manifest bytes so tampering or truncation is detectable.
type verificationRecord struct {
	ManifestID     string `json:"manifest_id"`
	ManifestDigest string `json:"manifest_digest"`
}

// newBackupID produces a time-ordered, unique backup identifier.
func (e *Engine) newBackupID() string {
	stamp := e.now().UTC().Format("20060102T150405Z")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("backup_%s_%s", stamp, suffix)
}

func (e *Engine) kindDir(kind string) string {
	return filepath.Join(e.cfg.BackupRoot, kind)
}

func (e *Engine) manifestPath(kind, id string) string {
	return filepath.Join(e.kindDir(kind), id+".json")
}

func (e *Engine) verificationPath(kind, id string) string {
	return filepath.Join(e.kindDir(kind), id+".verify.json")
}

// filesDir is where the actual pre-deletion copies for one backup live.
func (e *Engine) filesDir(id string) string {
	return filepath.Join(e.kindDir(types.BackupPreDeletion), id, "files")
}

// writeManifest persists the manifest plus its verification record. The
// manifest is immutable once this returns.
func (e *Engine) writeManifest(manifest *types.BackupManifest) error {
	dir := e.kindDir(manifest.Kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create manifest directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialize manifest %s: %w", manifest.ID, err)
	}

	manifestPath := e.manifestPath(manifest.Kind, manifest.ID)
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest %s: %w", manifestPath, err)
	}

	record := verificationRecord{
		ManifestID:     manifest.ID,
		ManifestDigest: hashing.DigestBytes(data),
	}
	recordData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialize verification record for %s: %w", manifest.ID, err)
	}
	if err := os.WriteFile(e.verificationPath(manifest.Kind, manifest.ID), recordData, 0o644); err != nil {
		return fmt.Errorf("cannot write verification record for %s: %w", manifest.ID, err)
	}

	return nil
}

// LoadManifest reads a manifest back and checks it against its verification
// record when one is present.
func (e *Engine) LoadManifest(kind, id string) (*types.BackupManifest, error) {
	data, err := os.ReadFile(e.manifestPath(kind, id))
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", id, err)
	}

	if recordData, err := os.ReadFile(e.verificationPath(kind, id)); err == nil {
		var record verificationRecord
		if err := json.Unmarshal(recordData, &record); err != nil {
			return nil, fmt.Errorf("corrupt verification record for %s: %w", id, err)
		}
		if record.ManifestDigest != hashing.DigestBytes(data) {
			return nil, fmt.Errorf("manifest %s does not match its verification record", id)
		}
	}

	var manifest types.BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("corrupt manifest %s: %w", id, err)
	}
	if manifest.Version > manifestVersion {
		return nil, fmt.Errorf("manifest %s has unsupported version %d", id, manifest.Version)
	}

	return &manifest, nil
}

// ListBackups returns the backup IDs of one operation kind, newest last.
// The IDs are time-ordered by construction, so a name sort suffices.
func (e *Engine) ListBackups(kind string) ([]string, error) {
	entries, err := os.ReadDir(e.kindDir(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list backups under %s: %w", e.kindDir(kind), err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".verify.json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)

	return ids, nil
}
