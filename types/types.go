package types

import (
	"path/filepath"
	"strings"
	"time"
)

// ImageRecord holds the metadata and computed scores for one image in a scan
type ImageRecord struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Format       string    `json:"format"`
	Digest       string    `json:"digest,omitempty"`
	QualityScore float64   `json:"quality_score"`
	Recommended  bool      `json:"recommended"`
}

// Resolution returns the pixel count of the image
func (r *ImageRecord) Resolution() int64 {
	return int64(r.Width) * int64(r.Height)
}

// Depth returns how many directories deep the image sits
func (r *ImageRecord) Depth() int {
	clean := filepath.ToSlash(filepath.Clean(r.Path))
	return strings.Count(clean, "/")
}

// Detection method tags recorded on similarity scores and groups
const (
	MethodExact      = "exact"
	MethodPerceptual = "perceptual"
	MethodConsensus  = "provider-consensus"
)

// Confidence labels attached to duplicate groups
const (
	ConfidenceAbsolute = "absolute"
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
)

// SimilarityScore holds the outcome of comparing a pair of images
type SimilarityScore struct {
	PathA      string             `json:"path_a"`
	PathB      string             `json:"path_b"`
	Similarity float64            `json:"similarity"`
	Confidence float64            `json:"confidence"`
	Method     string             `json:"method"`
	Breakdown  map[string]float64 `json:"breakdown,omitempty"`
}

// DuplicateGroup holds a set of images judged to be copies of one another.
// Images are ordered by quality score; the first is the retain recommendation.
type DuplicateGroup struct {
	Images         []*ImageRecord `json:"images"`
	Similarity     float64        `json:"similarity"`
	Confidence     string         `json:"confidence"`
	Method         string         `json:"method"`
	SafetyVerified bool           `json:"safety_verified"`
}

// Recommended returns the image marked to keep, or nil if none is marked
func (g *DuplicateGroup) Recommended() *ImageRecord {
	for _, img := range g.Images {
		if img.Recommended {
			return img
		}
	}
	return nil
}

// DeletionCandidates returns every image in the group except the recommended one
func (g *DuplicateGroup) DeletionCandidates() []*ImageRecord {
	var candidates []*ImageRecord
	for _, img := range g.Images {
		if !img.Recommended {
			candidates = append(candidates, img)
		}
	}
	return candidates
}

// Backup operation kinds
const (
	BackupPreAnalysis = "pre-analysis"
	BackupPreDeletion = "pre-deletion"
)

// ManifestEntry records one file covered by a backup
type ManifestEntry struct {
	OriginalPath string `json:"original_path"`
	BackupPath   string `json:"backup_path,omitempty"`
	Digest       string `json:"digest"`
	Size         int64  `json:"size"`
	Verified     bool   `json:"verified"`
}

// BackupManifest describes the contents of one backup well enough to
// verify and restore it. Immutable once written.
type BackupManifest struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	CreatedAt  time.Time       `json:"created_at"`
	Entries    []ManifestEntry `json:"entries"`
	TotalFiles int             `json:"total_files"`
	TotalBytes int64           `json:"total_bytes"`
	Version    int             `json:"version"`
}

// Operation statuses recorded in the audit log
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusHalted    = "halted"
)

// OperationLogEntry is one row in the append-only audit trail
type OperationLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	Detail    string    `json:"detail,omitempty"`
}

// FailedDeletion names one path that could not be deleted and why
type FailedDeletion struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DeletionResult summarizes a deletion batch
type DeletionResult struct {
	Deleted  []string         `json:"deleted"`
	Failed   []FailedDeletion `json:"failed"`
	Total    int              `json:"total"`
	BackupID string           `json:"backup_id,omitempty"`
	Halted   bool             `json:"halted"`
}

// RestoreResult summarizes a restore run for one backup
type RestoreResult struct {
	BackupID       string           `json:"backup_id"`
	Restored       []string         `json:"restored"`
	AlreadyPresent []string         `json:"already_present"`
	Failed         []FailedDeletion `json:"failed"`
	TotalEntries   int              `json:"total_entries"`
}

// ExistenceCheck is the outcome of a pre-deletion existence pass
type ExistenceCheck struct {
	Verified bool     `json:"verified"`
	Missing  []string `json:"missing"`
	Checked  int      `json:"checked"`
}
