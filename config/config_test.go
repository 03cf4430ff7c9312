package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.92, cfg.Detection.MatchThreshold)
	assert.Equal(t, 0.90, cfg.Detection.MinConfidence)
	assert.Equal(t, 0.80, cfg.Detection.LocalConfidence)
	assert.Greater(t, cfg.Providers.ProviderWeight, cfg.Providers.LocalWeight)
	assert.Equal(t, 365*24*time.Hour, cfg.Quality.RecencyWindow)
}

func TestQualityWeightsSumToOne(t *testing.T) {
	q := Default().Quality
	sum := q.ResolutionWeight + q.SizeWeight + q.RecencyWeight + q.FormatWeight + q.DepthWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.Detection.MatchThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Detection.MatchThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadWorkers(t *testing.T) {
	cfg := Default()
	cfg.Detection.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroLocalWeights(t *testing.T) {
	cfg := Default()
	cfg.Detection.AHashWeight = 0
	cfg.Detection.StructuralWeight = 0
	cfg.Detection.HistogramWeight = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyBackupRoot(t *testing.T) {
	cfg := Default()
	cfg.Safety.BackupRoot = ""
	assert.Error(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DEDUP_MATCH_THRESHOLD", "0.85")
	t.Setenv("DEDUP_WORKERS", "7")
	t.Setenv("DEDUP_BACKUP_ROOT", "/tmp/dedup-backups")

	cfg := FromEnv()

	assert.Equal(t, 0.85, cfg.Detection.MatchThreshold)
	assert.Equal(t, 7, cfg.Detection.Workers)
	assert.Equal(t, "/tmp/dedup-backups", cfg.Safety.BackupRoot)
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DEDUP_MATCH_THRESHOLD", "not-a-number")
	t.Setenv("DEDUP_WORKERS", "-3")

	cfg := FromEnv()

	assert.Equal(t, Default().Detection.MatchThreshold, cfg.Detection.MatchThreshold)
	assert.Equal(t, Default().Detection.Workers, cfg.Detection.Workers)
}

func TestOptimalWorkersAtLeastOne(t *testing.T) {
	assert.GreaterOrEqual(t, OptimalWorkers(), 1)
}
