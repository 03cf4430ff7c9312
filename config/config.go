package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const (
	defaultMatchThreshold    = 0.92
	defaultMinConfidence     = 0.90
	defaultHashGridSize      = 8
	defaultStructuralGrid    = 64
	defaultPrefilterCutoff   = 24
	defaultProviderParallel  = 3
	defaultProviderInterval  = 350 * time.Millisecond
	defaultRecencyWindowDays = 365
)

// Detection holds the tuning values for the similarity engine and the
// grouping engine. Passed explicitly at construction; there is no ambient
// global configuration.
type Detection struct {
	// MatchThreshold and MinConfidence gate the match decision: a pair is a
	// duplicate only when both are cleared.
	MatchThreshold float64
	MinConfidence  float64

	// HashGridSize is the average-hash grid edge (8 normally, 32 for a
	// coarser variant). StructuralGridSize is the edge used for the
	// per-pixel structural distance.
	HashGridSize       int
	StructuralGridSize int

	// PrefilterCutoff is the maximum difference-hash Hamming distance (out
	// of 64 bits) for a pair to proceed to full consensus scoring.
	PrefilterCutoff int

	// Local method weights for the in-process consensus.
	AHashWeight      float64
	StructuralWeight float64
	HistogramWeight  float64

	// LocalConfidence is reported by the local consensus; kept below the
	// confidence of any trusted external provider.
	LocalConfidence float64

	// Workers bounds parallel feature extraction and per-seed comparisons.
	Workers int
}

// Providers holds the consensus-layer settings for external similarity
// providers.
type Providers struct {
	// LocalWeight and ProviderWeight form the fixed weight table merging
	// votes; external providers are favored over local heuristics.
	LocalWeight    float64
	ProviderWeight float64

	// MaxConcurrent caps in-flight provider calls; Interval is the
	// mandatory delay between calls to any one provider.
	MaxConcurrent int
	Interval      time.Duration
}

// Quality holds the weights of the per-image quality score.
type Quality struct {
	ResolutionWeight float64
	SizeWeight       float64
	RecencyWeight    float64
	FormatWeight     float64
	DepthWeight      float64

	// RecencyWindow is the age at which the recency component decays to 0.
	RecencyWindow time.Duration
}

// Safety holds the data-safety engine settings.
type Safety struct {
	// BackupRoot is where manifests and pre-deletion copies live, scoped
	// per operation kind underneath it.
	BackupRoot string

	// Workers bounds concurrent backup copy/verify operations.
	Workers int
}

// Config bundles every explicit configuration value the core takes at
// construction time.
type Config struct {
	Detection Detection
	Providers Providers
	Quality   Quality
	Safety    Safety

	DatabasePath string
	DebugMode    bool
	LogPath      string
}

// OptimalWorkers returns the worker count for CPU-bound image work. Using
// every core causes trouble with CGo image libraries, so it stays at 3/4.
func OptimalWorkers() int {
	workers := (runtime.NumCPU() * 3) / 4
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Detection: Detection{
			MatchThreshold:     defaultMatchThreshold,
			MinConfidence:      defaultMinConfidence,
			HashGridSize:       defaultHashGridSize,
			StructuralGridSize: defaultStructuralGrid,
			PrefilterCutoff:    defaultPrefilterCutoff,
			AHashWeight:        0.40,
			StructuralWeight:   0.40,
			HistogramWeight:    0.20,
			LocalConfidence:    0.80,
			Workers:            OptimalWorkers(),
		},
		Providers: Providers{
			LocalWeight:    0.6,
			ProviderWeight: 1.0,
			MaxConcurrent:  defaultProviderParallel,
			Interval:       defaultProviderInterval,
		},
		Quality: Quality{
			ResolutionWeight: 0.45,
			SizeWeight:       0.20,
			RecencyWeight:    0.15,
			FormatWeight:     0.15,
			DepthWeight:      0.05,
			RecencyWindow:    defaultRecencyWindowDays * 24 * time.Hour,
		},
		Safety: Safety{
			BackupRoot: defaultBackupRoot(),
			Workers:    OptimalWorkers(),
		},
		DatabasePath: defaultDatabasePath(),
	}
}

// FromEnv returns the default configuration with environment overrides
// applied. Unset variables keep the defaults.
func FromEnv() Config {
	cfg := Default()

	cfg.Detection.MatchThreshold = getEnvFloatOrDefault("DEDUP_MATCH_THRESHOLD", cfg.Detection.MatchThreshold)
	cfg.Detection.MinConfidence = getEnvFloatOrDefault("DEDUP_MIN_CONFIDENCE", cfg.Detection.MinConfidence)
	cfg.Detection.Workers = getEnvIntOrDefault("DEDUP_WORKERS", cfg.Detection.Workers)
	cfg.Providers.MaxConcurrent = getEnvIntOrDefault("DEDUP_PROVIDER_CONCURRENCY", cfg.Providers.MaxConcurrent)

	if root := os.Getenv("DEDUP_BACKUP_ROOT"); root != "" {
		cfg.Safety.BackupRoot = root
	}
	if dbPath := os.Getenv("DEDUP_DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	return cfg
}

// Validate rejects configurations that would make the match gate or the
// weight tables meaningless.
func (c Config) Validate() error {
	if c.Detection.MatchThreshold <= 0 || c.Detection.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in (0,1], got %.2f", c.Detection.MatchThreshold)
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("minimum confidence must be in [0,1], got %.2f", c.Detection.MinConfidence)
	}
	if c.Detection.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Detection.Workers)
	}
	if c.Providers.MaxConcurrent < 1 {
		return fmt.Errorf("provider concurrency must be at least 1, got %d", c.Providers.MaxConcurrent)
	}
	localTotal := c.Detection.AHashWeight + c.Detection.StructuralWeight + c.Detection.HistogramWeight
	if localTotal <= 0 {
		return fmt.Errorf("local method weights must sum above 0")
	}
	if c.Safety.BackupRoot == "" {
		return fmt.Errorf("backup root must not be empty")
	}
	return nil
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f.", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d.", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func defaultBackupRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imagededup-backups"
	}
	return filepath.Join(home, ".imagededup", "backups")
}

func defaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "imagededup.db"
	}
	return filepath.Join(filepath.Dir(exePath), "imagededup.db")
}
