package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"imagededup/config"
	"imagededup/database"
	"imagededup/detector"
	"imagededup/imageprocessor"
	"imagededup/logging"
	"imagededup/provider"
	"imagededup/safety"
	"imagededup/scanner"
	"imagededup/signalhandler"
	"imagededup/types"
	"imagededup/utils"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env next to the binary; absence is fine
	_ = godotenv.Load()

	args := utils.ParseArguments()
	command, hasCommand := args["command"]

	cfg := config.FromEnv()
	applyFlagOverrides(&cfg, args)

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugMode {
		logPath := "imagededup.log"
		if custom, ok := args["logfile"]; ok && custom != "" {
			logPath = custom
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
		defer logging.CloseLogger()
	}

	showUsage := !hasCommand
	if hasCommand && (command == "detect" || command == "clean") && args["folder"] == "" {
		showUsage = true
	}
	if hasCommand && command == "restore" && args["backup"] == "" {
		showUsage = true
	}
	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	switch command {
	case "detect":
		handleDetectCommand(args, cfg)
	case "clean":
		handleCleanCommand(args, cfg)
	case "restore":
		handleRestoreCommand(args, cfg)
	case "backups":
		handleBackupsCommand(cfg)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, args map[string]string) {
	if thresholdStr, ok := args["threshold"]; ok {
		threshold, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			cfg.Detection.MatchThreshold = threshold
		}
	}
	if dbPath, ok := args["database"]; ok && dbPath != "" {
		cfg.DatabasePath = dbPath
	} else if dbPath, ok := args["db"]; ok && dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if backupDir, ok := args["backup-dir"]; ok && backupDir != "" {
		cfg.Safety.BackupRoot = backupDir
	}
	if _, ok := args["debug"]; ok {
		cfg.DebugMode = true
	}
}

// pipeline bundles the wired-up core for one run.
type pipeline struct {
	db     *database.DB
	safety *safety.Engine
	det    *detector.Detector
	cancel context.CancelFunc
}

// buildPipeline wires the engines together: local perceptual engine feeding
// the provider consensus, both feeding the detector, with the safety engine
// bound to the signal handler for emergency stops.
func buildPipeline(cfg config.Config) (*pipeline, context.Context, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open database %s: %w", cfg.DatabasePath, err)
	}

	safetyEngine, err := safety.NewEngine(cfg.Safety, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	engine := imageprocessor.NewEngine(cfg.Detection)
	// No external providers ship by default; the consensus layer degrades
	// to local-only scoring.
	consensus := provider.NewConsensus(engine, nil, cfg.Providers, cfg.Detection)
	det := detector.New(engine, consensus, cfg.Detection, cfg.Quality)

	ctx, cancel := context.WithCancel(context.Background())
	safetyEngine.BindCancel(cancel)
	signalhandler.SetupHandler(safetyEngine.EmergencyStop)

	return &pipeline{db: db, safety: safetyEngine, det: det, cancel: cancel}, ctx, nil
}

func (p *pipeline) close() {
	p.cancel()
	p.db.Close()
}

// runDetection scans the folder and produces duplicate groups, writing the
// pre-analysis manifest before any image is touched.
func (p *pipeline) runDetection(ctx context.Context, cfg config.Config, args map[string]string) ([]*types.DuplicateGroup, error) {
	folderPath := args["folder"]
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access folder path %s: %w", folderPath, err)
	}
	if !folderInfo.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", folderPath)
	}

	_, forceRescan := args["force"]
	records, err := scanner.Scan(ctx, p.db, scanner.Options{
		FolderPath:   folderPath,
		ForceRescan:  forceRescan,
		Workers:      cfg.Detection.Workers,
		ShowProgress: true,
	})
	if errors.Is(err, context.Canceled) {
		return nil, types.ErrEmergencyStopped
	}
	if err != nil {
		return nil, err
	}
	fmt.Printf("Scanned %d images under %s\n", len(records), folderPath)

	manifest, err := p.safety.BackupBeforeAnalysis(records)
	if err != nil {
		return nil, fmt.Errorf("pre-analysis backup failed: %w", err)
	}
	fmt.Printf("Pre-analysis manifest: %s (%d files)\n", manifest.ID, manifest.TotalFiles)

	return p.det.DetectDuplicates(ctx, records)
}

func handleDetectCommand(args map[string]string, cfg config.Config) {
	p, ctx, err := buildPipeline(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer p.close()

	startTime := time.Now()
	groups, err := p.runDetection(ctx, cfg, args)
	if errors.Is(err, types.ErrEmergencyStopped) {
		fmt.Println("\nDetection halted by emergency stop.")
		printGroups(groups)
		os.Exit(130)
	}
	if err != nil {
		fmt.Printf("Error detecting duplicates: %v\n", err)
		os.Exit(1)
	}

	printGroups(groups)
	fmt.Printf("\nTotal detection time: %v\n", time.Since(startTime).Round(time.Millisecond))
}

func handleCleanCommand(args map[string]string, cfg config.Config) {
	p, ctx, err := buildPipeline(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer p.close()

	groups, err := p.runDetection(ctx, cfg, args)
	if errors.Is(err, types.ErrEmergencyStopped) {
		fmt.Println("\nDetection halted by emergency stop; nothing was deleted.")
		os.Exit(130)
	}
	if err != nil {
		fmt.Printf("Error detecting duplicates: %v\n", err)
		os.Exit(1)
	}
	printGroups(groups)

	// Safety gates run per group: a violating group is skipped, the rest
	// may still proceed.
	var candidates []string
	for i, group := range groups {
		if err := p.safety.CheckGroup(group); err != nil {
			fmt.Printf("Skipping group %d: %v\n", i+1, err)
			continue
		}
		for _, img := range group.DeletionCandidates() {
			candidates = append(candidates, img.Path)
		}
	}

	if len(candidates) == 0 {
		fmt.Println("\nNothing to delete.")
		return
	}

	if _, autoConfirm := args["yes"]; !autoConfirm {
		fmt.Printf("\nAbout to delete %d files (verified backups are written first). Continue? [y/N] ", len(candidates))
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if answer = strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	var disposer safety.Disposer = safety.RemoveDisposer{}
	if trashDir, ok := args["trash"]; ok && trashDir != "" {
		disposer = safety.TrashDisposer{Dir: trashDir}
	}

	result, err := p.safety.DeleteFiles(ctx, candidates, disposer)
	for _, path := range result.Deleted {
		if err := p.db.RemoveImage(path); err != nil {
			logging.LogWarning("cannot drop index entry for %s: %v", path, err)
		}
	}

	switch {
	case errors.Is(err, types.ErrEmergencyStopped):
		fmt.Printf("\nDeletion halted by emergency stop: %d of %d files deleted (backup %s).\n",
			len(result.Deleted), result.Total, result.BackupID)
		os.Exit(130)
	case err != nil:
		fmt.Printf("\nDeletion aborted: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDeleted %d of %d files. Backup: %s\n", len(result.Deleted), result.Total, result.BackupID)
	for _, failure := range result.Failed {
		fmt.Printf("  failed: %s (%s)\n", failure.Path, failure.Error)
	}

	if stats, err := p.db.GetScanStats(); err == nil {
		fmt.Printf("Index now holds %d images (%d unique contents).\n", stats.TotalImages, stats.UniqueDigests)
	}
}

func handleRestoreCommand(args map[string]string, cfg config.Config) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	safetyEngine, err := safety.NewEngine(cfg.Safety, db)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	result, err := safetyEngine.Restore(args["backup"])
	if err != nil {
		fmt.Printf("Error restoring backup: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Restore of %s: %d restored, %d already present, %d failed (of %d entries)\n",
		result.BackupID, len(result.Restored), len(result.AlreadyPresent), len(result.Failed), result.TotalEntries)
	for _, failure := range result.Failed {
		fmt.Printf("  failed: %s (%s)\n", failure.Path, failure.Error)
	}
}

func handleBackupsCommand(cfg config.Config) {
	safetyEngine, err := safety.NewEngine(cfg.Safety, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, kind := range []string{types.BackupPreDeletion, types.BackupPreAnalysis} {
		ids, err := safetyEngine.ListBackups(kind)
		if err != nil {
			fmt.Printf("Error listing %s backups: %v\n", kind, err)
			continue
		}
		fmt.Printf("%s backups (%d):\n", kind, len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
	}
}

func printGroups(groups []*types.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Println("\nNo duplicate groups found.")
		return
	}

	fmt.Printf("\nFound %d duplicate group(s):\n", len(groups))
	for i, group := range groups {
		fmt.Printf("\nGroup %d [%s, similarity %.3f, confidence %s]:\n", i+1, group.Method, group.Similarity, group.Confidence)
		for _, img := range group.Images {
			marker := " "
			if img.Recommended {
				marker = "*"
			}
			fmt.Printf("  %s %s (%dx%d, %d bytes, quality %.3f)\n",
				marker, img.Path, img.Width, img.Height, img.Size, img.QualityScore)
		}
	}
	fmt.Println("\n* = recommended to keep; all other group members are deletion candidates")
}
