// Package scanner walks a directory tree and produces the image records the
// detection engine works on.
package scanner

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"imagededup/database"
	"imagededup/logging"
	"imagededup/types"

	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var supportedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether the extension is one the scanner handles.
func IsImageFile(ext string) bool {
	return supportedExtensions[strings.ToLower(ext)]
}

// Options configures one scan.
type Options struct {
	FolderPath   string
	ForceRescan  bool
	Workers      int
	ShowProgress bool
}

type scanResult struct {
	record *types.ImageRecord
	err    error
}

// Scan walks the folder, reads metadata for every image file with bounded
// parallelism and returns the records in path order. The sqlite index lets
// unchanged files skip the metadata pass on later runs.
func Scan(ctx context.Context, db *database.DB, options Options) ([]*types.ImageRecord, error) {
	if options.Workers < 1 {
		options.Workers = 1
	}

	var candidates []string
	err := filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.LogWarning("cannot access %s: %v", path, err)
			return nil
		}
		if !info.IsDir() && IsImageFile(filepath.Ext(path)) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk %s: %w", options.FolderPath, err)
	}

	var bar *progressbar.ProgressBar
	if options.ShowProgress {
		bar = progressbar.Default(int64(len(candidates)), "scanning")
	}

	var wg sync.WaitGroup
	resultsChan := make(chan scanResult, len(candidates))
	semaphore := make(chan struct{}, options.Workers)

	for _, path := range candidates {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			record, err := readRecord(db, p, options.ForceRescan)
			resultsChan <- scanResult{record: record, err: err}
		}(path)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var records []*types.ImageRecord
	var errorCount int
	for result := range resultsChan {
		if bar != nil {
			bar.Add(1)
		}
		if result.err != nil {
			errorCount++
			logging.LogWarning("scan: %v", result.err)
			continue
		}
		records = append(records, result.record)
	}

	if errorCount > 0 {
		logging.LogInfo("scan finished with %d unreadable files skipped", errorCount)
	}

	// Workers complete out of order; detection results should not depend
	// on scheduling.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})

	if ctx.Err() != nil {
		return records, ctx.Err()
	}
	return records, nil
}

// readRecord builds the record for one file, reusing the index entry when
// the file has not changed since the last scan.
func readRecord(db *database.DB, path string, forceRescan bool) (*types.ImageRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}

	if db != nil && !forceRescan {
		stored, err := db.LookupImage(path)
		if err == nil && stored != nil && !info.ModTime().After(stored.ModifiedAt) && stored.Size == info.Size() {
			return stored, nil
		}
	}

	width, height, err := decodeDimensions(path)
	if err != nil {
		return nil, err
	}

	record := &types.ImageRecord{
		Path:       path,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		Width:      width,
		Height:     height,
		Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	if db != nil {
		if err := db.StoreImage(record); err != nil {
			logging.LogWarning("cannot index %s: %v", path, err)
		}
	}

	return record, nil
}

// decodeDimensions reads just the image header for pixel dimensions.
func decodeDimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, &types.DecodeError{Path: path, Err: err}
	}

	return cfg.Width, cfg.Height, nil
}
