package safety

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"imagededup/logging"
	"imagededup/types"
)

// Disposer performs the actual file disposal once every safety gate has
// passed. The engine never removes a file any other way.
type Disposer interface {
	Dispose(path string) error
}

// RemoveDisposer deletes files permanently.
type RemoveDisposer struct{}

func (RemoveDisposer) Dispose(path string) error {
	return os.Remove(path)
}

// TrashDisposer moves files into a trash directory instead of deleting them.
type TrashDisposer struct {
	Dir string
}

func (t TrashDisposer) Dispose(path string) error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return fmt.Errorf("cannot create trash directory %s: %w", t.Dir, err)
	}

	dest := filepath.Join(t.Dir, filepath.Base(path))
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(t.Dir, fmt.Sprintf("%d_%s", n, filepath.Base(path)))
	}

	return os.Rename(path, dest)
}

// DeleteFiles runs the full safety-gated deletion workflow for a batch of
// paths: existence pre-check, verified backup, then disposal. The backup of
// a file always completes (including verification) before that file is
// deleted. An emergency stop mid-batch yields a halted result; already
// backed-up files stay verified in the manifest.
func (e *Engine) DeleteFiles(ctx context.Context, paths []string, disposer Disposer) (*types.DeletionResult, error) {
	result := &types.DeletionResult{Total: len(paths)}

	if e.Stopped() || ctx.Err() != nil {
		result.Halted = true
		return result, types.ErrEmergencyStopped
	}
	if len(paths) == 0 {
		return result, nil
	}

	check := e.VerifyExist(paths)
	if !check.Verified {
		e.setState(StateFailed)
		e.appendLog("deletion", types.StatusFailed, 0, len(check.Missing), len(paths), "pre-deletion existence check failed")
		return result, &types.SafetyViolation{
			Check:  "files-exist",
			Detail: fmt.Sprintf("%d of %d files missing before deletion, batch aborted", len(check.Missing), len(paths)),
		}
	}

	manifest, err := e.BackupBeforeDeletion(ctx, paths)
	if err != nil {
		result.Halted = e.Stopped()
		if result.Halted {
			e.setState(StateHalted)
			e.appendLog("deletion", types.StatusHalted, 0, 0, len(paths), "halted during backup")
			return result, types.ErrEmergencyStopped
		}
		return result, err
	}
	result.BackupID = manifest.ID

	e.setState(StateDeleting)
	for _, path := range paths {
		if e.Stopped() || ctx.Err() != nil {
			result.Halted = true
			break
		}

		if err := disposer.Dispose(path); err != nil {
			logging.LogError("disposal failed for %s: %v", path, err)
			result.Failed = append(result.Failed, types.FailedDeletion{Path: path, Error: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, path)
	}

	switch {
	case result.Halted:
		e.setState(StateHalted)
		e.appendLog("deletion", types.StatusHalted, len(result.Deleted), len(result.Failed), len(paths), manifest.ID)
		return result, types.ErrEmergencyStopped
	case len(result.Failed) > 0:
		e.setState(StateCompleted)
		e.appendLog("deletion", types.StatusPartial, len(result.Deleted), len(result.Failed), len(paths), manifest.ID)
	default:
		e.setState(StateCompleted)
		e.appendLog("deletion", types.StatusCompleted, len(result.Deleted), 0, len(paths), manifest.ID)
	}

	return result, nil
}
