// Package safety guards every destructive operation: verified backups,
// manifests, pre-flight checks, restores and the emergency stop. No file may
// be deleted unless its backup has been copied and verified first.
package safety

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"imagededup/config"
	"imagededup/hashing"
	"imagededup/logging"
	"imagededup/types"
)

// State of the destructive workflow the engine is currently running.
type State int

const (
	StateIdle State = iota
	StateBackingUp
	StateVerifying
	StateReadyToDelete
	StateDeleting
	StateCompleted
	StateFailed
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBackingUp:
		return "backing-up"
	case StateVerifying:
		return "verifying"
	case StateReadyToDelete:
		return "ready-to-delete"
	case StateDeleting:
		return "deleting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateHalted:
		return "halted"
	}
	return "unknown"
}

// OperationLogger receives one audit entry per workflow. The database
// package implements it; a nil logger disables auditing but never the
// safety gates.
type OperationLogger interface {
	Append(entry types.OperationLogEntry) error
}

// Engine is the data-safety engine. One engine serves one process; its
// emergency stop halts every workflow bound to it.
type Engine struct {
	cfg   config.Safety
	oplog OperationLogger
	now   func() time.Time

	// digestFile hashes one file for backup verification.
	digestFile func(path string) (string, error)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	stopped atomic.Bool
}

// NewEngine builds a safety engine writing backups under cfg.BackupRoot.
func NewEngine(cfg config.Safety, oplog OperationLogger) (*Engine, error) {
	if err := os.MkdirAll(cfg.BackupRoot, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create backup root %s: %w", cfg.BackupRoot, err)
	}
	return &Engine{
		cfg:        cfg,
		oplog:      oplog,
		now:        time.Now,
		digestFile: hashing.DigestFile,
		state:      StateIdle,
	}, nil
}

// State returns the engine's current workflow state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	logging.DebugLog("safety engine state: %s", s)
}

// BindCancel registers the cancel function of the in-flight operation so an
// emergency stop can interrupt it cooperatively.
func (e *Engine) BindCancel(cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
}

// EmergencyStop signals all in-flight work to halt. In-flight copies and
// comparisons finish their current unit, no new units start, and callers
// receive a halted status rather than a silent no-op.
func (e *Engine) EmergencyStop() {
	if e.stopped.Swap(true) {
		return
	}
	logging.LogWarning("EMERGENCY STOP: halting all destructive operations")

	e.mu.Lock()
	cancel := e.cancel
	e.state = StateHalted
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stopped reports whether the emergency stop has been triggered.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// VerifyExist confirms every path still exists. Any missing path fails the
// whole check; the caller must abort the batch rather than partially delete.
func (e *Engine) VerifyExist(paths []string) types.ExistenceCheck {
	check := types.ExistenceCheck{Verified: true, Checked: len(paths)}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			check.Verified = false
			check.Missing = append(check.Missing, path)
		}
	}
	return check
}

// RunSafetyChecks asserts the group-level invariants for every group. The
// first failed check is returned as a SafetyViolation naming the check;
// callers must not proceed to deletion for that group.
func (e *Engine) RunSafetyChecks(groups []*types.DuplicateGroup) error {
	for i, group := range groups {
		if err := e.CheckGroup(group); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
	}
	return nil
}

// CheckGroup validates one group: a recommended image exists, the deletion
// candidates are strictly fewer than the group members, and every referenced
// file is still on disk. A passing group is marked safety-verified.
func (e *Engine) CheckGroup(group *types.DuplicateGroup) error {
	if group.Recommended() == nil {
		return &types.SafetyViolation{
			Check:  "recommended-exists",
			Detail: "no image in the group is marked recommended",
		}
	}

	if len(group.DeletionCandidates()) >= len(group.Images) {
		return &types.SafetyViolation{
			Check:  "candidates-below-group-size",
			Detail: fmt.Sprintf("%d deletion candidates in a group of %d", len(group.DeletionCandidates()), len(group.Images)),
		}
	}

	for _, img := range group.Images {
		if _, err := os.Stat(img.Path); err != nil {
			return &types.SafetyViolation{
				Check:  "files-exist",
				Detail: fmt.Sprintf("referenced file missing: %s", img.Path),
			}
		}
	}

	group.SafetyVerified = true
	return nil
}

// appendLog writes one audit entry, tolerating a missing logger.
func (e *Engine) appendLog(kind, status string, succeeded, failed, total int, detail string) {
	if e.oplog == nil {
		return
	}
	entry := types.OperationLogEntry{
		Timestamp: e.now(),
		Kind:      kind,
		Status:    status,
		Succeeded: succeeded,
		Failed:    failed,
		Total:     total,
		Detail:    detail,
	}
	if err := e.oplog.Append(entry); err != nil {
		logging.LogError("cannot append operation log entry: %v", err)
	}
}
