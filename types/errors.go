package types

import (
	"errors"
	"fmt"
)

// ErrEmergencyStopped signals a user-triggered halt of the in-flight
// operation. It is distinct from ordinary failure: callers surface it as a
// halted status, never as a silent partial completion.
var ErrEmergencyStopped = errors.New("operation halted by emergency stop")

// DecodeError marks an image that could not be decoded. The image is excluded
// from further perceptual comparison; detection itself continues.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProviderFailure records one external provider losing its vote on one pair.
// Never fatal to the comparison.
type ProviderFailure struct {
	Provider string
	Err      error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// BackupIntegrityError means a post-copy digest did not match the source.
// Fatal to the entire backup/deletion batch: nothing may be deleted.
type BackupIntegrityError struct {
	Path         string
	SourceDigest string
	BackupDigest string
}

func (e *BackupIntegrityError) Error() string {
	return fmt.Sprintf("backup integrity failure for %s: source digest %s, backup digest %s",
		e.Path, e.SourceDigest, e.BackupDigest)
}

// SafetyViolation names a failed group-level safety check. Fatal to that
// group's deletion; other groups may still proceed.
type SafetyViolation struct {
	Check  string
	Detail string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation (%s): %s", e.Check, e.Detail)
}
