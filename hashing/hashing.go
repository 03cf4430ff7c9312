package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DigestFile computes the SHA-256 digest of a file's bytes as a hex string.
// Deterministic and collision-resistant; the same digest feeds both exact
// duplicate grouping and backup integrity verification.
func DigestFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DigestBytes computes the SHA-256 digest of an in-memory buffer as hex.
// Used to self-hash serialized manifests.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GroupKey builds the exact-duplicate grouping key from a content digest and
// the raw byte size. Including the size means a size mismatch can never group,
// even under a digest collision.
func GroupKey(digest string, size int64) string {
	return fmt.Sprintf("%s:%d", digest, size)
}

// VerifyFile re-hashes a file and reports whether it still matches the
// expected digest.
func VerifyFile(path, expectedDigest string) (bool, error) {
	digest, err := DigestFile(path)
	if err != nil {
		return false, err
	}
	return digest == expectedDigest, nil
}
