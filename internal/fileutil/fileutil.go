// Package fileutil holds small filesystem helpers shared by the cache store
// and pipeline stages.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// HashFile streams the file at path through xxhash64 and returns the digest
// together with the byte count hashed.
func HashFile(path string) (uint64, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	hasher := xxhash.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return 0, 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hasher.Sum64(), size, nil
}

// ReplaceFile atomically moves tmp into place at final, removing any
// preexisting file at final first.
func ReplaceFile(tmp, final string) error {
	if err := os.Remove(final); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing %s: %w", final, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, final, err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
