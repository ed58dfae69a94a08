package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPartitionInvariant marks a scene list that does not tile the
	// source exactly. It is always fatal: encoding from a broken partition
	// would silently drop or duplicate frames.
	ErrPartitionInvariant = errors.New("scene partition invariant violated")

	// ErrScenesFailed marks a run in which one or more scenes failed while
	// the rest completed.
	ErrScenesFailed = errors.New("scenes failed")
)

// SceneFailure pairs a failed scene with its cause.
type SceneFailure struct {
	SceneIndex int
	Err        error
}

// SceneFailuresError aggregates every failed scene of a run. The run's
// successful scenes stay cached, so a rerun retries only the failures.
type SceneFailuresError struct {
	Failures []SceneFailure
}

func (e *SceneFailuresError) Error() string {
	sorted := append([]SceneFailure(nil), e.Failures...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SceneIndex < sorted[j].SceneIndex })

	parts := make([]string, 0, len(sorted))
	for _, failure := range sorted {
		parts = append(parts, fmt.Sprintf("scene %d: %v", failure.SceneIndex, failure.Err))
	}
	return fmt.Sprintf("%d of run's scenes failed: %s", len(sorted), strings.Join(parts, "; "))
}

func (e *SceneFailuresError) Unwrap() error {
	return ErrScenesFailed
}
