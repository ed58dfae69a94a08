// Package scheduler runs per-scene pipeline tasks under a bounded worker
// pool. Scenes are dispatched longest-first so large scenes cannot pile up
// at the tail of the run, and one scene's failure never cancels its
// siblings: failures are collected and reported together.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"cleave/internal/logging"
)

// Task is one scene's unit of work.
type Task struct {
	SceneIndex int
	// Frames orders dispatch; longer scenes start first.
	Frames int64
	Run    func(ctx context.Context) error
}

// Result reports one task's outcome.
type Result struct {
	SceneIndex int
	Frames     int64
	Err        error
	Duration   time.Duration
}

// Run executes tasks with at most workers running concurrently and returns
// one Result per task, ordered by scene index. Cancellation of ctx stops
// dispatching new tasks; already-running tasks see the cancellation through
// their own context.
func Run(ctx context.Context, workers int, tasks []Task, logger *slog.Logger) []Result {
	if workers < 1 {
		workers = 1
	}
	logger = logging.NewComponentLogger(logger, "scheduler")

	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Frames > ordered[j].Frames
	})

	results := make([]Result, len(ordered))
	group := new(errgroup.Group)
	group.SetLimit(workers)

	for i, task := range ordered {
		group.Go(func() error {
			result := Result{SceneIndex: task.SceneIndex, Frames: task.Frames}
			if err := ctx.Err(); err != nil {
				result.Err = err
				results[i] = result
				return nil
			}

			taskCtx := logging.WithSceneIndex(ctx, task.SceneIndex)
			start := time.Now()
			result.Err = task.Run(taskCtx)
			result.Duration = time.Since(start)
			results[i] = result

			if result.Err != nil {
				logger.Error("scene task failed",
					logging.Int(logging.FieldSceneIndex, task.SceneIndex),
					logging.Duration("elapsed", result.Duration),
					logging.Error(result.Err),
				)
			} else {
				logger.Debug("scene task finished",
					logging.Int(logging.FieldSceneIndex, task.SceneIndex),
					logging.Duration("elapsed", result.Duration),
				)
			}
			return nil
		})
	}
	// Tasks never return errors through the group; Wait only joins.
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].SceneIndex < results[j].SceneIndex
	})
	return results
}

// Failed filters results down to the scenes that reported an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}
	return failed
}
