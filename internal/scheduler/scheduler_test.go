package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"cleave/internal/logging"
)

func TestRunBoundsParallelism(t *testing.T) {
	const workers = 2
	var running, peak int32

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{
			SceneIndex: i,
			Frames:     int64(100 - i),
			Run: func(ctx context.Context) error {
				current := atomic.AddInt32(&running, 1)
				for {
					observed := atomic.LoadInt32(&peak)
					if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
						break
					}
				}
				atomic.AddInt32(&running, -1)
				return nil
			},
		}
	}

	results := Run(context.Background(), workers, tasks, logging.NewNop())
	if len(results) != len(tasks) {
		t.Fatalf("expected %d results, got %d", len(tasks), len(results))
	}
	if got := atomic.LoadInt32(&peak); got > workers {
		t.Fatalf("expected at most %d concurrent tasks, observed %d", workers, got)
	}
}

func TestRunDispatchesLongestFirst(t *testing.T) {
	var mu sync.Mutex
	var order []int

	tasks := []Task{
		{SceneIndex: 0, Frames: 10, Run: recordOrder(&mu, &order, 0)},
		{SceneIndex: 1, Frames: 500, Run: recordOrder(&mu, &order, 1)},
		{SceneIndex: 2, Frames: 60, Run: recordOrder(&mu, &order, 2)},
	}

	Run(context.Background(), 1, tasks, logging.NewNop())

	want := []int{1, 2, 0}
	if len(order) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected dispatch order %v, got %v", want, order)
		}
	}
}

func recordOrder(mu *sync.Mutex, order *[]int, index int) func(context.Context) error {
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		*order = append(*order, index)
		return nil
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	var executed int32
	boom := errors.New("encode exploded")

	tasks := []Task{
		{SceneIndex: 0, Frames: 3, Run: func(ctx context.Context) error {
			atomic.AddInt32(&executed, 1)
			return boom
		}},
		{SceneIndex: 1, Frames: 2, Run: func(ctx context.Context) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}},
		{SceneIndex: 2, Frames: 1, Run: func(ctx context.Context) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}},
	}

	results := Run(context.Background(), 2, tasks, logging.NewNop())
	if got := atomic.LoadInt32(&executed); got != 3 {
		t.Fatalf("expected all tasks to run despite a failure, got %d", got)
	}

	failed := Failed(results)
	if len(failed) != 1 {
		t.Fatalf("expected exactly one failure, got %d", len(failed))
	}
	if failed[0].SceneIndex != 0 {
		t.Fatalf("expected scene 0 to fail, got %d", failed[0].SceneIndex)
	}
	if !errors.Is(failed[0].Err, boom) {
		t.Fatalf("expected original error, got %v", failed[0].Err)
	}
}

func TestRunResultsOrderedBySceneIndex(t *testing.T) {
	tasks := []Task{
		{SceneIndex: 2, Frames: 1, Run: func(ctx context.Context) error { return nil }},
		{SceneIndex: 0, Frames: 9, Run: func(ctx context.Context) error { return nil }},
		{SceneIndex: 1, Frames: 5, Run: func(ctx context.Context) error { return nil }},
	}
	results := Run(context.Background(), 2, tasks, logging.NewNop())
	for i, result := range results {
		if result.SceneIndex != i {
			t.Fatalf("expected results ordered by scene index, got %v", results)
		}
	}
}

func TestRunSkipsTasksAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var executed int32
	tasks := []Task{
		{SceneIndex: 0, Frames: 1, Run: func(ctx context.Context) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}},
		{SceneIndex: 1, Frames: 1, Run: func(ctx context.Context) error {
			atomic.AddInt32(&executed, 1)
			return nil
		}},
	}

	results := Run(ctx, 1, tasks, logging.NewNop())
	if got := atomic.LoadInt32(&executed); got != 0 {
		t.Fatalf("expected no tasks to run after cancellation, got %d", got)
	}
	for _, result := range results {
		if !errors.Is(result.Err, context.Canceled) {
			t.Fatalf("expected cancellation error, got %v", result.Err)
		}
	}
}
