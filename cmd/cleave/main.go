package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cleave/internal/pipeline"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		var sceneErr *pipeline.SceneFailuresError
		if errors.As(err, &sceneErr) {
			// Partial failure: successful scenes are cached, a rerun
			// retries only the failures.
			os.Exit(2)
		}
		os.Exit(1)
	}
}
