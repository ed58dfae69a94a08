// Package scenedetect runs the external scene-change detector and parses the
// boundary list it emits.
package scenedetect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"cleave/internal/media"
)

var commandContext = exec.CommandContext

// Detector wraps the scene-change detector binary. The tool prints one
// boundary frame index per line on stdout, ordered ascending.
type Detector struct {
	binary      string
	sensitivity float64
	minFrames   int
}

// New constructs a Detector.
func New(binary string, sensitivity float64, minFrames int) *Detector {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "cleave-scd"
	}
	return &Detector{binary: binary, sensitivity: sensitivity, minFrames: minFrames}
}

// Detect returns the ordered scene boundary frame indices for source. The
// detector's own contract (first boundary 0, last boundary == frame count) is
// validated by the caller, which knows the probed frame count; Detect only
// enforces that the output is non-empty, numeric, and strictly increasing.
func (d *Detector) Detect(ctx context.Context, source string) ([]int64, error) {
	if strings.TrimSpace(source) == "" {
		return nil, media.Wrap(media.ErrValidation, "scenedetect", "detect", "empty source path", nil)
	}

	cmd := commandContext(ctx, d.binary,
		"--input", source,
		"--sensitivity", strconv.FormatFloat(d.sensitivity, 'f', -1, 64),
		"--min-scene-frames", strconv.Itoa(d.minFrames),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, media.Wrap(media.ErrExternalTool, "scenedetect", "detect", strings.TrimSpace(stderr.String()), err)
	}

	boundaries, err := parseBoundaries(output)
	if err != nil {
		return nil, media.Wrap(media.ErrExternalTool, "scenedetect", "parse", "", err)
	}
	return boundaries, nil
}

func parseBoundaries(output []byte) ([]int64, error) {
	var boundaries []int64
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		frame, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("boundary line %q: %w", line, err)
		}
		if frame < 0 {
			return nil, fmt.Errorf("negative boundary %d", frame)
		}
		if n := len(boundaries); n > 0 && frame <= boundaries[n-1] {
			return nil, fmt.Errorf("boundary %d not strictly increasing after %d", frame, boundaries[n-1])
		}
		boundaries = append(boundaries, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(boundaries) < 2 {
		return nil, fmt.Errorf("expected at least two boundaries, got %d", len(boundaries))
	}
	return boundaries, nil
}
