package vmaf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"cleave/internal/media"
)

// SSIMULACRA2 scores clips with the standalone ssimulacra2 binary, which
// prints one per-frame score per line.
type SSIMULACRA2 struct {
	binary string
}

// NewSSIMULACRA2 constructs the helper-binary scorer.
func NewSSIMULACRA2(binary string) *SSIMULACRA2 {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ssimulacra2"
	}
	return &SSIMULACRA2{binary: binary}
}

// Score compares encoded against reference frame by frame.
func (s *SSIMULACRA2) Score(ctx context.Context, encoded, reference string) (Scores, error) {
	if strings.TrimSpace(encoded) == "" || strings.TrimSpace(reference) == "" {
		return Scores{}, media.Wrap(media.ErrValidation, "ssimulacra2", "score", "encoded and reference paths required", nil)
	}

	cmd := commandContext(ctx, s.binary, "--frames", reference, encoded)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Scores{}, media.Wrap(media.ErrExternalTool, "ssimulacra2", "score", detail, err)
	}

	frames, err := parseFrameLines(output)
	if err != nil {
		return Scores{}, media.Wrap(media.ErrExternalTool, "ssimulacra2", "parse", "", err)
	}
	return Scores{Metric: "ssimulacra2", Frames: frames}, nil
}

// parseFrameLines reads "index: score" or bare score lines.
func parseFrameLines(output []byte) ([]float64, error) {
	var frames []float64
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, rest, found := strings.Cut(line, ":"); found {
			line = strings.TrimSpace(rest)
		}
		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("score line %q: %w", scanner.Text(), err)
		}
		frames = append(frames, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frame scores in output")
	}
	return frames, nil
}
