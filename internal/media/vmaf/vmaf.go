// Package vmaf scores encoded clips against their lossless references. The
// VMAF, PSNR, and SSIM metrics run through ffmpeg's libvmaf filter with a
// JSON log; SSIMULACRA2 runs through its own helper binary.
package vmaf

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"cleave/internal/media"
)

var commandContext = exec.CommandContext

// Scores holds the per-frame score distribution for one metric.
type Scores struct {
	Metric string
	Frames []float64
}

// Mean returns the arithmetic mean over all frames.
func (s Scores) Mean() float64 {
	if len(s.Frames) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Frames {
		sum += v
	}
	return sum / float64(len(s.Frames))
}

// Percentile returns the p-quantile (0 < p <= 1) of the frame scores using
// nearest-rank selection. Percentile(0.5) is the median.
func (s Scores) Percentile(p float64) float64 {
	if len(s.Frames) == 0 {
		return 0
	}
	sorted := append([]float64(nil), s.Frames...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// Min returns the lowest frame score.
func (s Scores) Min() float64 {
	if len(s.Frames) == 0 {
		return 0
	}
	min := s.Frames[0]
	for _, v := range s.Frames[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Scorer runs libvmaf-based metrics through ffmpeg.
type Scorer struct {
	binary string
}

// NewScorer constructs a Scorer for the given ffmpeg binary.
func NewScorer(binary string) *Scorer {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Scorer{binary: binary}
}

// frameKeys maps metric names to the per-frame key libvmaf writes.
var frameKeys = map[string]string{
	"vmaf": "vmaf",
	"psnr": "psnr_y",
	"ssim": "float_ssim",
}

// Supports reports whether metric runs through the libvmaf filter.
func (s *Scorer) Supports(metric string) bool {
	_, ok := frameKeys[strings.ToLower(strings.TrimSpace(metric))]
	return ok
}

// Score compares encoded against reference and returns per-frame scores for
// the requested metric.
func (s *Scorer) Score(ctx context.Context, metric, encoded, reference string) (Scores, error) {
	metric = strings.ToLower(strings.TrimSpace(metric))
	frameKey, ok := frameKeys[metric]
	if !ok {
		return Scores{}, media.Wrap(media.ErrValidation, "libvmaf", "score", fmt.Sprintf("unsupported metric %q", metric), nil)
	}
	if strings.TrimSpace(encoded) == "" || strings.TrimSpace(reference) == "" {
		return Scores{}, media.Wrap(media.ErrValidation, "libvmaf", "score", "encoded and reference paths required", nil)
	}

	logDir, err := os.MkdirTemp("", "cleave-vmaf-")
	if err != nil {
		return Scores{}, fmt.Errorf("vmaf log dir: %w", err)
	}
	defer os.RemoveAll(logDir)
	logPath := filepath.Join(logDir, "log.json")

	filter := fmt.Sprintf("libvmaf=log_fmt=json:log_path=%s", logPath)
	switch metric {
	case "psnr":
		filter += ":feature=name=psnr"
	case "ssim":
		filter += ":feature=name=float_ssim"
	}

	// The distorted stream is the first input by libvmaf convention.
	cmd := commandContext(ctx, s.binary,
		"-hide_banner",
		"-nostdin",
		"-i", encoded,
		"-i", reference,
		"-lavfi", filter,
		"-f", "null", "-",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return Scores{}, media.Wrap(media.ErrExternalTool, "libvmaf", "score", lastLines(string(output)), err)
	}

	payload, err := os.ReadFile(logPath)
	if err != nil {
		return Scores{}, fmt.Errorf("read vmaf log: %w", err)
	}
	frames, err := parseLog(payload, frameKey)
	if err != nil {
		return Scores{}, media.Wrap(media.ErrExternalTool, "libvmaf", "parse", "", err)
	}
	return Scores{Metric: metric, Frames: frames}, nil
}

func parseLog(payload []byte, frameKey string) ([]float64, error) {
	var log struct {
		Frames []struct {
			FrameNum int                `json:"frameNum"`
			Metrics  map[string]float64 `json:"metrics"`
		} `json:"frames"`
	}
	if err := json.Unmarshal(payload, &log); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	if len(log.Frames) == 0 {
		return nil, fmt.Errorf("log has no frames")
	}
	frames := make([]float64, 0, len(log.Frames))
	for _, frame := range log.Frames {
		value, ok := frame.Metrics[frameKey]
		if !ok {
			return nil, fmt.Errorf("frame %d missing metric %q", frame.FrameNum, frameKey)
		}
		frames = append(frames, value)
	}
	return frames, nil
}

func lastLines(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
