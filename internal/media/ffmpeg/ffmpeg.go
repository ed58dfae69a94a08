// Package ffmpeg wraps the ffmpeg and mkvmerge invocations the pipeline
// depends on: crop detection, lossless scene extraction, y4m decoding for
// CLI encoders, and final concatenation.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"cleave/internal/media"
)

var commandContext = exec.CommandContext

// Client invokes ffmpeg.
type Client struct {
	binary string
}

// NewClient constructs a Client for the given ffmpeg binary. An empty binary
// falls back to "ffmpeg".
func NewClient(binary string) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Client{binary: binary}
}

var cropPattern = regexp.MustCompile(`crop=(\d+:\d+:\d+:\d+)`)

// DetectCrop samples keyframes at the given interval in seconds and returns
// the dominant crop rectangle as an ffmpeg crop filter value ("W:H:X:Y").
// An empty string means no stable crop was detected.
func (c *Client) DetectCrop(ctx context.Context, source string, sampleInterval, round int) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", media.Wrap(media.ErrValidation, "ffmpeg", "cropdetect", "empty source path", nil)
	}
	if sampleInterval <= 0 {
		sampleInterval = 10
	}
	if round <= 0 {
		round = 2
	}

	// Keyframes only, sampled; cropdetect reports on stderr.
	filter := fmt.Sprintf(`select='eq(pict_type\,I)*isnan(prev_selected_t)+gte(t-prev_selected_t\,%d)',cropdetect=round=%d`, sampleInterval, round)
	cmd := commandContext(ctx, c.binary,
		"-hide_banner",
		"-nostdin",
		"-i", source,
		"-vf", filter,
		"-an", "-sn",
		"-f", "null", "-",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", media.Wrap(media.ErrExternalTool, "ffmpeg", "cropdetect", tail(string(output)), err)
	}
	return dominantCrop(string(output)), nil
}

// dominantCrop picks the most frequent crop value from cropdetect output.
func dominantCrop(output string) string {
	counts := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		match := cropPattern.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		counts[match[1]]++
	}
	if len(counts) == 0 {
		return ""
	}
	crops := make([]string, 0, len(counts))
	for crop := range counts {
		crops = append(crops, crop)
	}
	sort.Slice(crops, func(i, j int) bool {
		if counts[crops[i]] != counts[crops[j]] {
			return counts[crops[i]] > counts[crops[j]]
		}
		return crops[i] < crops[j]
	})
	return crops[0]
}

// ExtractRequest describes one lossless scene extraction.
type ExtractRequest struct {
	Source string
	Dest   string
	// StartFrame and EndFrame bound the scene as [StartFrame, EndFrame).
	StartFrame int64
	EndFrame   int64
	// Crop, when non-empty, is an ffmpeg crop filter value ("W:H:X:Y").
	Crop string
}

// ExtractScene decodes the requested frame range, applies the crop, and
// writes a lossless FFV1 clip to req.Dest.
func (c *Client) ExtractScene(ctx context.Context, req ExtractRequest) error {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Dest) == "" {
		return media.Wrap(media.ErrValidation, "ffmpeg", "extract", "source and dest paths required", nil)
	}
	if req.StartFrame < 0 || req.EndFrame <= req.StartFrame {
		return media.Wrap(media.ErrValidation, "ffmpeg", "extract",
			fmt.Sprintf("invalid frame range [%d, %d)", req.StartFrame, req.EndFrame), nil)
	}

	filters := []string{
		fmt.Sprintf("trim=start_frame=%d:end_frame=%d", req.StartFrame, req.EndFrame),
		"setpts=PTS-STARTPTS",
	}
	if crop := strings.TrimSpace(req.Crop); crop != "" {
		filters = append(filters, "crop="+crop)
	}

	cmd := commandContext(ctx, c.binary,
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", req.Source,
		"-vf", strings.Join(filters, ","),
		"-an", "-sn",
		"-c:v", "ffv1",
		"-f", "matroska",
		req.Dest,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return media.Wrap(media.ErrExternalTool, "ffmpeg", "extract", tail(string(output)), err)
	}
	return nil
}

// DecodeCommand builds the ffmpeg process that decodes a clip to a 10-bit
// y4m stream on stdout, suitable for piping into a CLI encoder. The caller
// owns starting and waiting on the command.
func (c *Client) DecodeCommand(ctx context.Context, clip string) *exec.Cmd {
	return commandContext(ctx, c.binary,
		"-hide_banner",
		"-nostdin",
		"-v", "error",
		"-i", clip,
		"-pix_fmt", "yuv420p10le",
		"-strict", "-1",
		"-f", "yuv4mpegpipe",
		"-",
	)
}

// Merger concatenates encoded scene files with mkvmerge.
type Merger struct {
	binary string
}

// NewMerger constructs a Merger for the given mkvmerge binary.
func NewMerger(binary string) *Merger {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "mkvmerge"
	}
	return &Merger{binary: binary}
}

// Merge appends the inputs in order into a single container at dest.
func (m *Merger) Merge(ctx context.Context, dest string, inputs []string) error {
	if strings.TrimSpace(dest) == "" {
		return media.Wrap(media.ErrValidation, "mkvmerge", "merge", "empty destination", nil)
	}
	if len(inputs) == 0 {
		return media.Wrap(media.ErrValidation, "mkvmerge", "merge", "no inputs", nil)
	}

	args := []string{"-o", dest, inputs[0]}
	for _, input := range inputs[1:] {
		args = append(args, "+"+input)
	}
	cmd := commandContext(ctx, m.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return media.Wrap(media.ErrExternalTool, "mkvmerge", "merge", tail(string(output)), err)
	}
	return nil
}

// tail keeps error output manageable while preserving the diagnostic lines
// ffmpeg prints last.
func tail(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) > 6 {
		lines = lines[len(lines)-6:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
