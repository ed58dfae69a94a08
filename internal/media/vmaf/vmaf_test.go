package vmaf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestScoresStatistics(t *testing.T) {
	s := Scores{Metric: "vmaf", Frames: []float64{90, 95, 85, 100, 80}}
	if got := s.Mean(); got != 90 {
		t.Fatalf("expected mean 90, got %f", got)
	}
	if got := s.Min(); got != 80 {
		t.Fatalf("expected min 80, got %f", got)
	}
	if got := s.Percentile(0.5); got != 90 {
		t.Fatalf("expected median 90, got %f", got)
	}
	if got := s.Percentile(1); got != 100 {
		t.Fatalf("expected max percentile 100, got %f", got)
	}
	if got := s.Percentile(0.2); got != 80 {
		t.Fatalf("expected p20 80, got %f", got)
	}
}

func TestScoresEmptyDistribution(t *testing.T) {
	var s Scores
	if s.Mean() != 0 || s.Min() != 0 || s.Percentile(0.5) != 0 {
		t.Fatal("expected zero statistics for empty distribution")
	}
}

func TestParseLogExtractsMetric(t *testing.T) {
	payload := []byte(`{
  "frames": [
    {"frameNum": 0, "metrics": {"vmaf": 93.5, "psnr_y": 44.1}},
    {"frameNum": 1, "metrics": {"vmaf": 91.2, "psnr_y": 43.8}}
  ]
}`)
	frames, err := parseLog(payload, "vmaf")
	if err != nil {
		t.Fatalf("parseLog returned error: %v", err)
	}
	if len(frames) != 2 || frames[0] != 93.5 || frames[1] != 91.2 {
		t.Fatalf("unexpected frames %v", frames)
	}

	frames, err = parseLog(payload, "psnr_y")
	if err != nil {
		t.Fatalf("parseLog returned error: %v", err)
	}
	if frames[0] != 44.1 {
		t.Fatalf("unexpected psnr frames %v", frames)
	}
}

func TestParseLogRejectsMissingMetric(t *testing.T) {
	payload := []byte(`{"frames": [{"frameNum": 0, "metrics": {"vmaf": 93.5}}]}`)
	if _, err := parseLog(payload, "float_ssim"); err == nil {
		t.Fatal("expected missing metric key to be rejected")
	}
}

func TestParseLogRejectsEmptyFrames(t *testing.T) {
	if _, err := parseLog([]byte(`{"frames": []}`), "vmaf"); err == nil {
		t.Fatal("expected empty frame list to be rejected")
	}
}

func TestScorerSupports(t *testing.T) {
	s := NewScorer("ffmpeg")
	for _, metric := range []string{"vmaf", "psnr", "ssim"} {
		if !s.Supports(metric) {
			t.Fatalf("expected %s to be supported", metric)
		}
	}
	if s.Supports("ssimulacra2") {
		t.Fatal("ssimulacra2 runs through its own scorer")
	}
}

func TestScoreRejectsUnknownMetric(t *testing.T) {
	s := NewScorer("ffmpeg")
	if _, err := s.Score(context.Background(), "butteraugli", "/a.mkv", "/b.mkv"); err == nil {
		t.Fatal("expected unknown metric to be rejected")
	}
}

func TestScoreWritesAndReadsLog(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		logPath := ""
		for _, arg := range args {
			if idx := strings.Index(arg, "log_path="); idx != -1 {
				rest := arg[idx+len("log_path="):]
				if colon := strings.Index(rest, ":"); colon != -1 {
					rest = rest[:colon]
				}
				logPath = rest
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"VMAF_HELPER_MODE=success",
			"VMAF_HELPER_LOG="+logPath,
		)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	s := NewScorer("ffmpeg")
	scores, err := s.Score(context.Background(), "vmaf", "/enc/scene-00000.mkv", "/src/scene-00000.mkv")
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if len(scores.Frames) != 2 {
		t.Fatalf("expected 2 frame scores, got %v", scores.Frames)
	}
	if scores.Metric != "vmaf" {
		t.Fatalf("unexpected metric %q", scores.Metric)
	}
}

func TestSSIMULACRA2ParsesFrameLines(t *testing.T) {
	frames, err := parseFrameLines([]byte("0: 82.4\n1: 79.1\n\n2: 85.0\n"))
	if err != nil {
		t.Fatalf("parseFrameLines returned error: %v", err)
	}
	if len(frames) != 3 || frames[1] != 79.1 {
		t.Fatalf("unexpected frames %v", frames)
	}

	frames, err = parseFrameLines([]byte("82.4\n79.1\n"))
	if err != nil {
		t.Fatalf("parseFrameLines returned error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestSSIMULACRA2RejectsEmptyOutput(t *testing.T) {
	if _, err := parseFrameLines(nil); err == nil {
		t.Fatal("expected empty output to be rejected")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("VMAF_HELPER_MODE") {
	case "success":
		logPath := os.Getenv("VMAF_HELPER_LOG")
		if logPath != "" {
			payload := `{"frames": [{"frameNum": 0, "metrics": {"vmaf": 93.5}}, {"frameNum": 1, "metrics": {"vmaf": 91.2}}]}`
			if err := os.WriteFile(logPath, []byte(payload), 0o644); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "could not open reference")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
