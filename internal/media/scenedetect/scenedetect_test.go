package scenedetect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("SCD_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestDetectParsesBoundaries(t *testing.T) {
	var args []string
	stubCommand(t, "success", &args)

	detector := New("cleave-scd", 0.4, 24)
	boundaries, err := detector.Detect(context.Background(), "/media/source.mkv")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}

	want := []int64{0, 40, 100}
	if len(boundaries) != len(want) {
		t.Fatalf("expected %d boundaries, got %v", len(want), boundaries)
	}
	for i := range want {
		if boundaries[i] != want[i] {
			t.Fatalf("boundary %d: expected %d, got %d", i, want[i], boundaries[i])
		}
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--sensitivity 0.4") {
		t.Fatalf("expected sensitivity flag in args %v", args)
	}
	if !strings.Contains(joined, "--min-scene-frames 24") {
		t.Fatalf("expected min scene frames flag in args %v", args)
	}
}

func TestDetectRejectsUnorderedOutput(t *testing.T) {
	stubCommand(t, "unordered", nil)

	detector := New("cleave-scd", 0.4, 24)
	if _, err := detector.Detect(context.Background(), "/media/source.mkv"); err == nil {
		t.Fatal("expected unordered boundaries to be rejected")
	}
}

func TestDetectRejectsSingleBoundary(t *testing.T) {
	stubCommand(t, "single", nil)

	detector := New("cleave-scd", 0.4, 24)
	if _, err := detector.Detect(context.Background(), "/media/source.mkv"); err == nil {
		t.Fatal("expected a single boundary to be rejected")
	}
}

func TestDetectWrapsToolFailure(t *testing.T) {
	stubCommand(t, "failure", nil)

	detector := New("cleave-scd", 0.4, 24)
	_, err := detector.Detect(context.Background(), "/media/source.mkv")
	if err == nil {
		t.Fatal("expected detector failure to surface")
	}
	if !strings.Contains(err.Error(), "external tool error") {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestParseBoundariesSkipsComments(t *testing.T) {
	boundaries, err := parseBoundaries([]byte("# detector v1\n0\n\n40\n100\n"))
	if err != nil {
		t.Fatalf("parseBoundaries returned error: %v", err)
	}
	if len(boundaries) != 3 {
		t.Fatalf("expected 3 boundaries, got %v", boundaries)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SCD_HELPER_MODE") {
	case "success":
		fmt.Println("0")
		fmt.Println("40")
		fmt.Println("100")
		os.Exit(0)
	case "unordered":
		fmt.Println("0")
		fmt.Println("100")
		fmt.Println("40")
		os.Exit(0)
	case "single":
		fmt.Println("0")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "unsupported pixel format")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
