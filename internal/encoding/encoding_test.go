package encoding

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"cleave/internal/config"
)

func TestFromConfigResolvesClosedSet(t *testing.T) {
	cases := []struct {
		name string
		ext  string
	}{
		{"x264", "mkv"},
		{"x265", "hevc"},
		{"aomenc", "ivf"},
		{"drapto", "mkv"},
	}
	for _, tc := range cases {
		variant, err := FromConfig(config.Encoder{Name: tc.name, Quality: 18, Passes: 1}, "ffmpeg")
		if err != nil {
			t.Fatalf("FromConfig(%s): %v", tc.name, err)
		}
		if variant.Name() != tc.name {
			t.Fatalf("expected name %q, got %q", tc.name, variant.Name())
		}
		if variant.OutputExt() != tc.ext {
			t.Fatalf("expected ext %q for %s, got %q", tc.ext, tc.name, variant.OutputExt())
		}
	}
}

func TestFromConfigRejectsUnknownEncoder(t *testing.T) {
	if _, err := FromConfig(config.Encoder{Name: "rav1e"}, "ffmpeg"); err == nil {
		t.Fatal("expected unknown encoder to be rejected")
	}
}

func TestCanonicalParamsReflectSettings(t *testing.T) {
	a, err := FromConfig(config.Encoder{Name: "x264", Quality: 18, Passes: 1}, "ffmpeg")
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	b, err := FromConfig(config.Encoder{Name: "x264", Quality: 20, Passes: 1}, "ffmpeg")
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	paramsA, err := a.CanonicalParams()
	if err != nil {
		t.Fatalf("CanonicalParams: %v", err)
	}
	paramsA2, err := a.CanonicalParams()
	if err != nil {
		t.Fatalf("CanonicalParams: %v", err)
	}
	paramsB, err := b.CanonicalParams()
	if err != nil {
		t.Fatalf("CanonicalParams: %v", err)
	}

	if !bytes.Equal(paramsA, paramsA2) {
		t.Fatal("expected canonical params to be deterministic")
	}
	if bytes.Equal(paramsA, paramsB) {
		t.Fatal("expected quality to change canonical params")
	}
}

func TestX264ArgsSinglePass(t *testing.T) {
	args := x264Args(config.Encoder{Name: "x264", Quality: 18, Preset: "slow", Passes: 1}, 1, "/tmp/stats", "/out/scene.mkv")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--demuxer y4m") {
		t.Fatalf("expected y4m demuxer, got %v", args)
	}
	if !strings.Contains(joined, "--crf 18") {
		t.Fatalf("expected crf flag, got %v", args)
	}
	if !strings.Contains(joined, "--preset slow") {
		t.Fatalf("expected preset flag, got %v", args)
	}
	if strings.Contains(joined, "--pass") {
		t.Fatalf("single pass must not emit pass flags, got %v", args)
	}
	if args[len(args)-1] != "-" {
		t.Fatalf("expected stdin input, got %v", args)
	}
}

func TestX265ArgsMultiPass(t *testing.T) {
	cfg := config.Encoder{Name: "x265", Quality: 22, Passes: 2}
	first := strings.Join(x265Args(cfg, 1, "/tmp/stats", "/out/scene.hevc"), " ")
	second := strings.Join(x265Args(cfg, 2, "/tmp/stats", "/out/scene.hevc"), " ")
	if !strings.Contains(first, "--pass 1 --stats /tmp/stats") {
		t.Fatalf("expected first pass flags, got %q", first)
	}
	if !strings.Contains(second, "--pass 2 --stats /tmp/stats") {
		t.Fatalf("expected second pass flags, got %q", second)
	}
}

func TestAomencArgsQualityMode(t *testing.T) {
	args := aomencArgs(config.Encoder{Name: "aomenc", Quality: 30, Preset: "4", Passes: 1}, 1, "/tmp/stats", "/out/scene.ivf")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--end-usage=q") {
		t.Fatalf("expected constrained quality mode, got %v", args)
	}
	if !strings.Contains(joined, "--cq-level=30") {
		t.Fatalf("expected cq level, got %v", args)
	}
	if !strings.Contains(joined, "--cpu-used=4") {
		t.Fatalf("expected cpu-used from preset, got %v", args)
	}
	if !strings.Contains(joined, "--ivf") {
		t.Fatalf("expected ivf container, got %v", args)
	}
}

func TestBinaryForPrefersOverride(t *testing.T) {
	if got := binaryFor(config.Encoder{Name: "x264"}); got != "x264" {
		t.Fatalf("expected encoder name as binary, got %q", got)
	}
	if got := binaryFor(config.Encoder{Name: "x264", Binary: "/opt/x264"}); got != "/opt/x264" {
		t.Fatalf("expected override binary, got %q", got)
	}
}

func TestCLIVariantEncodeRunsEveryPass(t *testing.T) {
	var passFlags []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		for i, arg := range args {
			if arg == "--pass" && i+1 < len(args) {
				passFlags = append(passFlags, args[i+1])
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ENCODER_HELPER_MODE=drain")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	variant, err := FromConfig(config.Encoder{Name: "x264", Quality: 18, Passes: 2}, "ffmpeg")
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	cli := variant.(*cliVariant)
	cli.decode = func(ctx context.Context, clip string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ENCODER_HELPER_MODE=emit")
		return cmd
	}

	dest := filepath.Join(t.TempDir(), "scene-00000.mkv.tmp")
	if err := cli.Encode(context.Background(), "/out/source/scene-00000.mkv", dest); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if len(passFlags) != 2 || passFlags[0] != "1" || passFlags[1] != "2" {
		t.Fatalf("expected passes 1 then 2, got %v", passFlags)
	}
}

func TestCLIVariantEncodeSurfacesEncoderFailure(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ENCODER_HELPER_MODE=fail")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	variant, err := FromConfig(config.Encoder{Name: "x265", Quality: 22, Passes: 1}, "ffmpeg")
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	cli := variant.(*cliVariant)
	cli.decode = func(ctx context.Context, clip string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ENCODER_HELPER_MODE=emit")
		return cmd
	}

	err = cli.Encode(context.Background(), "/out/source/scene.mkv", filepath.Join(t.TempDir(), "scene.hevc.tmp"))
	if err == nil {
		t.Fatal("expected encoder failure to surface")
	}
	if !strings.Contains(err.Error(), "external tool error") {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ENCODER_HELPER_MODE") {
	case "emit":
		fmt.Println("YUV4MPEG2 W64 H64 F24:1 Ip A1:1 C420p10")
		os.Exit(0)
	case "drain":
		_, _ = os.Stdin.Read(make([]byte, 4096))
		os.Exit(0)
	case "fail":
		_, _ = os.Stdin.Read(make([]byte, 4096))
		fmt.Fprintln(os.Stderr, "rate control failure")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
