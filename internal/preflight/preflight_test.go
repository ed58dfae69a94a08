package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"cleave/internal/config"
	"cleave/internal/testsupport"
)

func TestCheckSourceFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(source, []byte("video"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if result := CheckSourceFile(source); !result.Passed {
		t.Fatalf("expected readable source to pass: %+v", result)
	}
	if result := CheckSourceFile(filepath.Join(dir, "missing.mkv")); result.Passed {
		t.Fatalf("expected missing source to fail: %+v", result)
	}
	if result := CheckSourceFile(dir); result.Passed {
		t.Fatalf("expected directory source to fail: %+v", result)
	}
}

func TestCheckOutputDirectoryWalksToExistingParent(t *testing.T) {
	dir := t.TempDir()
	if result := CheckOutputDirectory(dir); !result.Passed {
		t.Fatalf("expected existing directory to pass: %+v", result)
	}
	if result := CheckOutputDirectory(filepath.Join(dir, "not", "yet", "created")); !result.Passed {
		t.Fatalf("expected creatable directory to pass: %+v", result)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if result := CheckOutputDirectory(file); result.Passed {
		t.Fatalf("expected file path to fail: %+v", result)
	}
}

func TestCheckBinary(t *testing.T) {
	if result := CheckBinary("Shell", "sh"); !result.Passed {
		t.Fatalf("expected sh to resolve: %+v", result)
	}
	if result := CheckBinary("Nope", "definitely-not-a-real-binary"); result.Passed {
		t.Fatalf("expected unknown binary to fail: %+v", result)
	}
	if result := CheckBinary("Empty", "  "); result.Passed {
		t.Fatalf("expected empty command to fail: %+v", result)
	}
}

func TestCheckDiskSpaceReportsFreeBytes(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(source, []byte("tiny"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if result := CheckDiskSpace(dir, source); !result.Passed {
		t.Fatalf("expected plenty of space for a tiny source: %+v", result)
	}
}

func TestRequiredBinariesFollowConfiguration(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Name = "x265"
	cfg.Metric.Name = "ssimulacra2"

	names := map[string]bool{}
	for _, requirement := range requiredBinaries(&cfg) {
		names[requirement.name] = true
	}
	for _, want := range []string{"FFmpeg", "FFprobe", "mkvmerge", "Scene detector", "Encoder", "SSIMULACRA2"} {
		if !names[want] {
			t.Fatalf("expected requirement %q in %v", want, names)
		}
	}

	cfg.Encoder.Name = "drapto"
	cfg.Metric.Name = "vmaf"
	names = map[string]bool{}
	for _, requirement := range requiredBinaries(&cfg) {
		names[requirement.name] = true
	}
	if names["Encoder"] {
		t.Fatal("drapto must not require an encoder binary")
	}
	if names["SSIMULACRA2"] {
		t.Fatal("vmaf must not require the ssimulacra2 binary")
	}
}

func TestRunAllPassesWithStubbedEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunAll(cfg)
	if len(results) == 0 {
		t.Fatal("expected checks to run")
	}
	if !AllPassed(results) {
		t.Fatalf("expected all checks to pass: %+v", results)
	}
}

func TestRunAllFlagsMissingEncoderBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "ffprobe", "mkvmerge", "cleave-scd"))
	cfg.Encoder.Binary = "definitely-not-a-real-encoder"

	results := RunAll(cfg)
	if AllPassed(results) {
		t.Fatal("expected the encoder check to fail")
	}
	for _, result := range results {
		if result.Name == "Encoder" && result.Passed {
			t.Fatalf("expected encoder check failure: %+v", result)
		}
	}
}

func TestRunAllSkipsEncoderBinaryForDrapto(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithEncoder("drapto"),
		testsupport.WithStubbedBinaries("ffmpeg", "ffprobe", "mkvmerge", "cleave-scd"),
	)

	results := RunAll(cfg)
	if !AllPassed(results) {
		t.Fatalf("expected drapto runs to pass without an encoder binary: %+v", results)
	}
	for _, result := range results {
		if result.Name == "Encoder" {
			t.Fatalf("expected no encoder binary check for drapto: %+v", result)
		}
	}
}

func TestRunAllChecksMetricBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithMetric("ssimulacra2"),
		testsupport.WithStubbedBinaries("ffmpeg", "ffprobe", "mkvmerge", "cleave-scd", "x264", "ssimulacra2"),
	)

	results := RunAll(cfg)
	if !AllPassed(results) {
		t.Fatalf("expected stubbed environment to pass: %+v", results)
	}
	checked := false
	for _, result := range results {
		if result.Name == "SSIMULACRA2" {
			checked = true
		}
	}
	if !checked {
		t.Fatal("expected the ssimulacra2 binary to be checked")
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed([]Result{{Passed: true}, {Passed: true}}) {
		t.Fatal("expected all-passed to be true")
	}
	if AllPassed([]Result{{Passed: true}, {Passed: false}}) {
		t.Fatal("expected any failure to be false")
	}
}
