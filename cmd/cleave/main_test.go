package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, _, err = runCLI(t, []string{"config", "validate", "--path", target}, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected init to refuse overwrite, got %v", err)
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	out, _, err := runCLI(t, []string{"config", "show"}, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[encoder]") || !strings.Contains(out, "[metric]") {
		t.Fatalf("expected TOML sections in output, got %q", out)
	}
}

func TestPreflightReportsMissingSource(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "does-not-exist.mkv")

	out, _, err := runCLI(t, []string{"preflight", missing, filepath.Join(tmp, "out")}, "")
	if err == nil {
		t.Fatal("expected preflight to fail for a missing source")
	}
	if !strings.Contains(out, "Source file") || !strings.Contains(out, "FAIL") {
		t.Fatalf("expected a failing source check in output, got %q", out)
	}
}

func TestReportPrintsPreviousRun(t *testing.T) {
	tmp := t.TempDir()
	reportDir := filepath.Join(tmp, "output")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Default encoder settings resolve to the x264-q18 identifier.
	content := "cleave report 2026-01-01T00:00:00Z\nscene table here\n"
	if err := os.WriteFile(filepath.Join(reportDir, "x264-q18.report.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	out, _, err := runCLI(t, []string{"report", tmp}, "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "scene table here") {
		t.Fatalf("unexpected report output: %q", out)
	}

	_, _, err = runCLI(t, []string{"report", tmp, "--quality", "22"}, "")
	if err == nil || !strings.Contains(err.Error(), "no report at") {
		t.Fatalf("expected missing report error for other settings, got %v", err)
	}
}

func TestEncodeRequiresArguments(t *testing.T) {
	_, _, err := runCLI(t, []string{"encode"}, "")
	if err == nil {
		t.Fatal("expected encode without arguments to fail")
	}
}

func TestEncodeStopsOnFailedPreflight(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "does-not-exist.mkv")

	_, stderr, err := runCLI(t, []string{"encode", missing, filepath.Join(tmp, "out")}, "")
	if err == nil {
		t.Fatal("expected encode to fail preflight for a missing source")
	}
	if !strings.Contains(err.Error(), "preflight") {
		t.Fatalf("expected a preflight error, got %v", err)
	}
	if !strings.Contains(stderr, "Source file") {
		t.Fatalf("expected the failing check on stderr, got %q", stderr)
	}
}

func TestEncodeWorkersZeroMeansCPUCount(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "does-not-exist.mkv")

	// An explicit --workers 0 falls back to the CPU count instead of
	// tripping validation; the run then fails preflight on the source.
	_, _, err := runCLI(t, []string{"encode", "--workers", "0", missing, filepath.Join(tmp, "out")}, "")
	if err == nil {
		t.Fatal("expected encode to fail preflight for a missing source")
	}
	if strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected --workers 0 to pass validation, got %v", err)
	}
	if !strings.Contains(err.Error(), "preflight") {
		t.Fatalf("expected a preflight error, got %v", err)
	}
}
