// Package preflight validates the run environment before any expensive work
// starts: the source file, the output directory, the external binaries the
// configured pipeline will invoke, and available disk space.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"cleave/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check applicable to the given config. The binary
// list follows the configuration: only tools the configured encoder, metric,
// and detector actually need are required.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckSourceFile(cfg.Source),
		CheckOutputDirectory(cfg.OutputDir),
	}
	for _, requirement := range requiredBinaries(cfg) {
		results = append(results, CheckBinary(requirement.name, requirement.command))
	}
	results = append(results, CheckDiskSpace(cfg.OutputDir, cfg.Source))
	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// CheckSourceFile verifies the source video exists and is readable.
func CheckSourceFile(path string) Result {
	const name = "Source file"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckOutputDirectory verifies the output directory (or its nearest
// existing parent, when the run will create it) is writable.
func CheckOutputDirectory(path string) Result {
	const name = "Output directory"
	target := path
	for {
		info, err := os.Stat(target)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", target)}
			}
			break
		}
		if !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", target, err)}
		}
		parent := filepath.Dir(target)
		if parent == target {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
		}
		target = parent
	}
	if err := unix.Access(target, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", target, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies the command resolves on PATH (or is an existing
// executable path).
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "no binary configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", command, err)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckDiskSpace verifies the filesystem holding the output directory has at
// least as much free space as the source file occupies. Lossless scene clips
// routinely exceed the source size, so this is a floor, not a guarantee.
func CheckDiskSpace(outputDir, source string) Result {
	const name = "Disk space"

	target := outputDir
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		parent := filepath.Dir(target)
		if parent == target {
			break
		}
		target = parent
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(target, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", target, err)}
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)

	var need int64
	if info, err := os.Stat(source); err == nil {
		need = info.Size()
	}
	if need > 0 && free < need {
		return Result{Name: name, Detail: fmt.Sprintf("%d bytes free, source is %d bytes", free, need)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d bytes free", free)}
}

type binaryRequirement struct {
	name    string
	command string
}

func requiredBinaries(cfg *config.Config) []binaryRequirement {
	requirements := []binaryRequirement{
		{"FFmpeg", cfg.Tools.FFmpeg},
		{"FFprobe", cfg.Tools.FFprobe},
		{"mkvmerge", cfg.Tools.Mkvmerge},
		{"Scene detector", cfg.Scenes.DetectorBinary},
	}
	switch cfg.Encoder.Name {
	case "drapto":
		// Encodes through the drapto library, no binary needed.
	default:
		command := cfg.Encoder.Binary
		if command == "" {
			command = cfg.Encoder.Name
		}
		requirements = append(requirements, binaryRequirement{"Encoder", command})
	}
	if cfg.Metric.Name == "ssimulacra2" {
		requirements = append(requirements, binaryRequirement{"SSIMULACRA2", cfg.Tools.SSIMULACRA2})
	}
	return requirements
}
