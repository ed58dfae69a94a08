package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Encoder contains the encoder selection and its effective settings.
type Encoder struct {
	// Name selects one of the registered encoder variants: x264, x265,
	// aomenc, or drapto.
	Name    string  `toml:"name"`
	Quality float64 `toml:"quality"`
	Preset  string  `toml:"preset"`
	Passes  int     `toml:"passes"`
	// Binary overrides the encoder executable; empty means the encoder name.
	Binary    string   `toml:"binary"`
	ExtraArgs []string `toml:"extra_args"`
}

// Metric contains the quality metric selection and its parameters.
type Metric struct {
	// Name selects one of the registered metric variants: vmaf, psnr,
	// ssim, or ssimulacra2.
	Name string `toml:"name"`
	// Percentile of the per-frame score distribution reported as the
	// scene score (0..1; 0.5 is the median).
	Percentile float64 `toml:"percentile"`
}

// Scenes contains scene detection configuration.
type Scenes struct {
	DetectorBinary string  `toml:"detector_binary"`
	Sensitivity    float64 `toml:"sensitivity"`
	MinFrames      int     `toml:"min_frames"`
}

// Crop contains crop detection configuration.
type Crop struct {
	Enabled bool `toml:"enabled"`
	// SampleInterval analyzes every Nth keyframe during crop detection.
	SampleInterval int `toml:"sample_interval"`
	Round          int `toml:"round"`
}

// Tools names the external binaries the pipeline shells out to.
type Tools struct {
	FFmpeg      string `toml:"ffmpeg"`
	FFprobe     string `toml:"ffprobe"`
	Mkvmerge    string `toml:"mkvmerge"`
	SSIMULACRA2 string `toml:"ssimulacra2"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for a cleave run.
//
// Sections by subsystem:
//   - Encoder: encoder variant and quality settings
//   - Metric: quality metric variant and percentile
//   - Scenes: scene detection parameters
//   - Crop: crop detection parameters
//   - Tools: external binary names/paths
//   - Logging: log format, level, and optional file
type Config struct {
	Encoder Encoder `toml:"encoder"`
	Metric  Metric  `toml:"metric"`
	Scenes  Scenes  `toml:"scenes"`
	Crop    Crop    `toml:"crop"`
	Tools   Tools   `toml:"tools"`
	Logging Logging `toml:"logging"`

	// Workers bounds scene-task parallelism. Zero means the number of CPUs.
	Workers int `toml:"workers"`

	// Source and OutputDir come from positional CLI arguments.
	Source    string `toml:"-"`
	OutputDir string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cleave/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has path fields expanded and normalized. The bool reports whether a
// file was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("cleave.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// AttachRun sets the per-invocation source path and output directory and
// normalizes them.
func (c *Config) AttachRun(source, outputDir string) error {
	expandedSource, err := expandPath(source)
	if err != nil {
		return err
	}
	expandedOutput, err := expandPath(outputDir)
	if err != nil {
		return err
	}
	c.Source = expandedSource
	c.OutputDir = expandedOutput

	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source video path is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output directory is required")
	}
	return nil
}

// EnsureOutputLayout creates the output directory tree a run needs.
func (c *Config) EnsureOutputLayout() error {
	for _, dir := range []string{
		c.OutputDir,
		c.CacheDir(),
		c.ClipDir(),
		c.EncodeDir(),
		c.FinalDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CacheDir returns the directory holding the cache record file.
func (c *Config) CacheDir() string {
	return filepath.Join(c.OutputDir, "cache")
}

// ClipDir returns the directory holding lossless per-scene clips.
func (c *Config) ClipDir() string {
	return filepath.Join(c.OutputDir, "source")
}

// EncodeDir returns the directory holding encoded scene artifacts for the
// active encoder settings.
func (c *Config) EncodeDir() string {
	return filepath.Join(c.OutputDir, "encode", c.EncodeIdentifier())
}

// FinalDir returns the directory holding merged output and reports.
func (c *Config) FinalDir() string {
	return filepath.Join(c.OutputDir, "output")
}

// EncodeIdentifier namespaces encode artifacts by encoder settings so runs
// with different settings coexist in one output directory.
func (c *Config) EncodeIdentifier() string {
	name := strings.TrimSpace(c.Encoder.Name)
	if name == "" {
		name = "encoder"
	}
	identifier := fmt.Sprintf("%s-q%g", name, c.Encoder.Quality)
	if preset := strings.TrimSpace(c.Encoder.Preset); preset != "" {
		identifier += "-" + preset
	}
	return identifier
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
