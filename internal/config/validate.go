package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EncoderNames is the closed set of encoder variants cleave can drive.
var EncoderNames = []string{"aomenc", "drapto", "x264", "x265"}

// MetricNames is the closed set of quality metric variants.
var MetricNames = []string{"psnr", "ssim", "ssimulacra2", "vmaf"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateMetric(); err != nil {
		return err
	}
	if err := c.validateScenes(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if !contains(EncoderNames, c.Encoder.Name) {
		return fmt.Errorf("encoder.name must be one of %s, got %q", strings.Join(EncoderNames, ", "), c.Encoder.Name)
	}
	if c.Encoder.Quality < 0 {
		return errors.New("encoder.quality must not be negative")
	}
	if c.Encoder.Passes < 1 || c.Encoder.Passes > 3 {
		return errors.New("encoder.passes must be between 1 and 3")
	}
	if c.Encoder.Name == "drapto" && c.Encoder.Passes != 1 {
		return errors.New("encoder.passes is not supported by the drapto encoder")
	}
	return nil
}

func (c *Config) validateMetric() error {
	if !contains(MetricNames, c.Metric.Name) {
		return fmt.Errorf("metric.name must be one of %s, got %q", strings.Join(MetricNames, ", "), c.Metric.Name)
	}
	if c.Metric.Percentile <= 0 || c.Metric.Percentile > 1 {
		return errors.New("metric.percentile must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateScenes() error {
	if c.Scenes.Sensitivity < 0 || c.Scenes.Sensitivity > 1 {
		return errors.New("scenes.sensitivity must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func contains(sorted []string, value string) bool {
	i := sort.SearchStrings(sorted, value)
	return i < len(sorted) && sorted[i] == value
}
