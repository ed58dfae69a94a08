package config

import (
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	c.Encoder.Name = strings.ToLower(strings.TrimSpace(c.Encoder.Name))
	c.Encoder.Preset = strings.TrimSpace(c.Encoder.Preset)
	c.Metric.Name = strings.ToLower(strings.TrimSpace(c.Metric.Name))
	c.Scenes.DetectorBinary = strings.TrimSpace(c.Scenes.DetectorBinary)
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	c.Tools.Mkvmerge = strings.TrimSpace(c.Tools.Mkvmerge)
	c.Tools.SSIMULACRA2 = strings.TrimSpace(c.Tools.SSIMULACRA2)
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Encoder.Name == "" {
		c.Encoder.Name = defaultEncoderName
	}
	if c.Encoder.Passes <= 0 {
		c.Encoder.Passes = defaultEncoderPasses
	}
	if c.Metric.Name == "" {
		c.Metric.Name = defaultMetricName
	}
	if c.Metric.Percentile == 0 {
		c.Metric.Percentile = defaultMetricPercentile
	}
	if c.Scenes.DetectorBinary == "" {
		c.Scenes.DetectorBinary = defaultDetectorBinary
	}
	if c.Scenes.MinFrames <= 0 {
		c.Scenes.MinFrames = defaultSceneMinFrames
	}
	if c.Crop.SampleInterval <= 0 {
		c.Crop.SampleInterval = defaultCropSampleEvery
	}
	if c.Crop.Round <= 0 {
		c.Crop.Round = defaultCropRound
	}
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	if c.Tools.Mkvmerge == "" {
		c.Tools.Mkvmerge = defaultMkvmergeBinary
	}
	if c.Tools.SSIMULACRA2 == "" {
		c.Tools.SSIMULACRA2 = defaultSSIM2Binary
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.Logging.File != "" {
		expanded, err := expandPath(c.Logging.File)
		if err != nil {
			return err
		}
		c.Logging.File = expanded
	}
	return nil
}
