package config

const (
	defaultEncoderName      = "x264"
	defaultEncoderQuality   = 18
	defaultEncoderPasses    = 1
	defaultMetricName       = "vmaf"
	defaultMetricPercentile = 0.5
	defaultDetectorBinary   = "cleave-scd"
	defaultSceneSensitivity = 0.4
	defaultSceneMinFrames   = 24
	defaultCropSampleEvery  = 10
	defaultCropRound        = 4
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultMkvmergeBinary   = "mkvmerge"
	defaultSSIM2Binary      = "ssimulacra2"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Encoder: Encoder{
			Name:    defaultEncoderName,
			Quality: defaultEncoderQuality,
			Passes:  defaultEncoderPasses,
		},
		Metric: Metric{
			Name:       defaultMetricName,
			Percentile: defaultMetricPercentile,
		},
		Scenes: Scenes{
			DetectorBinary: defaultDetectorBinary,
			Sensitivity:    defaultSceneSensitivity,
			MinFrames:      defaultSceneMinFrames,
		},
		Crop: Crop{
			Enabled:        true,
			SampleInterval: defaultCropSampleEvery,
			Round:          defaultCropRound,
		},
		Tools: Tools{
			FFmpeg:      defaultFFmpegBinary,
			FFprobe:     defaultFFprobeBinary,
			Mkvmerge:    defaultMkvmergeBinary,
			SSIMULACRA2: defaultSSIM2Binary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
