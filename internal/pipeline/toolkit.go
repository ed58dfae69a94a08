package pipeline

import (
	"context"
	"fmt"

	"cleave/internal/config"
	"cleave/internal/encoding"
	"cleave/internal/media/ffmpeg"
	"cleave/internal/media/ffprobe"
	"cleave/internal/media/scenedetect"
	"cleave/internal/media/vmaf"
)

// ProbeResult is the cached output of the probe stage.
type ProbeResult struct {
	FrameCount      int64   `json:"frame_count"`
	FrameRate       float64 `json:"frame_rate"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	// Crop is an ffmpeg crop filter value ("W:H:X:Y"), empty when no crop
	// applies.
	Crop string `json:"crop,omitempty"`
}

// Prober inspects the source and detects the crop rectangle.
type Prober interface {
	Probe(ctx context.Context, source string) (ProbeResult, error)
}

// SceneDetector produces ordered scene boundary frame indices.
type SceneDetector interface {
	Detect(ctx context.Context, source string) ([]int64, error)
}

// Extractor writes a lossless clip for one frame range.
type Extractor interface {
	ExtractScene(ctx context.Context, req ffmpeg.ExtractRequest) error
}

// Scorer measures an encoded clip against its lossless reference.
type Scorer interface {
	Score(ctx context.Context, encoded, reference string) (vmaf.Scores, error)
}

// Merger concatenates encoded scene artifacts.
type Merger interface {
	Merge(ctx context.Context, dest string, inputs []string) error
}

// Toolkit bundles the external boundaries one run depends on. Tests swap in
// fakes; production runs use NewToolkit.
type Toolkit struct {
	Prober   Prober
	Detector SceneDetector
	Extract  Extractor
	Encoder  encoding.Variant
	Scorer   Scorer
	Merger   Merger
}

// NewToolkit wires the real tool clients for the given configuration.
func NewToolkit(cfg *config.Config) (Toolkit, error) {
	encoder, err := encoding.FromConfig(cfg.Encoder, cfg.Tools.FFmpeg)
	if err != nil {
		return Toolkit{}, err
	}
	scorer, err := newScorer(cfg)
	if err != nil {
		return Toolkit{}, err
	}
	return Toolkit{
		Prober: &toolProber{
			ffprobeBinary: cfg.Tools.FFprobe,
			ffmpeg:        ffmpeg.NewClient(cfg.Tools.FFmpeg),
			crop:          cfg.Crop,
		},
		Detector: scenedetect.New(cfg.Scenes.DetectorBinary, cfg.Scenes.Sensitivity, cfg.Scenes.MinFrames),
		Extract:  ffmpeg.NewClient(cfg.Tools.FFmpeg),
		Encoder:  encoder,
		Scorer:   scorer,
		Merger:   ffmpeg.NewMerger(cfg.Tools.Mkvmerge),
	}, nil
}

// toolProber combines ffprobe stream inspection with ffmpeg crop detection.
type toolProber struct {
	ffprobeBinary string
	ffmpeg        *ffmpeg.Client
	crop          config.Crop
}

func (p *toolProber) Probe(ctx context.Context, source string) (ProbeResult, error) {
	inspected, err := ffprobe.Inspect(ctx, p.ffprobeBinary, source)
	if err != nil {
		return ProbeResult{}, err
	}
	stream, ok := inspected.VideoStream()
	if !ok {
		return ProbeResult{}, fmt.Errorf("probe: %s has no video stream", source)
	}
	frameCount := inspected.FrameCount()
	if frameCount <= 0 {
		return ProbeResult{}, fmt.Errorf("probe: %s reports no frames", source)
	}

	result := ProbeResult{
		FrameCount:      frameCount,
		FrameRate:       inspected.FrameRate(),
		Width:           stream.Width,
		Height:          stream.Height,
		DurationSeconds: inspected.DurationSeconds(),
	}
	if p.crop.Enabled {
		crop, err := p.ffmpeg.DetectCrop(ctx, source, p.crop.SampleInterval, p.crop.Round)
		if err != nil {
			return ProbeResult{}, err
		}
		if crop != fmt.Sprintf("%d:%d:0:0", stream.Width, stream.Height) {
			result.Crop = crop
		}
	}
	return result, nil
}

// metricScorer adapts the configured metric to one scoring backend.
type metricScorer struct {
	metric string
	libv   *vmaf.Scorer
	ssim2  *vmaf.SSIMULACRA2
}

func newScorer(cfg *config.Config) (Scorer, error) {
	switch cfg.Metric.Name {
	case "ssimulacra2":
		return &metricScorer{metric: cfg.Metric.Name, ssim2: vmaf.NewSSIMULACRA2(cfg.Tools.SSIMULACRA2)}, nil
	default:
		scorer := vmaf.NewScorer(cfg.Tools.FFmpeg)
		if !scorer.Supports(cfg.Metric.Name) {
			return nil, fmt.Errorf("pipeline: unknown metric %q", cfg.Metric.Name)
		}
		return &metricScorer{metric: cfg.Metric.Name, libv: scorer}, nil
	}
}

func (s *metricScorer) Score(ctx context.Context, encoded, reference string) (vmaf.Scores, error) {
	if s.ssim2 != nil {
		return s.ssim2.Score(ctx, encoded, reference)
	}
	return s.libv.Score(ctx, s.metric, encoded, reference)
}
