// Package pipeline orchestrates a full re-encoding run: probe the source,
// detect scenes, extract/encode/measure every scene in parallel, merge the
// encoded scenes, and aggregate quality statistics. Every expensive stage is
// keyed by a fingerprint in the cache store, so an interrupted or repeated
// run recomputes only what its inputs changed.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cleave/internal/cachestore"
	"cleave/internal/config"
	"cleave/internal/fingerprint"
	"cleave/internal/logging"
	"cleave/internal/media/ffmpeg"
	"cleave/internal/progress"
	"cleave/internal/report"
	"cleave/internal/scheduler"
)

// Scene is one contiguous half-open frame range [StartFrame, EndFrame).
type Scene struct {
	Index      int   `json:"index"`
	StartFrame int64 `json:"start_frame"`
	EndFrame   int64 `json:"end_frame"`
}

// Frames returns the scene length.
func (s Scene) Frames() int64 {
	return s.EndFrame - s.StartFrame
}

// SceneScore is the cached output of the measure stage.
type SceneScore struct {
	Metric     string  `json:"metric"`
	Percentile float64 `json:"percentile"`
	// Score is the configured percentile of the per-frame distribution.
	Score      float64 `json:"score"`
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	FrameCount int     `json:"frame_count"`
}

// SceneOutcome is one scene's result within a run.
type SceneOutcome struct {
	Scene
	ClipPath    string
	EncodedPath string
	EncodedSize int64
	Score       SceneScore

	ExtractCached bool
	EncodeCached  bool
	MeasureCached bool

	Err error

	encodeFP fingerprint.Digest
}

// Outcome is the result of a full pipeline run.
type Outcome struct {
	RunID       string
	Probe       ProbeResult
	Scenes      []Scene
	SceneOut    []SceneOutcome
	OutputPath  string
	MergeCached bool
	Summary     report.Summary
	Rows        []report.SceneRow
	Elapsed     time.Duration
}

// Pipeline runs the full probe-to-report flow for one source.
type Pipeline struct {
	cfg    *config.Config
	store  *cachestore.Store
	tools  Toolkit
	logger *slog.Logger
	sink   progress.Sink
}

// New constructs a Pipeline. A nil sink discards progress.
func New(cfg *config.Config, store *cachestore.Store, tools Toolkit, logger *slog.Logger, sink progress.Sink) *Pipeline {
	if sink == nil {
		sink = progress.Discard()
	}
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		tools:  tools,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		sink:   sink,
	}
}

// Run executes the pipeline. A returned *SceneFailuresError means the run
// completed with per-scene failures: the Outcome still carries every
// successful scene's result and the aggregate over them. Any other error is
// fatal and the Outcome is nil.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := p.logger.With(logging.String(logging.FieldRunID, runID))

	logger.Info("run started",
		logging.String("source", p.cfg.Source),
		logging.String("encode_id", p.cfg.EncodeIdentifier()),
		logging.Int("workers", p.cfg.Workers),
	)

	// The encode directory is namespaced by encoder settings, so a settings
	// change between runs needs a fresh subtree.
	if err := p.cfg.EnsureOutputLayout(); err != nil {
		return nil, err
	}

	probe, fps, err := p.probeStage(ctx, logger)
	if err != nil {
		return nil, err
	}

	scenes, err := p.detectStage(ctx, logger, fps, probe.FrameCount)
	if err != nil {
		return nil, err
	}

	outcomes := p.sceneStage(ctx, logger, fps, probe, scenes)

	outcome := &Outcome{
		RunID:    runID,
		Probe:    probe,
		Scenes:   scenes,
		SceneOut: outcomes,
	}

	failures := collectFailures(outcomes)
	if len(failures) == 0 {
		outputPath, cached, err := p.mergeStage(ctx, logger, outcomes)
		if err != nil {
			return nil, err
		}
		outcome.OutputPath = outputPath
		outcome.MergeCached = cached
	} else {
		logger.Warn("skipping merge: run has failed scenes",
			logging.Int("failed_scenes", len(failures)),
		)
	}

	outcome.Rows = buildRows(outcomes)
	outcome.Summary = report.Summarize(p.cfg.Metric.Name, p.cfg.Metric.Percentile, outcome.Rows)
	outcome.Summary.OutputPath = outcome.OutputPath
	outcome.Elapsed = time.Since(start)
	outcome.Summary.Elapsed = outcome.Elapsed

	logger.Info("run finished",
		logging.Int("scenes", len(scenes)),
		logging.Int("failed_scenes", len(failures)),
		logging.Duration("elapsed", outcome.Elapsed),
	)

	if len(failures) > 0 {
		return outcome, &SceneFailuresError{Failures: failures}
	}
	return outcome, nil
}

func (p *Pipeline) probeStage(ctx context.Context, logger *slog.Logger) (ProbeResult, fingerprints, error) {
	identity, err := identifySource(p.cfg.Source)
	if err != nil {
		return ProbeResult{}, fingerprints{}, err
	}
	probeFP, err := probeFingerprint(identity, p.cfg.Crop)
	if err != nil {
		return ProbeResult{}, fingerprints{}, err
	}

	var probe ProbeResult
	if raw, ok := p.store.LookupValue(probeFP); ok {
		if err := json.Unmarshal(raw, &probe); err != nil {
			return ProbeResult{}, fingerprints{}, fmt.Errorf("decode cached probe: %w", err)
		}
		logger.Info("probe cached",
			logging.String(logging.FieldFingerprint, probeFP.Short()),
			logging.Int64("frame_count", probe.FrameCount),
		)
	} else {
		p.sink.StartPhase("probe", 1)
		probe, err = p.tools.Prober.Probe(logging.WithStage(ctx, stageProbe), p.cfg.Source)
		if err != nil {
			return ProbeResult{}, fingerprints{}, err
		}
		if err := p.store.StoreValue(ctx, stageProbe, nil, probeFP, probe); err != nil {
			return ProbeResult{}, fingerprints{}, err
		}
		p.sink.Add(1)
		p.sink.FinishPhase()
		logger.Info("probe computed",
			logging.String(logging.FieldFingerprint, probeFP.Short()),
			logging.Int64("frame_count", probe.FrameCount),
			logging.String("crop", probe.Crop),
		)
	}

	detectFP, err := detectFingerprint(probeFP, p.cfg.Scenes)
	if err != nil {
		return ProbeResult{}, fingerprints{}, err
	}
	return probe, fingerprints{probe: probeFP, detect: detectFP}, nil
}

func (p *Pipeline) detectStage(ctx context.Context, logger *slog.Logger, fps fingerprints, frameCount int64) ([]Scene, error) {
	var boundaries []int64
	if raw, ok := p.store.LookupValue(fps.detect); ok {
		if err := json.Unmarshal(raw, &boundaries); err != nil {
			return nil, fmt.Errorf("decode cached boundaries: %w", err)
		}
		logger.Info("scene detection cached",
			logging.String(logging.FieldFingerprint, fps.detect.Short()),
			logging.Int("boundaries", len(boundaries)),
		)
	} else {
		p.sink.StartPhase("detect scenes", 1)
		detected, err := p.tools.Detector.Detect(logging.WithStage(ctx, stageDetect), p.cfg.Source)
		if err != nil {
			return nil, err
		}
		boundaries = detected
		if err := p.store.StoreValue(ctx, stageDetect, nil, fps.detect, boundaries); err != nil {
			return nil, err
		}
		p.sink.Add(1)
		p.sink.FinishPhase()
		logger.Info("scene detection computed",
			logging.String(logging.FieldFingerprint, fps.detect.Short()),
			logging.Int("boundaries", len(boundaries)),
		)
	}

	return ScenesFromBoundaries(boundaries, frameCount)
}

// ScenesFromBoundaries validates detector output against the probed frame
// count and builds the contiguous scene partition. Boundaries must be
// strictly increasing, start at 0, and end at frameCount.
func ScenesFromBoundaries(boundaries []int64, frameCount int64) ([]Scene, error) {
	if len(boundaries) < 2 {
		return nil, fmt.Errorf("%w: need at least two boundaries, got %d", ErrPartitionInvariant, len(boundaries))
	}
	if boundaries[0] != 0 {
		return nil, fmt.Errorf("%w: first boundary is %d, want 0", ErrPartitionInvariant, boundaries[0])
	}
	if last := boundaries[len(boundaries)-1]; last != frameCount {
		return nil, fmt.Errorf("%w: last boundary is %d, want frame count %d", ErrPartitionInvariant, last, frameCount)
	}
	scenes := make([]Scene, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		if boundaries[i+1] <= boundaries[i] {
			return nil, fmt.Errorf("%w: boundary %d (%d) not after %d", ErrPartitionInvariant, i+1, boundaries[i+1], boundaries[i])
		}
		scenes = append(scenes, Scene{Index: i, StartFrame: boundaries[i], EndFrame: boundaries[i+1]})
	}
	return scenes, nil
}

func (p *Pipeline) sceneStage(ctx context.Context, logger *slog.Logger, fps fingerprints, probe ProbeResult, scenes []Scene) []SceneOutcome {
	outcomes := make([]SceneOutcome, len(scenes))

	p.sink.StartPhase("scenes", probe.FrameCount)
	defer p.sink.FinishPhase()

	tasks := make([]scheduler.Task, len(scenes))
	for i, scene := range scenes {
		tasks[i] = scheduler.Task{
			SceneIndex: scene.Index,
			Frames:     scene.Frames(),
			Run: func(taskCtx context.Context) error {
				outcome := p.runScene(taskCtx, fps, probe, scene)
				outcomes[i] = outcome
				p.sink.Add(scene.Frames())
				return outcome.Err
			},
		}
	}
	results := scheduler.Run(ctx, p.cfg.Workers, tasks, logger)

	// Tasks that never ran (cancellation) report through the scheduler.
	for _, result := range scheduler.Failed(results) {
		if outcomes[result.SceneIndex].Err == nil {
			outcomes[result.SceneIndex] = SceneOutcome{
				Scene: scenes[result.SceneIndex],
				Err:   result.Err,
			}
		}
	}
	return outcomes
}

func (p *Pipeline) runScene(ctx context.Context, fps fingerprints, probe ProbeResult, scene Scene) SceneOutcome {
	outcome := SceneOutcome{Scene: scene}
	sceneIndex := scene.Index

	fail := func(err error) SceneOutcome {
		outcome.Err = fmt.Errorf("scene %d: %w", sceneIndex, err)
		return outcome
	}

	extractFP, err := extractFingerprint(fps, scene, probe.Crop)
	if err != nil {
		return fail(err)
	}
	clipPath := filepath.Join(p.cfg.ClipDir(), fmt.Sprintf("scene-%05d.mkv", sceneIndex))
	if cached, _, ok := p.store.LookupArtifact(extractFP); ok {
		outcome.ClipPath = cached
		outcome.ExtractCached = true
	} else {
		tmpPath := clipPath + ".tmp"
		err := p.tools.Extract.ExtractScene(logging.WithStage(ctx, stageExtract), ffmpeg.ExtractRequest{
			Source:     p.cfg.Source,
			Dest:       tmpPath,
			StartFrame: scene.StartFrame,
			EndFrame:   scene.EndFrame,
			Crop:       probe.Crop,
		})
		if err != nil {
			return fail(err)
		}
		if _, err := p.store.CommitArtifact(ctx, stageExtract, &sceneIndex, extractFP, tmpPath, clipPath); err != nil {
			return fail(err)
		}
		outcome.ClipPath = clipPath
	}

	encoderParams, err := p.tools.Encoder.CanonicalParams()
	if err != nil {
		return fail(err)
	}
	encodeFP := encodeFingerprint(extractFP, encoderParams)
	outcome.encodeFP = encodeFP
	encodedPath := filepath.Join(p.cfg.EncodeDir(), fmt.Sprintf("scene-%05d.%s", sceneIndex, p.tools.Encoder.OutputExt()))
	if cached, ref, ok := p.store.LookupArtifact(encodeFP); ok {
		outcome.EncodedPath = cached
		outcome.EncodedSize = ref.SizeBytes
		outcome.EncodeCached = true
	} else {
		tmpPath := encodedPath + ".tmp"
		if err := p.tools.Encoder.Encode(logging.WithStage(ctx, stageEncode), outcome.ClipPath, tmpPath); err != nil {
			return fail(err)
		}
		ref, err := p.store.CommitArtifact(ctx, stageEncode, &sceneIndex, encodeFP, tmpPath, encodedPath)
		if err != nil {
			return fail(err)
		}
		outcome.EncodedPath = encodedPath
		outcome.EncodedSize = ref.SizeBytes
	}

	measureFP, err := measureFingerprint(extractFP, encodeFP, p.cfg.Metric)
	if err != nil {
		return fail(err)
	}
	if raw, ok := p.store.LookupValue(measureFP); ok {
		var score SceneScore
		if err := json.Unmarshal(raw, &score); err != nil {
			return fail(fmt.Errorf("decode cached score: %w", err))
		}
		outcome.Score = score
		outcome.MeasureCached = true
	} else {
		scores, err := p.tools.Scorer.Score(logging.WithStage(ctx, stageMeasure), outcome.EncodedPath, outcome.ClipPath)
		if err != nil {
			return fail(err)
		}
		score := SceneScore{
			Metric:     p.cfg.Metric.Name,
			Percentile: p.cfg.Metric.Percentile,
			Score:      scores.Percentile(p.cfg.Metric.Percentile),
			Mean:       scores.Mean(),
			Min:        scores.Min(),
			FrameCount: len(scores.Frames),
		}
		if err := p.store.StoreValue(ctx, stageMeasure, &sceneIndex, measureFP, score); err != nil {
			return fail(err)
		}
		outcome.Score = score
	}

	return outcome
}

// mergeStage concatenates every encoded scene in index order. It only runs
// when all scenes succeeded: merging a partial scene set would produce an
// output that silently skips content.
func (p *Pipeline) mergeStage(ctx context.Context, logger *slog.Logger, outcomes []SceneOutcome) (string, bool, error) {
	encodes := make([]fingerprint.Digest, len(outcomes))
	inputs := make([]string, len(outcomes))
	for i, outcome := range outcomes {
		encodes[i] = outcome.encodeFP
		inputs[i] = outcome.EncodedPath
	}

	mergeFP, err := mergeFingerprint(encodes, p.cfg.EncodeIdentifier())
	if err != nil {
		return "", false, err
	}
	outputPath := filepath.Join(p.cfg.FinalDir(), p.cfg.EncodeIdentifier()+".mkv")

	if cached, _, ok := p.store.LookupArtifact(mergeFP); ok {
		logger.Info("merge cached",
			logging.String(logging.FieldFingerprint, mergeFP.Short()),
			logging.String("output", cached),
		)
		return cached, true, nil
	}

	p.sink.StartPhase("merge", int64(len(inputs)))
	tmpPath := outputPath + ".tmp"
	if err := p.tools.Merger.Merge(logging.WithStage(ctx, stageMerge), tmpPath, inputs); err != nil {
		return "", false, err
	}
	if _, err := p.store.CommitArtifact(ctx, stageMerge, nil, mergeFP, tmpPath, outputPath); err != nil {
		return "", false, err
	}
	p.sink.Add(int64(len(inputs)))
	p.sink.FinishPhase()

	logger.Info("merge computed",
		logging.String(logging.FieldFingerprint, mergeFP.Short()),
		logging.String("output", outputPath),
	)
	return outputPath, false, nil
}

func collectFailures(outcomes []SceneOutcome) []SceneFailure {
	var failures []SceneFailure
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures = append(failures, SceneFailure{SceneIndex: outcome.Index, Err: outcome.Err})
		}
	}
	return failures
}

func buildRows(outcomes []SceneOutcome) []report.SceneRow {
	rows := make([]report.SceneRow, 0, len(outcomes))
	for _, outcome := range outcomes {
		row := report.SceneRow{
			Index:         outcome.Index,
			StartFrame:    outcome.StartFrame,
			EndFrame:      outcome.EndFrame,
			Score:         outcome.Score.Score,
			MeanScore:     outcome.Score.Mean,
			ExtractCached: outcome.ExtractCached,
			EncodeCached:  outcome.EncodeCached,
			MeasureCached: outcome.MeasureCached,
			EncodedBytes:  outcome.EncodedSize,
		}
		if outcome.Err != nil {
			row.Failed = true
			row.Reason = outcome.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}
