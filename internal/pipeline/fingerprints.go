package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"cleave/internal/config"
	"cleave/internal/fileutil"
	"cleave/internal/fingerprint"
)

// Stage identifiers. These are part of every fingerprint, so renaming one
// invalidates that stage's cache entries.
const (
	stageProbe   = "probe"
	stageDetect  = "detect-scenes"
	stageExtract = "extract"
	stageEncode  = "encode"
	stageMeasure = "measure"
	stageMerge   = "merge"
)

// sourceIdentity captures what makes a source file "the same file" across
// runs. Content hash dominates; size and mtime are cheap corroboration.
type sourceIdentity struct {
	ContentHash string `toml:"content_hash"`
	SizeBytes   int64  `toml:"size_bytes"`
	ModTimeUnix int64  `toml:"mod_time_unix_nano"`
}

func identifySource(path string) (sourceIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return sourceIdentity{}, fmt.Errorf("identify source: %w", err)
	}
	hash, size, err := fileutil.HashFile(path)
	if err != nil {
		return sourceIdentity{}, fmt.Errorf("identify source: %w", err)
	}
	return sourceIdentity{
		ContentHash: fmt.Sprintf("%016x", hash),
		SizeBytes:   size,
		ModTimeUnix: info.ModTime().UnixNano(),
	}, nil
}

// fingerprints holds the computed chain for one run. Per-scene fingerprints
// derive from these roots.
type fingerprints struct {
	probe  fingerprint.Digest
	detect fingerprint.Digest
}

type probeParams struct {
	Source sourceIdentity `toml:"source"`
	Crop   cropParams     `toml:"crop"`
}

type cropParams struct {
	Enabled        bool `toml:"enabled"`
	SampleInterval int  `toml:"sample_interval"`
	Round          int  `toml:"round"`
}

func probeFingerprint(source sourceIdentity, crop config.Crop) (fingerprint.Digest, error) {
	params, err := fingerprint.CanonicalConfig(probeParams{
		Source: source,
		Crop: cropParams{
			Enabled:        crop.Enabled,
			SampleInterval: crop.SampleInterval,
			Round:          crop.Round,
		},
	})
	if err != nil {
		return fingerprint.Zero, err
	}
	return fingerprint.New(stageProbe, nil, params), nil
}

type detectParams struct {
	Detector    string  `toml:"detector"`
	Sensitivity float64 `toml:"sensitivity"`
	MinFrames   int     `toml:"min_frames"`
}

func detectFingerprint(probe fingerprint.Digest, scenes config.Scenes) (fingerprint.Digest, error) {
	params, err := fingerprint.CanonicalConfig(detectParams{
		// The base name participates so swapping detectors invalidates the
		// cache while moving the same detector between paths does not.
		Detector:    filepath.Base(scenes.DetectorBinary),
		Sensitivity: scenes.Sensitivity,
		MinFrames:   scenes.MinFrames,
	})
	if err != nil {
		return fingerprint.Zero, err
	}
	return fingerprint.New(stageDetect, []fingerprint.Digest{probe}, params), nil
}

type extractParams struct {
	SceneIndex int    `toml:"scene_index"`
	StartFrame int64  `toml:"start_frame"`
	EndFrame   int64  `toml:"end_frame"`
	Crop       string `toml:"crop"`
}

func extractFingerprint(fps fingerprints, scene Scene, crop string) (fingerprint.Digest, error) {
	params, err := fingerprint.CanonicalConfig(extractParams{
		SceneIndex: scene.Index,
		StartFrame: scene.StartFrame,
		EndFrame:   scene.EndFrame,
		Crop:       crop,
	})
	if err != nil {
		return fingerprint.Zero, err
	}
	return fingerprint.New(stageExtract, []fingerprint.Digest{fps.probe, fps.detect}, params), nil
}

func encodeFingerprint(extract fingerprint.Digest, encoderParams []byte) fingerprint.Digest {
	return fingerprint.New(stageEncode, []fingerprint.Digest{extract}, encoderParams)
}

type measureParams struct {
	Metric     string  `toml:"metric"`
	Percentile float64 `toml:"percentile"`
}

func measureFingerprint(extract, encode fingerprint.Digest, metric config.Metric) (fingerprint.Digest, error) {
	params, err := fingerprint.CanonicalConfig(measureParams{
		Metric:     metric.Name,
		Percentile: metric.Percentile,
	})
	if err != nil {
		return fingerprint.Zero, err
	}
	return fingerprint.New(stageMeasure, []fingerprint.Digest{extract, encode}, params), nil
}

type mergeParams struct {
	Identifier string `toml:"identifier"`
	SceneCount int    `toml:"scene_count"`
}

func mergeFingerprint(encodes []fingerprint.Digest, identifier string) (fingerprint.Digest, error) {
	params, err := fingerprint.CanonicalConfig(mergeParams{
		Identifier: identifier,
		SceneCount: len(encodes),
	})
	if err != nil {
		return fingerprint.Zero, err
	}
	return fingerprint.New(stageMerge, encodes, params), nil
}
