// Package encoding holds the closed set of encoder variants the pipeline can
// drive. CLI encoders consume a y4m pipe decoded from the lossless scene
// clip; the drapto variant encodes through the drapto library directly.
// Adding an encoder means adding a case here, its argument builder, and its
// canonical parameter serialization.
package encoding

import (
	"context"
	"fmt"
	"strings"

	"cleave/internal/config"
	"cleave/internal/fingerprint"
)

// Variant is one fully configured encoder.
type Variant interface {
	Name() string
	// OutputExt is the artifact extension without the dot.
	OutputExt() string
	// CanonicalParams returns the deterministic byte serialization of every
	// parameter that influences encoded output, for fingerprinting.
	CanonicalParams() ([]byte, error)
	// Encode turns the lossless clip into an encoded artifact at dest.
	Encode(ctx context.Context, clip, dest string) error
}

// FromConfig resolves the configured encoder to a Variant. The encoder set
// is closed; config validation guarantees the name is known, so an unknown
// name here is a programming error.
func FromConfig(cfg config.Encoder, ffmpegBinary string) (Variant, error) {
	switch strings.ToLower(cfg.Name) {
	case "x264":
		return newCLIVariant(cfg, ffmpegBinary, "mkv", x264Args), nil
	case "x265":
		return newCLIVariant(cfg, ffmpegBinary, "hevc", x265Args), nil
	case "aomenc":
		return newCLIVariant(cfg, ffmpegBinary, "ivf", aomencArgs), nil
	case "drapto":
		return newDraptoVariant(cfg), nil
	default:
		return nil, fmt.Errorf("encoding: unknown encoder %q", cfg.Name)
	}
}

// canonicalParams is the shared fingerprint serialization for all variants.
type canonicalParams struct {
	Name      string   `toml:"name"`
	Quality   float64  `toml:"quality"`
	Preset    string   `toml:"preset"`
	Passes    int      `toml:"passes"`
	ExtraArgs []string `toml:"extra_args"`
}

func serializeParams(cfg config.Encoder) ([]byte, error) {
	return fingerprint.CanonicalConfig(canonicalParams{
		Name:      strings.ToLower(cfg.Name),
		Quality:   cfg.Quality,
		Preset:    cfg.Preset,
		Passes:    cfg.Passes,
		ExtraArgs: append([]string{}, cfg.ExtraArgs...),
	})
}
