package encoding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"cleave/internal/config"
	"cleave/internal/fileutil"
)

// draptoVariant encodes through the drapto library instead of a y4m pipe.
// Drapto owns its own analysis and rate-control decisions, so quality and
// preset settings from the config only participate in fingerprinting via
// CanonicalParams.
type draptoVariant struct {
	cfg config.Encoder
}

func newDraptoVariant(cfg config.Encoder) *draptoVariant {
	return &draptoVariant{cfg: cfg}
}

func (v *draptoVariant) Name() string { return "drapto" }

func (v *draptoVariant) OutputExt() string { return "mkv" }

func (v *draptoVariant) CanonicalParams() ([]byte, error) { return serializeParams(v.cfg) }

func (v *draptoVariant) Encode(ctx context.Context, clip, dest string) error {
	encoder, err := draptolib.New()
	if err != nil {
		return fmt.Errorf("encoding: drapto init: %w", err)
	}

	// Drapto derives the output name from the input stem, so encode into a
	// scratch directory and move the result to dest.
	workDir, err := os.MkdirTemp(filepath.Dir(dest), "drapto-")
	if err != nil {
		return fmt.Errorf("encoding: drapto work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if _, err := encoder.EncodeWithReporter(ctx, clip, workDir, nil); err != nil {
		return fmt.Errorf("encoding: drapto encode: %w", err)
	}

	base := filepath.Base(clip)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	produced := filepath.Join(workDir, stem+".mkv")
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("encoding: drapto output missing: %w", err)
	}
	if err := fileutil.ReplaceFile(produced, dest); err != nil {
		return fmt.Errorf("encoding: drapto commit: %w", err)
	}
	return nil
}
