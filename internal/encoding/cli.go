package encoding

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"cleave/internal/config"
	"cleave/internal/fileutil"
	"cleave/internal/media"
	"cleave/internal/media/ffmpeg"
)

var commandContext = exec.CommandContext

// argBuilder produces the encoder's command-line arguments for one pass.
// Every builder reads y4m from stdin and writes the bitstream to dest.
type argBuilder func(cfg config.Encoder, pass int, statsPath, dest string) []string

// cliVariant drives an external encoder binary fed by an ffmpeg y4m pipe.
type cliVariant struct {
	cfg       config.Encoder
	outputExt string
	buildArgs argBuilder
	decode    func(ctx context.Context, clip string) *exec.Cmd
}

func newCLIVariant(cfg config.Encoder, ffmpegBinary, outputExt string, buildArgs argBuilder) *cliVariant {
	decoder := ffmpeg.NewClient(ffmpegBinary)
	return &cliVariant{
		cfg:       cfg,
		outputExt: outputExt,
		buildArgs: buildArgs,
		decode:    decoder.DecodeCommand,
	}
}

func (v *cliVariant) Name() string { return strings.ToLower(v.cfg.Name) }

func (v *cliVariant) OutputExt() string { return v.outputExt }

func (v *cliVariant) CanonicalParams() ([]byte, error) { return serializeParams(v.cfg) }

// Encode runs every configured pass in order. The stats sidecar that links
// passes is removed once the final pass lands.
func (v *cliVariant) Encode(ctx context.Context, clip, dest string) error {
	passes := v.cfg.Passes
	if passes < 1 {
		passes = 1
	}
	statsPath := dest + ".stats"
	for pass := 1; pass <= passes; pass++ {
		if err := v.runPass(ctx, clip, dest, statsPath, pass); err != nil {
			return err
		}
	}
	if passes > 1 {
		_ = fileutil.RemoveIfExists(statsPath)
		_ = fileutil.RemoveIfExists(statsPath + ".mbtree")
		_ = fileutil.RemoveIfExists(statsPath + ".cutree")
	}
	return nil
}

func (v *cliVariant) runPass(ctx context.Context, clip, dest, statsPath string, pass int) error {
	decode := v.decode(ctx, clip)
	stdout, err := decode.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoding: decode pipe: %w", err)
	}

	args := v.buildArgs(v.cfg, pass, statsPath, dest)
	enc := commandContext(ctx, binaryFor(v.cfg), args...)
	enc.Stdin = stdout
	var encOutput bytes.Buffer
	enc.Stdout = &encOutput
	enc.Stderr = &encOutput

	var decodeErr bytes.Buffer
	decode.Stderr = &decodeErr

	if err := decode.Start(); err != nil {
		return media.Wrap(media.ErrExternalTool, "ffmpeg", "decode", "", err)
	}
	if err := enc.Start(); err != nil {
		_ = decode.Process.Kill()
		_ = decode.Wait()
		return media.Wrap(media.ErrExternalTool, v.Name(), "start", "", err)
	}

	encErr := enc.Wait()
	decErr := decode.Wait()
	if encErr != nil {
		return media.Wrap(media.ErrExternalTool, v.Name(),
			fmt.Sprintf("pass %d", pass), tailOf(encOutput.String()), encErr)
	}
	if decErr != nil {
		return media.Wrap(media.ErrExternalTool, "ffmpeg", "decode", tailOf(decodeErr.String()), decErr)
	}
	return nil
}

func binaryFor(cfg config.Encoder) string {
	if bin := strings.TrimSpace(cfg.Binary); bin != "" {
		return bin
	}
	return strings.ToLower(cfg.Name)
}

func x264Args(cfg config.Encoder, pass int, statsPath, dest string) []string {
	args := []string{
		"--demuxer", "y4m",
		"--crf", formatQuality(cfg.Quality),
	}
	if cfg.Preset != "" {
		args = append(args, "--preset", cfg.Preset)
	}
	if cfg.Passes > 1 {
		args = append(args, "--pass", strconv.Itoa(pass), "--stats", statsPath)
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, "--output", dest, "-")
}

func x265Args(cfg config.Encoder, pass int, statsPath, dest string) []string {
	args := []string{
		"--y4m",
		"--crf", formatQuality(cfg.Quality),
	}
	if cfg.Preset != "" {
		args = append(args, "--preset", cfg.Preset)
	}
	if cfg.Passes > 1 {
		args = append(args, "--pass", strconv.Itoa(pass), "--stats", statsPath)
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, "--output", dest, "--input", "-")
}

func aomencArgs(cfg config.Encoder, pass int, statsPath, dest string) []string {
	args := []string{
		"--ivf",
		"--end-usage=q",
		"--cq-level=" + formatQuality(cfg.Quality),
	}
	if cfg.Passes > 1 {
		args = append(args,
			"--passes="+strconv.Itoa(cfg.Passes),
			"--pass="+strconv.Itoa(pass),
			"--fpf="+statsPath,
		)
	} else {
		args = append(args, "--passes=1")
	}
	if cfg.Preset != "" {
		args = append(args, "--cpu-used="+cfg.Preset)
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, "-o", dest, "-")
}

func formatQuality(quality float64) string {
	return strconv.FormatFloat(quality, 'f', -1, 64)
}

func tailOf(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
