package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/hushcut/internal/plan"
)

var _ Runner = (*FFmpeg)(nil)

// stderrTail bounds how much ffmpeg output is kept in errors.
const stderrTail = 512

// FFmpegOption configures an [FFmpeg] runner.
type FFmpegOption func(*FFmpeg)

// WithBinary sets the ffmpeg executable. Default: "ffmpeg".
func WithBinary(path string) FFmpegOption {
	return func(f *FFmpeg) { f.bin = path }
}

// WithReencode makes Extract re-encode instead of stream copying. Stream
// copy is fast but can only cut on keyframes.
func WithReencode(on bool) FFmpegOption {
	return func(f *FFmpeg) { f.reencode = on }
}

// FFmpeg runs plan operations as ffmpeg subprocesses.
type FFmpeg struct {
	bin      string
	reencode bool
}

// NewFFmpeg returns a runner with the given options applied.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{bin: "ffmpeg"}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Binary returns the configured ffmpeg executable.
func (f *FFmpeg) Binary() string { return f.bin }

// Args returns the ffmpeg argument list for op.
func (f *FFmpeg) Args(op plan.Operation) ([]string, error) {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}
	switch op.Kind {
	case plan.OpExtract:
		args = append(args,
			"-ss", seconds(op.StartSec),
			"-t", seconds(op.DurationSec),
			"-i", op.Input,
		)
		if !f.reencode {
			args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
		}
	case plan.OpSpeedAdjust:
		if op.Factor <= 0 {
			return nil, fmt.Errorf("executor: speed factor %v must be positive", op.Factor)
		}
		args = append(args,
			"-i", op.Input,
			"-filter:v", "setpts=PTS/"+strconv.FormatFloat(op.Factor, 'f', -1, 64),
			"-filter:a", AtempoChain(op.Factor),
		)
	case plan.OpConcat:
		args = append(args,
			"-f", "concat", "-safe", "0",
			"-i", op.Input,
			"-c", "copy",
		)
	default:
		return nil, fmt.Errorf("executor: unsupported operation kind %s", op.Kind)
	}
	return append(args, op.Output), nil
}

// Run implements [Runner].
func (f *FFmpeg) Run(ctx context.Context, op plan.Operation) error {
	args, err := f.Args(op)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ffmpeg %s: %v: %s", ErrExternalProcess, op.Kind, err, tail(stderr.String()))
	}
	return nil
}

// AtempoChain renders an audio filter that changes tempo by factor. atempo
// only accepts factors in [0.5, 2], so larger changes are split into a chain
// of stages whose product equals factor.
func AtempoChain(factor float64) string {
	var stages []string
	for factor > 2 {
		stages = append(stages, "atempo=2")
		factor /= 2
	}
	for factor < 0.5 {
		stages = append(stages, "atempo=0.5")
		factor /= 0.5
	}
	stages = append(stages, "atempo="+strconv.FormatFloat(factor, 'f', -1, 64))
	return strings.Join(stages, ",")
}

func seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}
