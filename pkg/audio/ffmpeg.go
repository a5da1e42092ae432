package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// stderrTail bounds how much ffmpeg diagnostic output ends up in errors.
const stderrTail = 512

var (
	_ Decoder = (*FFmpegDecoder)(nil)
	_ Decoder = (*WAVDecoder)(nil)
	_ Decoder = ByExtension{}
)

// DecoderOption configures an [FFmpegDecoder].
type DecoderOption func(*FFmpegDecoder)

// WithFFmpegPath sets the ffmpeg executable. Default: "ffmpeg".
func WithFFmpegPath(path string) DecoderOption {
	return func(d *FFmpegDecoder) { d.bin = path }
}

// WithSampleRate sets the analysis sample rate. Default: 16000.
func WithSampleRate(rate int) DecoderOption {
	return func(d *FFmpegDecoder) { d.rate = rate }
}

// WithTempDir sets where the intermediate wav file is written. Default: the
// system temp directory.
func WithTempDir(dir string) DecoderOption {
	return func(d *FFmpegDecoder) { d.tmpDir = dir }
}

// FFmpegDecoder extracts the first audio stream of any container ffmpeg can
// read as 16-bit mono PCM WAV, then decodes it with [DecodeWAV].
type FFmpegDecoder struct {
	bin    string
	rate   int
	tmpDir string
}

// NewFFmpegDecoder returns a decoder with the given options applied.
func NewFFmpegDecoder(opts ...DecoderOption) *FFmpegDecoder {
	d := &FFmpegDecoder{bin: "ffmpeg", rate: 16000}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Args returns the ffmpeg arguments that extract src into dst.
func (d *FFmpegDecoder) Args(src, dst string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(d.rate),
		"-c:a", "pcm_s16le", "-f", "wav",
		dst,
	}
}

// Decode implements [Decoder]. The intermediate file is always removed.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Samples, error) {
	tmp, err := os.CreateTemp(d.tmpDir, "hushcut-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp wav: %v", ErrDecode, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.bin, d.Args(path, tmpPath)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg %s: %v: %s", ErrDecode, path, err, tail(stderr.String()))
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()
	return DecodeWAV(f, d.rate)
}

// WAVDecoder reads WAV files directly without spawning ffmpeg.
type WAVDecoder struct {
	// SampleRate is the analysis rate. Zero means 16000.
	SampleRate int
}

// Decode implements [Decoder].
func (d *WAVDecoder) Decode(ctx context.Context, path string) (*Samples, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	rate := d.SampleRate
	if rate == 0 {
		rate = 16000
	}
	s, err := DecodeWAV(f, rate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ByExtension routes .wav files to WAV and everything else to Other. A WAV
// file that WAV rejects with [ErrFormat] is handed to Other, which converts
// it.
type ByExtension struct {
	WAV   Decoder
	Other Decoder
}

// Decode implements [Decoder].
func (d ByExtension) Decode(ctx context.Context, path string) (*Samples, error) {
	if d.WAV == nil || !strings.EqualFold(filepath.Ext(path), ".wav") {
		return d.Other.Decode(ctx, path)
	}
	s, err := d.WAV.Decode(ctx, path)
	if errors.Is(err, ErrFormat) {
		slog.Debug("audio: wav needs conversion, using fallback decoder", "path", path, "err", err)
		return d.Other.Decode(ctx, path)
	}
	return s, err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}
