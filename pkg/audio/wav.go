package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a mono PCM WAV stream recorded at targetRate. Any other
// rate or channel count fails with [ErrFormat]; converting it is left to
// ffmpeg.
func DecodeWAV(r io.ReadSeeker, targetRate int) (*Samples, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("%w: target sample rate %d must be positive", ErrDecode, targetRate)
	}
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid PCM wav stream", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read pcm: %v", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing wav format", ErrDecode)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: wav stream has no samples", ErrDecode)
	}

	rate, channels := buf.Format.SampleRate, buf.Format.NumChannels
	if rate != targetRate || channels != 1 {
		return nil, fmt.Errorf("%w: %w: got %s, want %s", ErrDecode, ErrFormat,
			formatString(rate, channels), formatString(targetRate, 1))
	}
	return &Samples{Data: normalize(buf), SampleRate: targetRate}, nil
}

// formatString renders a rate and channel count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}

// normalize scales integer PCM to [-1, 1]. go-audio keeps samples at their
// source bit depth, and 8-bit wav is unsigned.
func normalize(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	out := make([]float32, len(buf.Data))
	if depth == 8 {
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := 1 / float64(int64(1)<<(depth-1))
	for i, v := range buf.Data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// EncodeWAV writes s as 16-bit mono PCM WAV.
func EncodeWAV(w io.WriteSeeker, s *Samples) error {
	enc := wav.NewEncoder(w, s.SampleRate, 16, 1, 1)
	data := make([]int, len(s.Data))
	for i, v := range s.Data {
		data[i] = int(math.Round(float64(max(-1, min(1, v))) * math.MaxInt16))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: s.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}
