// Package audio decodes the analysis audio track of a media file into mono
// float32 samples at the VAD sample rate.
//
// Sample values are normalised to [-1, 1]. One sample is one tick of the
// segmentation timeline, so the number of decoded samples is the total
// timeline length.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDecode is wrapped by every decoding failure.
	ErrDecode = errors.New("audio: decode failed")

	// ErrFormat is wrapped, together with ErrDecode, when a WAV file is not
	// mono at the analysis rate.
	ErrFormat = errors.New("audio: wav is not in the analysis format")
)

// Samples is a decoded mono sample buffer.
type Samples struct {
	// Data holds normalised mono samples.
	Data []float32

	// SampleRate is the rate of Data in Hz.
	SampleRate int
}

// Len returns the number of samples.
func (s *Samples) Len() int { return len(s.Data) }

// Duration returns the playback length of the buffer.
func (s *Samples) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(s.Data)) * int64(time.Second) / int64(s.SampleRate))
}

// Decoder produces analysis samples for a media file.
//
// Implementations must be safe for concurrent use.
type Decoder interface {
	// Decode returns the mono analysis track of path at the decoder's
	// configured sample rate.
	Decode(ctx context.Context, path string) (*Samples, error)
}
