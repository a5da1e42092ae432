// Package segment converts a per-window speech-probability stream into a
// gapless, alternating speech/non-speech timeline.
//
// The work happens in three pure stages that are always run in order:
//
//  1. [Segmenter.Segment] applies hysteresis thresholding and emits raw,
//     non-overlapping speech intervals.
//  2. [Pad] widens those intervals by a fixed number of ticks without letting
//     neighbours overlap or leave [0, totalLength].
//  3. [Normalize] fills every gap with an explicit non-speech [Span] so that
//     the result covers [0, totalLength] exactly once.
//
// All arithmetic is done in [Tick]s: one audio sample at the analysis sample
// rate. Nothing in this package blocks, allocates shared state, or depends on
// the order in which callers invoke it; identical input always yields
// identical output.
package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrInput is returned when the caller supplies unusable input: an empty
	// or non-finite probability sequence, a non-positive total length, or an
	// interval list that is not strictly ordered.
	ErrInput = errors.New("segment: invalid input")

	// ErrArithmetic is returned when a computed boundary ends up negative,
	// beyond the total length, or overlapping its neighbour. It signals an
	// internal invariant violation.
	ErrArithmetic = errors.New("segment: boundary out of range")
)

// Tick is one audio sample at the VAD analysis sample rate.
type Tick int64

// Seconds converts t to seconds at the given sample rate.
func (t Tick) Seconds(sampleRate int) float64 {
	return float64(t) / float64(sampleRate)
}

// Interval is a half-open speech range in ticks. Raw intervals produced by
// [Segmenter.Segment] and padded intervals produced by [Pad] share this shape.
type Interval struct {
	Start Tick
	End   Tick
}

// Len returns End - Start.
func (iv Interval) Len() Tick { return iv.End - iv.Start }

func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d)", iv.Start, iv.End)
}

// Span is one entry of the normalized timeline. Both Start and End are
// inclusive: consecutive spans satisfy next.Start == prev.End + 1.
type Span struct {
	Start  Tick
	End    Tick
	Speech bool
}

// Duration returns End - Start, the length handed to the extract step.
func (s Span) Duration() Tick { return s.End - s.Start }

// Ticks returns the number of ticks the span covers under the inclusive
// convention.
func (s Span) Ticks() Tick { return s.End - s.Start + 1 }

func (s Span) String() string {
	kind := "silence"
	if s.Speech {
		kind = "speech"
	}
	return fmt.Sprintf("%s[%d..%d]", kind, s.Start, s.End)
}
