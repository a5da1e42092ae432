// Package vad defines the Prober interface for speech probability backends.
//
// A Prober turns a mono sample buffer at the analysis sample rate into one
// speech probability per fixed-size window. Window i covers samples
// [i*WindowSize, (i+1)*WindowSize); a trailing partial window still yields a
// probability, so the result has ceil(len(samples)/WindowSize) entries.
//
// Implementations must be safe for concurrent use.
package vad

import (
	"context"
	"errors"
)

// ErrProber is wrapped by errors a Prober returns for unusable input or
// backend failures.
var ErrProber = errors.New("vad: prober failed")

// Prober produces per-window speech probabilities in [0, 1].
type Prober interface {
	// Probabilities returns one probability per window of samples. It should
	// honour ctx cancellation for long inputs.
	Probabilities(ctx context.Context, samples []float32) ([]float64, error)

	// WindowSize is the number of samples summarised by one probability.
	WindowSize() int
}

// WindowCount returns how many windows of size window cover n samples.
func WindowCount(n, window int) int {
	if window <= 0 || n <= 0 {
		return 0
	}
	return (n + window - 1) / window
}
