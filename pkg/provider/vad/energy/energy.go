// Package energy provides a pure-Go speech prober based on short-term RMS
// energy. It implements vad.Prober.
//
// Each window's RMS level is converted to dBFS and mapped through a logistic
// curve centred on a configurable midpoint, so loud windows approach 1 and
// quiet windows approach 0. It is a crude stand-in for a neural VAD but needs
// no model files and works well on recordings with a low noise floor.
//
//	p, err := energy.New(energy.WithMidpoint(-35), energy.WithSlope(0.4))
//	probs, err := p.Probabilities(ctx, samples)
package energy

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

var _ vad.Prober = (*Prober)(nil)

const (
	defaultWindow   = 512
	defaultMidpoint = -35.0
	defaultSlope    = 0.5

	// floorDB is reported for digital silence instead of -Inf.
	floorDB = -120.0

	// checkEvery is how many windows are processed between ctx checks.
	checkEvery = 4096
)

// Option configures a [Prober].
type Option func(*Prober)

// WithWindowSize sets the number of samples per probability. Default: 512.
func WithWindowSize(n int) Option {
	return func(p *Prober) { p.window = n }
}

// WithMidpoint sets the dBFS level that maps to probability 0.5. Default: -35.
func WithMidpoint(db float64) Option {
	return func(p *Prober) { p.midpoint = db }
}

// WithSlope sets the steepness of the logistic curve per dB. Default: 0.5.
func WithSlope(s float64) Option {
	return func(p *Prober) { p.slope = s }
}

// Prober is an RMS energy speech prober. It is stateless and safe for
// concurrent use.
type Prober struct {
	window   int
	midpoint float64
	slope    float64
}

// New returns a Prober with the given options applied.
func New(opts ...Option) (*Prober, error) {
	p := &Prober{
		window:   defaultWindow,
		midpoint: defaultMidpoint,
		slope:    defaultSlope,
	}
	for _, o := range opts {
		o(p)
	}
	if p.window <= 0 {
		return nil, fmt.Errorf("energy: window size %d must be positive", p.window)
	}
	if p.slope <= 0 || math.IsNaN(p.slope) {
		return nil, fmt.Errorf("energy: slope %v must be positive", p.slope)
	}
	if p.midpoint > 0 || math.IsNaN(p.midpoint) {
		return nil, fmt.Errorf("energy: midpoint %v dBFS must not be positive", p.midpoint)
	}
	return p, nil
}

// WindowSize implements vad.Prober.
func (p *Prober) WindowSize() int { return p.window }

// Probabilities implements vad.Prober. The last window is treated as
// zero-padded to the full window size.
func (p *Prober) Probabilities(ctx context.Context, samples []float32) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: energy: no samples", vad.ErrProber)
	}
	n := vad.WindowCount(len(samples), p.window)
	out := make([]float64, n)
	for i := range n {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lo := i * p.window
		hi := min(lo+p.window, len(samples))
		out[i] = p.probability(rms(samples[lo:hi], p.window))
	}
	return out, nil
}

func (p *Prober) probability(level float64) float64 {
	return 1 / (1 + math.Exp(-p.slope*(DBFS(level)-p.midpoint)))
}

// rms returns the root mean square of frame as if it were zero-padded to
// size samples.
func rms(frame []float32, size int) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(size))
}

// DBFS converts a linear RMS level (full scale 1.0) to decibels relative to
// full scale, clamped at -120.
func DBFS(level float64) float64 {
	if level <= 0 {
		return floorDB
	}
	return max(20*math.Log10(level), floorDB)
}
