// Package mock provides a test double for [vad.Prober].
//
//	p := &mock.Prober{Result: []float64{0.1, 0.9, 0.9, 0.2}, Window: 512}
//	probs, _ := p.Probabilities(ctx, samples)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

// ProbabilitiesCall records a single invocation of Prober.Probabilities.
type ProbabilitiesCall struct {
	// Len is the number of samples passed in.
	Len int
}

// Prober is a mock implementation of vad.Prober.
type Prober struct {
	mu sync.Mutex

	// Result is returned by every Probabilities call. When nil, Probabilities
	// returns a zero probability per window.
	Result []float64

	// Err, if non-nil, is returned by Probabilities.
	Err error

	// Window is returned by WindowSize. Zero means 512.
	Window int

	// Calls records every call to Probabilities in order.
	Calls []ProbabilitiesCall
}

// Probabilities records the call and returns Result, Err.
func (p *Prober) Probabilities(ctx context.Context, samples []float32) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, ProbabilitiesCall{Len: len(samples)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return append([]float64(nil), p.Result...), nil
	}
	return make([]float64, vad.WindowCount(len(samples), p.window())), nil
}

// WindowSize returns Window, or 512 when unset.
func (p *Prober) WindowSize() int { return p.window() }

func (p *Prober) window() int {
	if p.Window > 0 {
		return p.Window
	}
	return 512
}

// CallCount returns the number of Probabilities calls. Thread-safe.
func (p *Prober) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ vad.Prober = (*Prober)(nil)
