// Package probfile provides a vad.Prober that replays speech probabilities
// computed ahead of time, for example by an external neural VAD.
//
// Two file formats are accepted: a JSON array of numbers, or plain text with
// one number per line (blank lines and lines starting with '#' are ignored).
// The file is read once on construction.
package probfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

var _ vad.Prober = (*Prober)(nil)

// Option configures a [Prober].
type Option func(*Prober)

// WithWindowSize sets the number of samples each stored probability covers.
// Default: 512.
func WithWindowSize(n int) Option {
	return func(p *Prober) { p.window = n }
}

// Prober replays a fixed probability sequence.
type Prober struct {
	path   string
	window int
	probs  []float64
}

// New reads the probability file at path.
func New(path string, opts ...Option) (*Prober, error) {
	p := &Prober{path: path, window: 512}
	for _, o := range opts {
		o(p)
	}
	if p.window <= 0 {
		return nil, fmt.Errorf("probfile: window size %d must be positive", p.window)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probfile: %w", err)
	}
	p.probs, err = Parse(data)
	if err != nil {
		return nil, fmt.Errorf("probfile: %s: %w", path, err)
	}
	return p, nil
}

// WindowSize implements vad.Prober.
func (p *Prober) WindowSize() int { return p.window }

// Len returns the number of stored probabilities.
func (p *Prober) Len() int { return len(p.probs) }

// Probabilities implements vad.Prober. samples is only used to check that
// the stored sequence matches the audio; a sequence one window short is
// accepted since some tools drop the trailing partial window.
func (p *Prober) Probabilities(ctx context.Context, samples []float32) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) > 0 {
		want := vad.WindowCount(len(samples), p.window)
		if got := len(p.probs); got != want && got != want-1 {
			return nil, fmt.Errorf("%w: probfile: %s has %d probabilities, audio needs %d windows of %d samples",
				vad.ErrProber, p.path, got, want, p.window)
		}
	}
	return append([]float64(nil), p.probs...), nil
}

// Parse decodes a probability sequence in either supported format and checks
// that every value is a finite number in [0, 1].
func Parse(data []byte) ([]float64, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty probability file", vad.ErrProber)
	}

	var probs []float64
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &probs); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", vad.ErrProber, err)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(trimmed))
		line := 0
		for sc.Scan() {
			line++
			s := strings.TrimSpace(sc.Text())
			if s == "" || strings.HasPrefix(s, "#") {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", vad.ErrProber, line, err)
			}
			probs = append(probs, v)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", vad.ErrProber, err)
		}
	}

	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: no probabilities", vad.ErrProber)
	}
	for i, v := range probs {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: probability %d is %v, want [0, 1]", vad.ErrProber, i, v)
		}
	}
	return probs, nil
}
