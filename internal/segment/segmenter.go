package segment

import (
	"errors"
	"fmt"
	"math"
)

// Params holds the hysteresis and duration settings for [Segmenter].
// Durations are in milliseconds and converted to ticks with integer
// arithmetic (SampleRate * ms / 1000).
type Params struct {
	// SampleRate is the VAD analysis rate in ticks per second. Default: 16000.
	SampleRate int

	// WindowSize is the number of ticks summarised by one probability.
	// Default: 512.
	WindowSize int

	// Threshold opens a speech interval. Default: 0.5.
	Threshold float64

	// NegThreshold is the lower exit threshold; frames below it count towards
	// closing an open interval. Default: Threshold - 0.15.
	NegThreshold float64

	// MinSpeechMs is the length an interval must strictly exceed to be
	// emitted. Default: 250.
	MinSpeechMs int

	// MinSilenceMs is how long a tentative silence must last before the open
	// interval is closed. Default: 2000.
	MinSilenceMs int

	// SpeechPadMs is the edge padding applied by [Pad]. Default: 30.
	SpeechPadMs int
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		SampleRate:   16000,
		WindowSize:   512,
		Threshold:    0.5,
		NegThreshold: 0.35,
		MinSpeechMs:  250,
		MinSilenceMs: 2000,
		SpeechPadMs:  30,
	}
}

// MinSpeechSamples returns MinSpeechMs in ticks.
func (p Params) MinSpeechSamples() Tick { return p.msToTicks(p.MinSpeechMs) }

// MinSilenceSamples returns MinSilenceMs in ticks.
func (p Params) MinSilenceSamples() Tick { return p.msToTicks(p.MinSilenceMs) }

// SpeechPadSamples returns SpeechPadMs in ticks.
func (p Params) SpeechPadSamples() Tick { return p.msToTicks(p.SpeechPadMs) }

func (p Params) msToTicks(ms int) Tick {
	return Tick(int64(p.SampleRate) * int64(ms) / 1000)
}

// Validate reports every inconsistent field as a joined error.
func (p Params) Validate() error {
	var errs []error
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", p.SampleRate))
	}
	if p.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("window size %d must be positive", p.WindowSize))
	}
	if p.Threshold <= 0 || p.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %.3f is out of range (0, 1]", p.Threshold))
	}
	if p.NegThreshold < 0 || p.NegThreshold >= p.Threshold {
		errs = append(errs, fmt.Errorf("negative threshold %.3f must be in [0, threshold)", p.NegThreshold))
	}
	if p.MinSpeechMs < 0 || p.MinSilenceMs < 0 || p.SpeechPadMs < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInput, err)
	}
	return nil
}

// state is the hysteresis state of a single Segment pass.
type state int

const (
	stateIdle state = iota
	stateSpeech
	statePendingClose
)

// Segmenter turns a probability sequence into raw speech intervals.
// A Segmenter holds only configuration and is safe for concurrent use.
type Segmenter struct {
	params     Params
	window     Tick
	minSpeech  Tick
	minSilence Tick
}

// NewSegmenter validates p and returns a ready Segmenter.
func NewSegmenter(p Params) (*Segmenter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{
		params:     p,
		window:     Tick(p.WindowSize),
		minSpeech:  p.MinSpeechSamples(),
		minSilence: p.MinSilenceSamples(),
	}, nil
}

// Params returns the configuration the Segmenter was built with.
func (s *Segmenter) Params() Params { return s.params }

// Segment runs the hysteresis state machine over probs. Probability i
// describes ticks [i*WindowSize, (i+1)*WindowSize).
//
// The returned intervals are strictly increasing, separated by silence, and
// each strictly longer than MinSpeechSamples. A trailing interval that is
// still open when the input ends is closed at len(probs)*WindowSize.
func (s *Segmenter) Segment(probs []float64) ([]Interval, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: empty probability sequence", ErrInput)
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: probability[%d] = %v is not in [0, 1]", ErrInput, i, p)
		}
	}

	var (
		out     []Interval
		st      = stateIdle
		start   Tick
		tempEnd Tick
	)
	threshold, neg := s.params.Threshold, s.params.NegThreshold

	for i, p := range probs {
		pos := Tick(i) * s.window

		// A strong frame during a tentative silence reopens speech.
		if p >= threshold && st == statePendingClose {
			st = stateSpeech
		}

		if p >= threshold && st == stateIdle {
			st = stateSpeech
			start = pos
			continue
		}

		if p < neg && st != stateIdle {
			if st == stateSpeech {
				st = statePendingClose
				tempEnd = pos
			}
			if pos-tempEnd < s.minSilence {
				continue
			}
			if tempEnd-start > s.minSpeech {
				out = append(out, Interval{Start: start, End: tempEnd})
			}
			st = stateIdle
		}
	}

	if st != stateIdle {
		end := Tick(len(probs)) * s.window
		if end-start > s.minSpeech {
			out = append(out, Interval{Start: start, End: end})
		}
	}
	return out, nil
}
