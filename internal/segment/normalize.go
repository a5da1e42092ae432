package segment

import (
	"fmt"
	"log/slog"
)

// Normalize builds the canonical timeline from padded intervals: each
// interval becomes a speech span preceded by the non-speech span that fills
// the gap since the previous one, and a final non-speech span runs to
// totalLength. Spans are inclusive on both ends.
//
// Spans whose start lies after their end (for example the leading silence
// {0, -1} when speech begins at tick 0) are dropped, and two speech spans
// left touching by such a drop are merged. The output therefore always
// alternates, starts at 0, ends at totalLength, and its Ticks sum to
// totalLength + 1.
//
// With no intervals the result is the single span {0, totalLength, false}.
func Normalize(padded []Interval, totalLength Tick) ([]Span, error) {
	if totalLength <= 0 {
		return nil, fmt.Errorf("%w: total length %d must be positive", ErrInput, totalLength)
	}
	if err := checkPadded(padded, totalLength); err != nil {
		return nil, err
	}

	spans := make([]Span, 0, 2*len(padded)+1)
	var lastEnd Tick
	for _, iv := range padded {
		spans = appendSpan(spans, Span{Start: lastEnd, End: iv.Start - 1, Speech: false})
		spans = appendSpan(spans, Span{Start: iv.Start, End: iv.End, Speech: true})
		lastEnd = iv.End + 1
	}
	spans = appendSpan(spans, Span{Start: lastEnd, End: totalLength, Speech: false})
	return spans, nil
}

// appendSpan adds s to spans, dropping it when degenerate and coalescing it
// with the previous span when both carry the same flag.
func appendSpan(spans []Span, s Span) []Span {
	if s.Start > s.End {
		slog.Debug("dropping degenerate span", "start", s.Start, "end", s.End, "speech", s.Speech)
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].Speech == s.Speech {
		spans[n-1].End = s.End
		return spans
	}
	return append(spans, s)
}

// Build runs the full pure pipeline: segmentation, padding and normalization.
// It is a convenience for callers that do not need per-stage attribution.
func Build(probs []float64, totalLength Tick, p Params) ([]Span, error) {
	seg, err := NewSegmenter(p)
	if err != nil {
		return nil, err
	}
	raw, err := seg.Segment(probs)
	if err != nil {
		return nil, err
	}
	padded, err := Pad(raw, totalLength, p.SpeechPadSamples())
	if err != nil {
		return nil, err
	}
	return Normalize(padded, totalLength)
}
