package segment

import (
	"fmt"
	"slices"
)

// Pad widens each raw interval by padSamples ticks and returns a new slice;
// raw is never modified and every gap is measured on the unpadded input, so
// the result does not depend on processing order.
//
// Rules:
//   - the first interval's start moves left by padSamples, clamped at 0;
//   - the last interval's end moves right by padSamples, clamped at
//     totalLength;
//   - for each neighbouring pair with gap g: if g <= 2*padSamples the gap is
//     shared (the left end grows by g/2, the right start shrinks by (g-1)/2,
//     leaving exactly one tick between them), otherwise both sides move by
//     padSamples.
//
// raw must be strictly increasing with at least one tick between intervals,
// which is what [Segmenter.Segment] produces.
func Pad(raw []Interval, totalLength, padSamples Tick) ([]Interval, error) {
	if totalLength <= 0 {
		return nil, fmt.Errorf("%w: total length %d must be positive", ErrInput, totalLength)
	}
	if padSamples < 0 {
		return nil, fmt.Errorf("%w: padding %d must not be negative", ErrInput, padSamples)
	}
	for i, iv := range raw {
		if iv.Start >= iv.End {
			return nil, fmt.Errorf("%w: interval %d %s is empty", ErrInput, i, iv)
		}
		if i > 0 && iv.Start <= raw[i-1].End {
			return nil, fmt.Errorf("%w: interval %d %s does not follow %s", ErrInput, i, iv, raw[i-1])
		}
	}

	out := slices.Clone(raw)
	n := len(out)
	if n == 0 {
		return out, nil
	}

	out[0].Start = max(0, raw[0].Start-padSamples)
	for i := 0; i < n-1; i++ {
		gap := raw[i+1].Start - raw[i].End
		if gap <= 2*padSamples {
			out[i].End = raw[i].End + gap/2
			out[i+1].Start = max(0, raw[i+1].Start-(gap-1)/2)
		} else {
			out[i].End = min(totalLength, raw[i].End+padSamples)
			out[i+1].Start = max(0, raw[i+1].Start-padSamples)
		}
	}
	out[n-1].End = min(totalLength, raw[n-1].End+padSamples)

	if err := checkPadded(out, totalLength); err != nil {
		return nil, err
	}
	return out, nil
}

// checkPadded verifies the padded invariants: bounds inside [0, totalLength],
// non-empty intervals, and next.Start > cur.End.
func checkPadded(ivs []Interval, totalLength Tick) error {
	for i, iv := range ivs {
		if iv.Start < 0 || iv.End > totalLength {
			return fmt.Errorf("%w: padded interval %d %s exceeds [0, %d]", ErrArithmetic, i, iv, totalLength)
		}
		if iv.Start >= iv.End {
			return fmt.Errorf("%w: padded interval %d %s is empty", ErrArithmetic, i, iv)
		}
		if i > 0 && iv.Start <= ivs[i-1].End {
			return fmt.Errorf("%w: padded interval %d %s overlaps %s", ErrArithmetic, i, iv, ivs[i-1])
		}
	}
	return nil
}
