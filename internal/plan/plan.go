// Package plan maps a normalized timeline onto an ordered graph of external
// media operations: one Extract per span, a SpeedAdjust for every non-speech
// span, and a single Concat that joins the terminal segment of every span in
// temporal order.
//
// The planner never runs anything. A [Plan] is a static value handed to an
// executor, which may run the per-span chains concurrently but must treat
// Concat as a join barrier.
package plan

import (
	"errors"
	"fmt"

	"github.com/MrWong99/hushcut/internal/segment"
)

// ErrPlan is returned when a span list cannot be planned.
var ErrPlan = errors.New("plan: invalid timeline")

// Kind identifies the variant of an [Operation].
type Kind int

const (
	// OpExtract cuts [Start, Start+Duration) out of the source file.
	OpExtract Kind = iota

	// OpSpeedAdjust re-times one extracted segment by Factor.
	OpSpeedAdjust

	// OpConcat joins Inputs, in order, into Output.
	OpConcat
)

// String returns the lower-case operation name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case OpExtract:
		return "extract"
	case OpSpeedAdjust:
		return "speed_adjust"
	case OpConcat:
		return "concat"
	default:
		return "unknown"
	}
}

// Operation is one node of the plan. Only the fields relevant to Kind are
// set.
type Operation struct {
	// ID is the operation's position in [Plan.Ops].
	ID int

	Kind Kind

	// SpanIndex is the index of the span this operation serves, or -1 for
	// Concat.
	SpanIndex int

	// Input is the source file for Extract and the extracted segment for
	// SpeedAdjust. For Concat it is the manifest path.
	Input string

	// Start and Duration locate an Extract in the source, in ticks.
	Start    segment.Tick
	Duration segment.Tick

	// StartSec and DurationSec are Start and Duration converted at the
	// plan's sample rate.
	StartSec    float64
	DurationSec float64

	// Factor is the playback speed multiplier of a SpeedAdjust.
	Factor float64

	// Inputs lists, for Concat, the terminal segment of every span in
	// temporal order.
	Inputs []string

	// Output is the file this operation produces.
	Output string

	// DependsOn lists the IDs of operations that must succeed first.
	DependsOn []int
}

func (op Operation) String() string {
	if op.Kind == OpConcat {
		return fmt.Sprintf("#%d %s(%d inputs)", op.ID, op.Kind, len(op.Inputs))
	}
	return fmt.Sprintf("#%d %s(span %d)", op.ID, op.Kind, op.SpanIndex)
}

// Plan is the complete, ordered operation list for one source file.
type Plan struct {
	SourcePath string

	// WorkDir holds every intermediate file of this plan.
	WorkDir string

	// SampleRate is the tick rate used to derive operation offsets.
	SampleRate int

	// Spans is the timeline the plan was built from.
	Spans []segment.Span

	// Ops lists operations in a valid execution order: each span's Extract
	// is immediately followed by its SpeedAdjust (if any); Concat is last.
	Ops []Operation

	// ManifestPath is where the concat manifest is written.
	ManifestPath string

	// Output is the path produced by Concat.
	Output string
}

// Concat returns the final join operation.
func (p *Plan) Concat() Operation {
	return p.Ops[len(p.Ops)-1]
}

// Chains groups the non-concat operations by span index, preserving order.
// Chain i holds span i's Extract followed by its optional SpeedAdjust.
func (p *Plan) Chains() [][]Operation {
	chains := make([][]Operation, len(p.Spans))
	for _, op := range p.Ops {
		if op.Kind == OpConcat {
			continue
		}
		chains[op.SpanIndex] = append(chains[op.SpanIndex], op)
	}
	return chains
}

// Counts returns the number of operations of each kind.
func (p *Plan) Counts() (extracts, speedAdjusts, concats int) {
	for _, op := range p.Ops {
		switch op.Kind {
		case OpExtract:
			extracts++
		case OpSpeedAdjust:
			speedAdjusts++
		case OpConcat:
			concats++
		}
	}
	return extracts, speedAdjusts, concats
}
