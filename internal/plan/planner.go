package plan

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/MrWong99/hushcut/internal/segment"
)

const (
	// DefaultSpeedFactor is applied to non-speech spans.
	DefaultSpeedFactor = 2.0

	manifestName = "concat.txt"
	mergedName   = "merged"
)

// Planner builds a [Plan] for a normalized timeline. The zero value is not
// usable; create one with [New].
type Planner struct {
	workDir     string
	speedFactor float64
	sampleRate  int
	ext         string
}

// Option configures a [Planner].
type Option func(*Planner)

// WithSpeedFactor sets the speed-up applied to non-speech spans.
// Default: [DefaultSpeedFactor].
func WithSpeedFactor(f float64) Option {
	return func(p *Planner) { p.speedFactor = f }
}

// WithSampleRate sets the tick rate recorded on the plan. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(p *Planner) { p.sampleRate = rate }
}

// WithExtension forces the container extension (including the dot) of every
// intermediate file. By default the source file's extension is used.
func WithExtension(ext string) Option {
	return func(p *Planner) { p.ext = ext }
}

// New returns a Planner that places all intermediate files under workDir.
func New(workDir string, opts ...Option) *Planner {
	p := &Planner{
		workDir:     workDir,
		speedFactor: DefaultSpeedFactor,
		sampleRate:  16000,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan builds the operation graph for spans over sourcePath.
//
// For span i it emits Extract(source, start, end-start) -> "<i><ext>"; a
// non-speech span additionally gets SpeedAdjust -> "<i>.fast<ext>", which
// then stands in for the span in the concat order. A single Concat of all
// terminal segments, in span order, ends the plan.
//
// spans must be non-empty, start at tick 0, and be contiguous under the
// inclusive convention of [segment.Normalize].
func (p *Planner) Plan(spans []segment.Span, sourcePath string) (*Plan, error) {
	if sourcePath == "" {
		return nil, fmt.Errorf("%w: source path is empty", ErrPlan)
	}
	if p.speedFactor <= 0 {
		return nil, fmt.Errorf("%w: speed factor %v must be positive", ErrPlan, p.speedFactor)
	}
	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d must be positive", ErrPlan, p.sampleRate)
	}
	if err := checkSpans(spans); err != nil {
		return nil, err
	}

	ext := p.ext
	if ext == "" {
		ext = filepath.Ext(sourcePath)
	}

	out := &Plan{
		SourcePath:   sourcePath,
		WorkDir:      p.workDir,
		SampleRate:   p.sampleRate,
		Spans:        spans,
		Ops:          make([]Operation, 0, 2*len(spans)+1),
		ManifestPath: filepath.Join(p.workDir, manifestName),
		Output:       filepath.Join(p.workDir, mergedName+ext),
	}

	terminals := make([]string, 0, len(spans))
	terminalIDs := make([]int, 0, len(spans))
	for i, s := range spans {
		// A one-tick span has End == Start; cut at least one tick so ffmpeg
		// never sees -t 0.
		extract := Operation{
			ID:        len(out.Ops),
			Kind:      OpExtract,
			SpanIndex: i,
			Input:     sourcePath,
			Start:     s.Start,
			Duration:  max(s.Duration(), 1),
			StartSec:  s.Start.Seconds(p.sampleRate),
			Output:    filepath.Join(p.workDir, strconv.Itoa(i)+ext),
		}
		extract.DurationSec = extract.Duration.Seconds(p.sampleRate)
		out.Ops = append(out.Ops, extract)
		terminal := extract

		if !s.Speech {
			fast := Operation{
				ID:        len(out.Ops),
				Kind:      OpSpeedAdjust,
				SpanIndex: i,
				Input:     extract.Output,
				Factor:    p.speedFactor,
				Output:    filepath.Join(p.workDir, strconv.Itoa(i)+".fast"+ext),
				DependsOn: []int{extract.ID},
			}
			out.Ops = append(out.Ops, fast)
			terminal = fast
		}
		terminals = append(terminals, terminal.Output)
		terminalIDs = append(terminalIDs, terminal.ID)
	}

	out.Ops = append(out.Ops, Operation{
		ID:        len(out.Ops),
		Kind:      OpConcat,
		SpanIndex: -1,
		Input:     out.ManifestPath,
		Inputs:    terminals,
		Output:    out.Output,
		DependsOn: terminalIDs,
	})
	return out, nil
}

func checkSpans(spans []segment.Span) error {
	if len(spans) == 0 {
		return fmt.Errorf("%w: no spans", ErrPlan)
	}
	if spans[0].Start != 0 {
		return fmt.Errorf("%w: first span starts at %d", ErrPlan, spans[0].Start)
	}
	for i, s := range spans {
		if s.Start > s.End {
			return fmt.Errorf("%w: span %d %v is degenerate", ErrPlan, i, s)
		}
		if i > 0 && s.Start != spans[i-1].End+1 {
			return fmt.Errorf("%w: span %d %v does not follow %v", ErrPlan, i, s, spans[i-1])
		}
	}
	return nil
}
