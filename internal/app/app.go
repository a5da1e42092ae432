// Package app wires the hushcut stages into a single run over one source
// file: decode the analysis audio, compute per-window speech probabilities,
// build the speech/non-speech timeline, plan the ffmpeg operations and
// execute them.
//
// The prober is supplied by the caller so one instance (and whatever model
// it holds) is reused across every file processed by the same App. All other
// collaborators default to real implementations built from the config and
// can be replaced with test doubles through functional options.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hushcut/internal/config"
	"github.com/MrWong99/hushcut/internal/executor"
	"github.com/MrWong99/hushcut/internal/observe"
	"github.com/MrWong99/hushcut/internal/plan"
	"github.com/MrWong99/hushcut/internal/segment"
	"github.com/MrWong99/hushcut/pkg/audio"
	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

// orphanAge is how old a leftover run directory must be before a new run
// removes it.
const orphanAge = 24 * time.Hour

// Executor runs a plan and promotes its result to finalPath.
// [*executor.Executor] is the production implementation.
type Executor interface {
	Execute(ctx context.Context, p *plan.Plan, finalPath string) (*executor.Result, error)
}

// Input names the file to process.
type Input struct {
	// SourcePath is the media file to shorten.
	SourcePath string

	// OutputPath overrides the configured output path. Empty means
	// pipeline.output, or the default next to the source.
	OutputPath string
}

// Report describes a finished run.
type Report struct {
	Source string
	Output string

	// Samples is the decoded length in ticks.
	Samples    int
	SampleRate int

	// Spans is the normalized timeline.
	Spans []segment.Span

	Plan *plan.Plan

	// Result is nil for a dry run.
	Result *executor.Result

	DryRun  bool
	Elapsed time.Duration
}

// SpeechSeconds returns the total length of the speech spans.
func (r *Report) SpeechSeconds() float64 { return r.seconds(true) }

// SilenceSeconds returns the total length of the non-speech spans.
func (r *Report) SilenceSeconds() float64 { return r.seconds(false) }

func (r *Report) seconds(speech bool) float64 {
	var total segment.Tick
	for _, s := range r.Spans {
		if s.Speech == speech {
			total += s.Ticks()
		}
	}
	return total.Seconds(r.SampleRate)
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDecoder injects an audio decoder instead of the ffmpeg decoder.
func WithDecoder(d audio.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithExecutor injects a plan executor instead of the ffmpeg-backed one.
func WithExecutor(e Executor) Option {
	return func(a *App) { a.exec = e }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithDryRun stops every run after planning. Nothing is written to disk.
func WithDryRun(on bool) Option {
	return func(a *App) { a.dryRun = on }
}

// App runs the full pipeline. It is safe for concurrent use when its
// collaborators are.
type App struct {
	cfg     *config.Config
	params  segment.Params
	prober  vad.Prober
	decoder audio.Decoder
	exec    Executor
	metrics *observe.Metrics
	dryRun  bool
}

// New creates an App from a validated config and a prober. The prober's
// window size must match vad.window_size.
func New(cfg *config.Config, prober vad.Prober, opts ...Option) (*App, error) {
	if prober == nil {
		return nil, fmt.Errorf("app: a VAD prober is required")
	}
	a := &App{
		cfg:    cfg,
		params: cfg.VAD.SegmentParams(),
		prober: prober,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.params.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if w := prober.WindowSize(); w != a.params.WindowSize {
		return nil, fmt.Errorf("app: prober window size %d does not match vad.window_size %d", w, a.params.WindowSize)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.decoder == nil {
		a.decoder = audio.NewFFmpegDecoder(
			audio.WithFFmpegPath(cfg.Pipeline.FFmpegPath),
			audio.WithSampleRate(a.params.SampleRate),
		)
	}
	if a.exec == nil {
		e, err := newExecutor(cfg.Pipeline, a.metrics)
		if err != nil {
			return nil, err
		}
		a.exec = e
	}
	return a, nil
}

func newExecutor(pc config.PipelineConfig, m *observe.Metrics) (*executor.Executor, error) {
	policy, err := executor.ParsePolicy(string(pc.FailurePolicy))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	runner := executor.NewFFmpeg(
		executor.WithBinary(pc.FFmpegPath),
		executor.WithReencode(pc.Reencode),
	)
	return executor.New(runner,
		executor.WithPolicy(policy),
		executor.WithConcurrency(pc.Concurrency),
		executor.WithKeepTemp(pc.KeepTemp),
		executor.WithMaxConsecutiveFailures(pc.MaxConsecutiveFailures),
		executor.WithOperationTimeout(pc.OperationTimeout),
		executor.WithMetrics(m),
	), nil
}

// Run processes one file. Every returned error is a [*StageError].
func (a *App) Run(ctx context.Context, in Input) (*Report, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "app.run",
		trace.WithAttributes(attribute.String("source", in.SourcePath)),
	)
	report, err := a.run(ctx, in)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

func (a *App) run(ctx context.Context, in Input) (*Report, error) {
	log := observe.Logger(ctx).With("source", in.SourcePath)
	report := &Report{
		Source:     in.SourcePath,
		Output:     a.outputPath(in),
		SampleRate: a.params.SampleRate,
		DryRun:     a.dryRun,
	}

	// ── Decode ───────────────────────────────────────────────────────────
	var samples *audio.Samples
	err := a.stage(ctx, StageDecode, func(ctx context.Context) error {
		if _, err := os.Stat(in.SourcePath); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		var err error
		samples, err = a.decoder.Decode(ctx, in.SourcePath)
		if err != nil {
			return err
		}
		if samples.SampleRate != a.params.SampleRate {
			return fmt.Errorf("%w: decoded %d Hz, want %d Hz", ErrSampleRate, samples.SampleRate, a.params.SampleRate)
		}
		if samples.Len() == 0 {
			return fmt.Errorf("%w: source has no audio samples", segment.ErrInput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.Samples = samples.Len()
	totalLength := segment.Tick(samples.Len())
	log.Debug("audio decoded", "samples", samples.Len(), "duration", samples.Duration())

	// ── Probabilities ────────────────────────────────────────────────────
	var probs []float64
	err = a.stage(ctx, StageProbabilities, func(ctx context.Context) error {
		var err error
		probs, err = a.prober.Probabilities(ctx, samples.Data)
		return err
	})
	if err != nil {
		return nil, err
	}

	// ── Segmentation ─────────────────────────────────────────────────────
	var raw []segment.Interval
	err = a.stage(ctx, StageSegmentation, func(context.Context) error {
		seg, err := segment.NewSegmenter(a.params)
		if err != nil {
			return err
		}
		raw, err = seg.Segment(probs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		log.Info("no speech detected, the whole file is one non-speech span")
	}

	// ── Padding ──────────────────────────────────────────────────────────
	var padded []segment.Interval
	err = a.stage(ctx, StagePadding, func(context.Context) error {
		var err error
		padded, err = segment.Pad(raw, totalLength, a.params.SpeechPadSamples())
		return err
	})
	if err != nil {
		return nil, err
	}

	// ── Normalization ────────────────────────────────────────────────────
	err = a.stage(ctx, StageNormalization, func(context.Context) error {
		var err error
		report.Spans, err = segment.Normalize(padded, totalLength)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, s := range report.Spans {
		a.metrics.RecordSpan(ctx, s.Speech, s.Ticks().Seconds(a.params.SampleRate))
	}

	// ── Planning ─────────────────────────────────────────────────────────
	err = a.stage(ctx, StagePlanning, func(context.Context) error {
		root := executor.WorkRoot(in.SourcePath)
		var runDir string
		if a.dryRun {
			runDir = executor.RunDirPath(root)
		} else {
			if n, err := executor.CleanOrphans(root, orphanAge); err != nil {
				log.Warn("failed to clean orphaned run directories", "err", err)
			} else if n > 0 {
				log.Info("removed orphaned run directories", "count", n)
			}
			var err error
			if runDir, err = executor.NewRunDir(root); err != nil {
				return err
			}
		}
		var err error
		report.Plan, err = plan.New(runDir,
			plan.WithSpeedFactor(a.cfg.Pipeline.SpeedFactor),
			plan.WithSampleRate(a.params.SampleRate),
		).Plan(report.Spans, in.SourcePath)
		if err != nil && !a.dryRun {
			os.Remove(runDir)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("timeline planned",
		"spans", len(report.Spans),
		"operations", len(report.Plan.Ops),
		"speech_s", report.SpeechSeconds(),
		"silence_s", report.SilenceSeconds(),
	)
	if a.dryRun {
		return report, nil
	}

	// ── Execution ────────────────────────────────────────────────────────
	err = a.stage(ctx, StageExecution, func(ctx context.Context) error {
		var err error
		report.Result, err = a.exec.Execute(ctx, report.Plan, report.Output)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// stage runs fn under a trace span, records its duration and attributes any
// error to stage.
func (a *App) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "app."+string(stage))
	start := time.Now()
	err := fn(ctx)
	a.metrics.RecordStage(ctx, string(stage), time.Since(start), err)
	observe.EndSpan(span, err)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (a *App) outputPath(in Input) string {
	switch {
	case in.OutputPath != "":
		return in.OutputPath
	case a.cfg.Pipeline.Output != "":
		return a.cfg.Pipeline.Output
	default:
		return executor.DefaultOutputPath(filepath.Clean(in.SourcePath))
	}
}
