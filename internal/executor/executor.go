// Package executor runs a [plan.Plan] against an external media tool.
//
// Per-span chains (Extract, then SpeedAdjust for non-speech spans) run
// concurrently up to a configurable limit. Concat is a join barrier: it runs
// only after every chain has finished, over the segments that succeeded, and
// its output is then moved to the final path. Intermediate files live in the
// plan's work directory, which is removed after the run unless KeepTemp is
// set.
//
// Two failure policies exist. [PolicyHardFail] cancels the remaining chains
// on the first failure and never runs Concat. [PolicySkipSpan] leaves a
// failed span out of the output; a per-run circuit breaker still aborts the
// run after too many consecutive failures, which usually means ffmpeg itself
// is broken rather than one span.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hushcut/internal/observe"
	"github.com/MrWong99/hushcut/internal/plan"
	"github.com/MrWong99/hushcut/internal/resilience"
)

var (
	// ErrExternalProcess is wrapped by failures of the external media tool.
	ErrExternalProcess = errors.New("executor: external process failed")

	// ErrNothingToConcat is returned when every span was skipped.
	ErrNothingToConcat = errors.New("executor: no segments left to concatenate")
)

// Policy selects how per-span operation failures are handled.
type Policy int

const (
	// PolicyHardFail aborts the run on the first failure.
	PolicyHardFail Policy = iota

	// PolicySkipSpan omits failed spans from the output.
	PolicySkipSpan
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyHardFail:
		return "hard_fail"
	case PolicySkipSpan:
		return "skip_span"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "hard_fail":
		return PolicyHardFail, nil
	case "skip_span":
		return PolicySkipSpan, nil
	}
	return 0, fmt.Errorf("executor: unknown failure policy %q", s)
}

// Runner performs a single plan operation. For Concat, the manifest at
// op.Input has already been written.
type Runner interface {
	Run(ctx context.Context, op plan.Operation) error
}

// OpError reports which operation failed.
type OpError struct {
	Op  plan.Operation
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("executor: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Result summarises a finished run.
type Result struct {
	// Output is the final output path.
	Output string

	// Segments is how many segments were concatenated.
	Segments int

	// Skipped lists the span indices left out under [PolicySkipSpan].
	Skipped []int

	// Operations is the number of operations that ran successfully.
	Operations int

	Elapsed time.Duration
}

// Option configures an [Executor].
type Option func(*Executor)

// WithPolicy sets the failure policy. Default: [PolicyHardFail].
func WithPolicy(p Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithConcurrency bounds how many span chains run at once. Default: 4.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithKeepTemp keeps the work directory after the run.
func WithKeepTemp(keep bool) Option {
	return func(e *Executor) { e.keepTemp = keep }
}

// WithMaxConsecutiveFailures sets how many failures in a row abort a
// skip-span run. Default: 5.
func WithMaxConsecutiveFailures(n int) Option {
	return func(e *Executor) { e.maxFailures = n }
}

// WithOperationTimeout bounds each operation. Zero means no limit.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Executor) { e.opTimeout = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// Executor runs plans. It holds only configuration and may run several plans
// concurrently as long as they use distinct work directories.
type Executor struct {
	runner      Runner
	policy      Policy
	concurrency int
	keepTemp    bool
	maxFailures int
	opTimeout   time.Duration
	metrics     *observe.Metrics
}

// New returns an Executor that delegates every operation to runner.
func New(runner Runner, opts ...Option) *Executor {
	e := &Executor{
		runner:      runner,
		policy:      PolicyHardFail,
		concurrency: 4,
		maxFailures: 5,
	}
	for _, o := range opts {
		o(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Execute runs p and moves the concatenated result to finalPath. On failure
// no file is created at finalPath.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, finalPath string) (res *Result, err error) {
	start := time.Now()
	log := observe.Logger(ctx).With("work_dir", p.WorkDir)

	if err := PrepareWorkDir(p.WorkDir); err != nil {
		return nil, err
	}
	defer func() {
		if e.keepTemp {
			log.Info("keeping work directory")
			return
		}
		if rmErr := os.RemoveAll(p.WorkDir); rmErr != nil {
			log.Warn("failed to remove work directory", "err", rmErr)
		}
	}()

	e.metrics.ActiveRuns.Add(ctx, 1)
	defer e.metrics.ActiveRuns.Add(ctx, -1)

	skipped, done, err := e.runChains(ctx, p)
	if err != nil {
		return nil, err
	}

	concat := p.Concat()
	inputs := make([]string, 0, len(concat.Inputs))
	for i, in := range concat.Inputs {
		if !skipped[i] {
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		return nil, ErrNothingToConcat
	}
	if err := os.WriteFile(p.ManifestPath, plan.RenderManifest(inputs), 0o644); err != nil {
		return nil, fmt.Errorf("executor: write manifest: %w", err)
	}
	concat.Inputs = inputs
	if err := e.runOp(ctx, nil, concat); err != nil {
		return nil, err
	}
	done++

	if err := promote(p.Output, finalPath); err != nil {
		return nil, err
	}

	res = &Result{
		Output:     finalPath,
		Segments:   len(inputs),
		Operations: done,
		Elapsed:    time.Since(start),
	}
	for i, s := range skipped {
		if s {
			res.Skipped = append(res.Skipped, i)
		}
	}
	log.Info("plan executed",
		"output", finalPath,
		"segments", res.Segments,
		"skipped", len(res.Skipped),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// runChains runs every span chain and reports which spans were skipped and
// how many operations succeeded.
func (e *Executor) runChains(ctx context.Context, p *plan.Plan) ([]bool, int, error) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "executor",
		MaxFailures:  e.maxFailures,
		ResetTimeout: time.Hour,
	})

	var (
		mu      sync.Mutex
		skipped = make([]bool, len(p.Spans))
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chain := range p.Chains() {
		g.Go(func() error {
			for _, op := range chain {
				err := e.runOp(gctx, breaker, op)
				if err == nil {
					mu.Lock()
					done++
					mu.Unlock()
					continue
				}
				if e.policy == PolicyHardFail || gctx.Err() != nil || errors.Is(err, resilience.ErrCircuitOpen) {
					return err
				}
				observe.Logger(gctx).Warn("skipping span after failed operation", "span", i, "op", op.String(), "err", err)
				e.metrics.SkippedSpans.Add(gctx, 1)
				mu.Lock()
				skipped[i] = true
				mu.Unlock()
				return nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, 0, fmt.Errorf("executor: aborting after %d consecutive failures: %w", e.maxFailures, err)
		}
		return nil, 0, err
	}
	return skipped, done, nil
}

// runOp runs op through breaker (when non-nil) with tracing, metrics and the
// per-operation timeout applied.
func (e *Executor) runOp(ctx context.Context, breaker *resilience.CircuitBreaker, op plan.Operation) error {
	ctx, span := observe.StartSpan(ctx, "executor."+op.Kind.String(),
		trace.WithAttributes(
			attribute.Int("op.id", op.ID),
			attribute.Int("op.span_index", op.SpanIndex),
		),
	)
	parent := ctx
	if e.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opTimeout)
		defer cancel()
	}

	start := time.Now()
	run := func() error {
		err := e.runner.Run(ctx, op)
		// A per-operation timeout is a process failure and counts towards
		// the breaker; cancellation of the run itself does not.
		if err != nil && parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s", ErrExternalProcess, e.opTimeout)
		}
		return err
	}
	var err error
	if breaker != nil {
		err = breaker.Execute(run)
	} else {
		err = run()
	}
	e.metrics.RecordOperation(ctx, op.Kind.String(), time.Since(start), err)
	observe.EndSpan(span, err)

	if err != nil {
		return &OpError{Op: op, Err: err}
	}
	observe.Logger(ctx).Debug("operation done", "op", op.String(), "output", op.Output, "elapsed", time.Since(start))
	return nil
}

// promote moves src to dst, creating dst's directory. It falls back to a
// copy when a rename is not possible, e.g. across filesystems.
func promote(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("executor: create output dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("executor: promote output: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".hushcut-*")
	if err != nil {
		return fmt.Errorf("executor: promote output: %w", err)
	}
	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("executor: promote output: %w", err)
	}
	return nil
}
