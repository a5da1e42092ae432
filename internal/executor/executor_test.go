package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/hushcut/internal/executor"
	"github.com/MrWong99/hushcut/internal/executor/mock"
	"github.com/MrWong99/hushcut/internal/observe"
	"github.com/MrWong99/hushcut/internal/plan"
	"github.com/MrWong99/hushcut/internal/resilience"
	"github.com/MrWong99/hushcut/internal/segment"
)

var errBoom = errors.New("boom")

// spans returns n contiguous spans of 100 ticks, alternating silence and
// speech, starting with silence.
func spans(n int) []segment.Span {
	out := make([]segment.Span, n)
	for i := range out {
		out[i] = segment.Span{
			Start:  segment.Tick(i * 100),
			End:    segment.Tick(i*100 + 99),
			Speech: i%2 == 1,
		}
	}
	return out
}

type fixture struct {
	plan  *plan.Plan
	final string
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	root := t.TempDir()
	source := filepath.Join(root, "in.mp4")
	runDir, err := executor.NewRunDir(executor.WorkRoot(source))
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	p, err := plan.New(runDir).Plan(spans(n), source)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return fixture{plan: p, final: executor.DefaultOutputPath(source)}
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m, reader
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%s should not exist (stat err = %v)", path, err)
	}
}

func failOn(kind plan.Kind, span int) func(plan.Operation) error {
	return func(op plan.Operation) error {
		if op.Kind == kind && op.SpanIndex == span {
			return errBoom
		}
		return nil
	}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	m, reader := testMetrics(t)
	r := &mock.Runner{}

	res, err := executor.New(r, executor.WithMetrics(m)).Execute(context.Background(), f.plan, f.final)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := readFile(t, f.final); got != "fast([0])[1]fast([2])" {
		t.Errorf("output = %q, want segments in span order", got)
	}
	if res.Output != f.final || res.Segments != 3 || res.Operations != 6 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v", res)
	}

	wantManifest := "file '" + filepath.Join(f.plan.WorkDir, "0.fast.mp4") + "'\n" +
		"file '" + filepath.Join(f.plan.WorkDir, "1.mp4") + "'\n" +
		"file '" + filepath.Join(f.plan.WorkDir, "2.fast.mp4") + "'\n"
	if r.Manifest != wantManifest {
		t.Errorf("manifest = %q\nwant %q", r.Manifest, wantManifest)
	}

	// Concat runs last, after every chain.
	if last := r.Calls[len(r.Calls)-1]; last.Kind != plan.OpConcat {
		t.Errorf("last call = %v, want concat", last)
	}
	assertNotExist(t, f.plan.WorkDir)

	if got := sumCounter(t, reader, "hushcut.operations"); got != 6 {
		t.Errorf("hushcut.operations = %d, want 6", got)
	}
}

func TestExecute_KeepTemp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	m, _ := testMetrics(t)
	_, err := executor.New(&mock.Runner{}, executor.WithKeepTemp(true), executor.WithMetrics(m)).
		Execute(context.Background(), f.plan, f.final)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.plan.WorkDir, "0.fast.mp4")); err != nil {
		t.Errorf("intermediate segment removed despite keep temp: %v", err)
	}
	if _, err := os.Stat(f.plan.ManifestPath); err != nil {
		t.Errorf("manifest removed despite keep temp: %v", err)
	}
}

func TestExecute_HardFail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	m, _ := testMetrics(t)
	r := &mock.Runner{Fail: failOn(plan.OpSpeedAdjust, 2)}

	_, err := executor.New(r, executor.WithMetrics(m)).Execute(context.Background(), f.plan, f.final)

	var opErr *executor.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want *OpError", err)
	}
	if opErr.Op.Kind != plan.OpSpeedAdjust || opErr.Op.SpanIndex != 2 {
		t.Errorf("failed op = %v, want speed_adjust of span 2", opErr.Op)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want cause in chain", err)
	}
	if n := r.KindCount(plan.OpConcat); n != 0 {
		t.Errorf("concat ran %d times after hard failure", n)
	}
	assertNotExist(t, f.final)
	assertNotExist(t, f.plan.WorkDir)
}

func TestExecute_SkipSpan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	m, reader := testMetrics(t)
	r := &mock.Runner{Fail: failOn(plan.OpExtract, 0)}

	res, err := executor.New(r,
		executor.WithPolicy(executor.PolicySkipSpan),
		executor.WithMetrics(m),
	).Execute(context.Background(), f.plan, f.final)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The failed span is dropped and the rest close up around the gap.
	if got := readFile(t, f.final); got != "[1]fast([2])" {
		t.Errorf("output = %q, want %q", got, "[1]fast([2])")
	}
	if !slices.Equal(res.Skipped, []int{0}) || res.Segments != 2 {
		t.Errorf("result = %+v, want span 0 skipped and 2 segments", res)
	}
	// The speed adjust of a failed extract never runs.
	for _, op := range r.Calls {
		if op.Kind == plan.OpSpeedAdjust && op.SpanIndex == 0 {
			t.Errorf("speed adjust ran for skipped span: %v", op)
		}
	}
	if got := sumCounter(t, reader, "hushcut.spans.skipped"); got != 1 {
		t.Errorf("hushcut.spans.skipped = %d, want 1", got)
	}
}

func TestExecute_AllSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	m, _ := testMetrics(t)
	r := &mock.Runner{Fail: func(op plan.Operation) error {
		if op.Kind == plan.OpExtract {
			return errBoom
		}
		return nil
	}}

	_, err := executor.New(r,
		executor.WithPolicy(executor.PolicySkipSpan),
		executor.WithMetrics(m),
	).Execute(context.Background(), f.plan, f.final)
	if !errors.Is(err, executor.ErrNothingToConcat) {
		t.Fatalf("err = %v, want ErrNothingToConcat", err)
	}
	assertNotExist(t, f.final)
}

func TestExecute_ConsecutiveFailuresAbort(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 6)
	m, _ := testMetrics(t)
	r := &mock.Runner{Fail: func(op plan.Operation) error {
		if op.Kind == plan.OpExtract {
			return errBoom
		}
		return nil
	}}

	_, err := executor.New(r,
		executor.WithPolicy(executor.PolicySkipSpan),
		executor.WithConcurrency(1),
		executor.WithMaxConsecutiveFailures(2),
		executor.WithMetrics(m),
	).Execute(context.Background(), f.plan, f.final)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := r.KindCount(plan.OpConcat); n != 0 {
		t.Errorf("concat ran after abort")
	}
	// Two real failures open the breaker; the third span is rejected
	// without reaching the runner.
	if n := r.KindCount(plan.OpExtract); n != 2 {
		t.Errorf("runner saw %d extracts, want 2", n)
	}
	assertNotExist(t, f.final)
}

func TestExecute_ConcatFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	m, _ := testMetrics(t)
	r := &mock.Runner{Fail: func(op plan.Operation) error {
		if op.Kind == plan.OpConcat {
			return errBoom
		}
		return nil
	}}

	_, err := executor.New(r,
		executor.WithPolicy(executor.PolicySkipSpan),
		executor.WithMetrics(m),
	).Execute(context.Background(), f.plan, f.final)
	var opErr *executor.OpError
	if !errors.As(err, &opErr) || opErr.Op.Kind != plan.OpConcat {
		t.Fatalf("err = %v, want concat *OpError", err)
	}
	assertNotExist(t, f.final)
}

func TestExecute_Cancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	m, _ := testMetrics(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.New(&mock.Runner{}, executor.WithMetrics(m)).Execute(ctx, f.plan, f.final)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	assertNotExist(t, f.final)
}

func TestExecute_CreatesOutputDir(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	m, _ := testMetrics(t)
	final := filepath.Join(t.TempDir(), "nested", "dir", "out.mp4")

	if _, err := executor.New(&mock.Runner{}, executor.WithMetrics(m)).Execute(context.Background(), f.plan, final); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := readFile(t, final); got != "fast([0])" {
		t.Errorf("output = %q", got)
	}
}

// blockingRunner never finishes an operation before its context ends.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ plan.Operation) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestExecute_OperationTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	m, _ := testMetrics(t)

	_, err := executor.New(blockingRunner{},
		executor.WithOperationTimeout(10*time.Millisecond),
		executor.WithMetrics(m),
	).Execute(context.Background(), f.plan, f.final)
	if !errors.Is(err, executor.ErrExternalProcess) {
		t.Fatalf("err = %v, want ErrExternalProcess", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout should be reported as a process failure: %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    executor.Policy
		wantErr bool
	}{
		{"", executor.PolicyHardFail, false},
		{"hard_fail", executor.PolicyHardFail, false},
		{"skip_span", executor.PolicySkipSpan, false},
		{"retry", 0, true},
	}
	for _, tc := range tests {
		got, err := executor.ParsePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePolicy(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if s := executor.PolicySkipSpan.String(); s != "skip_span" {
		t.Errorf("PolicySkipSpan.String() = %q", s)
	}
	if s := executor.Policy(9).String(); s != "unknown" {
		t.Errorf("Policy(9).String() = %q", s)
	}
}
