// Package mock provides a file-producing test double for executor.Runner.
//
// Runner writes a small text file for every operation so that tests can
// follow data through the plan: an Extract writes "[<span>]", a SpeedAdjust
// wraps its input as "fast(<input>)", and a Concat joins the contents of the
// manifest entries in order.
package mock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/MrWong99/hushcut/internal/executor"
	"github.com/MrWong99/hushcut/internal/plan"
)

var _ executor.Runner = (*Runner)(nil)

// Runner is a mock implementation of executor.Runner.
type Runner struct {
	mu sync.Mutex

	// Fail, if set, is consulted before each operation; a non-nil result is
	// returned as the operation's error and no output is written.
	Fail func(op plan.Operation) error

	// Calls records every operation in call order.
	Calls []plan.Operation

	// Manifest holds the manifest content seen by the last Concat.
	Manifest string
}

// Run records op and produces its output file.
func (r *Runner) Run(ctx context.Context, op plan.Operation) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, op)
	fail := r.Fail
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		if err := fail(op); err != nil {
			return err
		}
	}

	var content string
	switch op.Kind {
	case plan.OpExtract:
		content = fmt.Sprintf("[%d]", op.SpanIndex)
	case plan.OpSpeedAdjust:
		in, err := os.ReadFile(op.Input)
		if err != nil {
			return err
		}
		content = "fast(" + string(in) + ")"
	case plan.OpConcat:
		manifest, err := os.ReadFile(op.Input)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.Manifest = string(manifest)
		r.mu.Unlock()

		var b strings.Builder
		for _, in := range op.Inputs {
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			b.Write(data)
		}
		content = b.String()
	}
	return os.WriteFile(op.Output, []byte(content), 0o644)
}

// KindCount returns how many operations of kind were run. Thread-safe.
func (r *Runner) KindCount(kind plan.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.Calls {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
