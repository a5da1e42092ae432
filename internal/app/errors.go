package app

import (
	"errors"
	"fmt"
)

// Stage names one step of a run. Every fatal error returned by [App.Run] is
// wrapped in a [*StageError] carrying the stage it happened in.
type Stage string

const (
	StageDecode        Stage = "decode"
	StageProbabilities Stage = "probabilities"
	StageSegmentation  Stage = "segmentation"
	StagePadding       Stage = "padding"
	StageNormalization Stage = "normalization"
	StagePlanning      Stage = "planning"
	StageExecution     Stage = "execution"
)

// ErrSampleRate is returned when decoded audio does not match the VAD rate.
var ErrSampleRate = errors.New("app: sample rate mismatch")

// StageError attributes an error to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("app: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage err is attributed to, or "" when err carries no
// [*StageError].
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
