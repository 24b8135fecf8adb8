package analysis

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrReportNotFound  = errors.New("report not found")
	ErrNoEvidence      = errors.New("report has no evidence points")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Stage names a step of the analysis pipeline.
type Stage string

const (
	StageValidate       Stage = "validate"
	StageLookup         Stage = "lookup_report"
	StageCreate         Stage = "create_analysis"
	StageLock           Stage = "lock_report"
	StageBuffer         Stage = "build_buffer"
	StageStoreBuffer    Stage = "store_buffer"
	StageEvaluate       Stage = "evaluate_intersections"
	StagePersistResults Stage = "persist_results"
	StageCommit         Stage = "commit"
)

// StageError records the pipeline stage an error surfaced in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// isCallerError reports whether err is caused by the request rather than by
// the system.
func isCallerError(err error) bool {
	return errors.Is(err, ErrReportNotFound) ||
		errors.Is(err, ErrNoEvidence) ||
		errors.Is(err, ErrInvalidArgument)
}
