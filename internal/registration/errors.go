package registration

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

// ErrUnexpectedResult means an insert succeeded but returned a different
// number of rows than the phase requires.
var ErrUnexpectedResult = errors.New("unexpected insert result")

// Phase names the step of the pipeline that failed.
type Phase string

const (
	PhaseReport      Phase = "report"
	PhaseSystem      Phase = "system"
	PhaseRun         Phase = "run"
	PhaseStatistics  Phase = "statistics"
	PhaseTransaction Phase = "transaction"
)

// PhaseError reports which phase of a registration failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s registration: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Status returns the terminal queue status for the failure. Malformed
// input wins over the phase it was found in.
func (e *PhaseError) Status() queue.Status {
	if errors.Is(e.Err, core.ErrMalformedInput) {
		return queue.InvalidInput
	}
	switch e.Phase {
	case PhaseSystem:
		return queue.SystemRegistrationFailed
	case PhaseRun:
		return queue.RunRegistrationFailed
	case PhaseStatistics:
		return queue.StatisticsRegistrationFailed
	case PhaseTransaction:
		return queue.DatabaseRegistrationFailed
	}
	return queue.UnknownFailure
}

// FailureStatus maps any pipeline error to a terminal queue status.
func FailureStatus(err error) queue.Status {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Status()
	}
	if errors.Is(err, core.ErrMalformedInput) {
		return queue.InvalidInput
	}
	return queue.UnknownFailure
}

func phaseErr(phase Phase, err error) error {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Err: err}
}
