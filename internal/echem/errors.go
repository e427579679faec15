package echem

import (
	"errors"
	"fmt"
)

// Domain errors for the simulation engine.
var (
	// ErrInvalidGrid indicates a grid with fewer than 3 nodes or a
	// non-positive length.
	ErrInvalidGrid = errors.New("echem: invalid grid")

	// ErrSingularSystem indicates a zero pivot in a tridiagonal solve.
	// It points at a malformed operator and is fatal to a run.
	ErrSingularSystem = errors.New("echem: singular banded system")

	// ErrSurfaceSolverDiverged indicates the electrode surface solve did not
	// reach its tolerance within the iteration cap.
	ErrSurfaceSolverDiverged = errors.New("echem: surface solver diverged")

	// ErrReactionNotConverged indicates an implicit reaction sub-step did not
	// converge at some node.
	ErrReactionNotConverged = errors.New("echem: reaction sub-step did not converge")

	// ErrInvalidMechanism indicates a mechanism that failed compilation.
	ErrInvalidMechanism = errors.New("echem: invalid mechanism")

	// ErrAmbiguousMechanism indicates a mechanism tag without an explicit
	// species mapping.
	ErrAmbiguousMechanism = errors.New("echem: ambiguous mechanism")

	// ErrMechanismLocked indicates mutation of a mechanism already in use.
	ErrMechanismLocked = errors.New("echem: mechanism locked")

	// ErrInvalidWaveform indicates an empty or non-finite waveform.
	ErrInvalidWaveform = errors.New("echem: invalid waveform")

	// ErrNonMonotonicTime indicates a waveform whose time is not strictly
	// increasing.
	ErrNonMonotonicTime = errors.New("echem: non-monotonic time")

	// ErrSimulationAborted indicates a run stopped by a fatal numerical error.
	ErrSimulationAborted = errors.New("echem: simulation aborted")
)

// SingularSystemError reports the row of a tridiagonal system whose pivot
// vanished.
type SingularSystemError struct {
	Row   int
	Pivot float64
}

func (e *SingularSystemError) Error() string {
	return fmt.Sprintf("%v: zero pivot %g at row %d", ErrSingularSystem, e.Pivot, e.Row)
}

func (e *SingularSystemError) Unwrap() error { return ErrSingularSystem }

// SurfaceSolverDivergedError carries the state of a failed surface solve.
type SurfaceSolverDivergedError struct {
	Iterations int
	Residual   float64
	Reason     string
}

func (e *SurfaceSolverDivergedError) Error() string {
	return fmt.Sprintf("%v after %d iterations (residual %.3e): %s",
		ErrSurfaceSolverDiverged, e.Iterations, e.Residual, e.Reason)
}

func (e *SurfaceSolverDivergedError) Unwrap() error { return ErrSurfaceSolverDiverged }

// NonMonotonicTimeError reports the first sample whose time does not advance.
// It matches both ErrNonMonotonicTime and ErrInvalidWaveform.
type NonMonotonicTimeError struct {
	Index int
	Prev  float64
	T     float64
}

func (e *NonMonotonicTimeError) Error() string {
	return fmt.Sprintf("%v: sample %d has t=%g after t=%g", ErrNonMonotonicTime, e.Index, e.T, e.Prev)
}

func (e *NonMonotonicTimeError) Is(target error) bool {
	return target == ErrNonMonotonicTime || target == ErrInvalidWaveform
}
