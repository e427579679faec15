package sim

import (
	"fmt"

	"github.com/san-kum/voltsim/internal/echem"
)

// SimulationAbortedError stops a run at the first fatal sample. Partial holds
// the finalized records before that sample. It matches
// echem.ErrSimulationAborted as well as the underlying cause.
type SimulationAbortedError struct {
	Sample  int
	Time    float64
	Partial *Result
	Err     error
}

func (e *SimulationAbortedError) Error() string {
	return fmt.Sprintf("%v at sample %d (t=%g): %v", echem.ErrSimulationAborted, e.Sample, e.Time, e.Err)
}

func (e *SimulationAbortedError) Unwrap() []error {
	return []error{echem.ErrSimulationAborted, e.Err}
}
