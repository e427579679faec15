// Package echem holds the primitives shared by every layer of the planar
// diffusion–reaction engine: physical constants and the error taxonomy.
//
// Errors fall into three groups:
//
//   - construction: [ErrInvalidGrid], [ErrInvalidMechanism],
//     [ErrAmbiguousMechanism], [ErrMechanismLocked]
//   - numerical: [ErrSingularSystem], [ErrSurfaceSolverDiverged],
//     [ErrReactionNotConverged]
//   - input: [ErrInvalidWaveform], [ErrNonMonotonicTime]
//
// Construction and input errors are returned before any simulation work
// starts. Numerical errors are recorded per sample, except a singular banded
// system which aborts the run with [ErrSimulationAborted].
//
// # Units
//
// Lengths are in cm, times in s, concentrations in mol/cm³, diffusion
// coefficients in cm²/s, rate constants in cm/s (electrode) or the matching
// mass-action units (homogeneous), potentials in V and currents in A.
package echem
