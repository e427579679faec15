// Package analysis provides reference values and post-processing for
// voltammetric results.
//
// Closed-form references for planar diffusion:
//
//   - [Cottrell]: chronoamperometric current after a potential step
//   - [RandlesSevcik]: reversible linear-sweep peak current
//   - [ReversiblePeakOffset]: distance of a reversible peak from E½
//   - [HalfWavePotential]: E½ of a reversible couple
//
// Recorded traces are summarized with [FindPeaks], [PeakSeparation] and
// [Charge]. Currents follow the engine convention: reduction negative,
// oxidation positive.
//
//	ip := analysis.RandlesSevcik(1, 1, 1e-6, 1e-5, 0.1, 298.15)
//	peaks := analysis.FindPeaks(res.Potentials(), res.TotalCurrent())
package analysis
