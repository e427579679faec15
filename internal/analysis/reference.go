package analysis

import (
	"math"

	"github.com/san-kum/voltsim/internal/echem"
)

// randlesSevcikCoefficient is the peak of the reversible dimensionless
// current function, 0.4463.
const randlesSevcikCoefficient = 0.4463

// Cottrell returns the magnitude of the diffusion-limited current (A) t
// seconds after a step, for n electrons, area (cm²), bulk concentration c
// (mol/cm³) and diffusion coefficient d (cm²/s).
func Cottrell(n int, area, c, d, t float64) float64 {
	if t <= 0 {
		return math.Inf(1)
	}
	return float64(n) * echem.Faraday * area * c * math.Sqrt(d/(math.Pi*t))
}

// RandlesSevcik returns the magnitude of the reversible peak current (A) at
// scan rate v (V/s).
func RandlesSevcik(n int, area, c, d, v, temperature float64) float64 {
	nf := float64(n) * echem.FRT(temperature)
	return randlesSevcikCoefficient * float64(n) * echem.Faraday * area * c * math.Sqrt(nf*math.Abs(v)*d)
}

// ReversiblePeakOffset is |Ep − E½| for a reversible wave, 1.109·RT/(nF).
func ReversiblePeakOffset(n int, temperature float64) float64 {
	return 1.109 / (float64(n) * echem.FRT(temperature))
}

// HalfWavePotential returns E½ = E0 + (RT/nF)·ln(sqrt(dR/dO)).
func HalfWavePotential(e0 float64, n int, dO, dR, temperature float64) float64 {
	if dO <= 0 || dR <= 0 {
		return e0
	}
	return e0 + 0.5*math.Log(dR/dO)/(float64(n)*echem.FRT(temperature))
}
