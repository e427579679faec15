package echem

const (
	// Faraday is the Faraday constant in C/mol.
	Faraday = 96485.33212
	// GasConstant is the molar gas constant in J/(mol K).
	GasConstant = 8.314462618
	// DefaultTemperature is 25 °C in K.
	DefaultTemperature = 298.15
)

// FRT returns F/(RT) in 1/V. Non-positive temperatures fall back to
// DefaultTemperature.
func FRT(temperature float64) float64 {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return Faraday / (GasConstant * temperature)
}
