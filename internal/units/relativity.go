package units

import "math"

// Particle rest masses in GeV.
const (
	ProtonMassGeV   = 0.938272046
	ElectronMassGeV = 0.000510998928
)

// Gamma returns the Lorentz factor of a particle with total energy
// energyGeV and rest mass massGeV.
func Gamma(energyGeV, massGeV float64) float64 {
	return energyGeV / massGeV
}

// Beta returns v/c for Lorentz factor gamma. Gamma below 1 is unphysical
// and gives 0.
func Beta(gamma float64) float64 {
	if gamma <= 1 {
		return 0
	}
	return math.Sqrt(1 - 1/(gamma*gamma))
}

// GeometricEmittance converts a normalised emittance to the geometric
// emittance at the given Lorentz factor.
func GeometricEmittance(normalized, gamma float64) float64 {
	bg := Beta(gamma) * gamma
	if bg == 0 {
		return math.NaN()
	}
	return normalized / bg
}
