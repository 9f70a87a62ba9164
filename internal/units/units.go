// Package units provides shared constants and conversions for beam energy
// units and relativistic kinematics.
package units

// Energy unit constants
const (
	MeV = "MeV"
	GeV = "GeV"
	TeV = "TeV"
)

// ValidUnits contains all valid energy unit values
var ValidUnits = []string{MeV, GeV, TeV}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "MeV, GeV, TeV"
}

// ToGeV converts an energy in the given units to GeV.
// Energies are carried internally in GeV.
func ToGeV(energy float64, unit string) float64 {
	switch unit {
	case MeV:
		return energy / 1000
	case TeV:
		return energy * 1000
	case GeV:
		return energy
	default:
		return energy // default to GeV if unknown unit
	}
}
