// Package units provides shared constants and conversions for speed units.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Parse normalizes a unit name ("KPH", " mph ") and rejects unknown units.
// KMPH is folded into KPH.
func Parse(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if !IsValid(u) {
		return "", fmt.Errorf("unknown speed unit %q: expected one of %s", unit, strings.Join(ValidUnits, ", "))
	}
	if u == KMPH {
		u = KPH
	}
	return u, nil
}

// ConvertSpeed converts a speed from metres per second to the target units.
// Unknown units return the speed unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in the given units back to metres per second.
func ToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPH:
		return speed / 2.2369362920544
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}
