package currency

import (
	"errors"
	"math"
)

// MinorUnits converts an amount in the major currency unit to the gateway's
// minor unit (1 AED = 100 fils). The conversion happens exactly once per
// amount, with integer rounding, so repeated session creation never drifts.
func MinorUnits(amount float64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("amount must be positive")
	}
	minor := math.Round(amount * 100)
	if minor > math.MaxInt64 || math.IsNaN(minor) || math.IsInf(minor, 0) {
		return 0, errors.New("amount out of range")
	}
	return int64(minor), nil
}
