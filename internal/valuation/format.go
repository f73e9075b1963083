package valuation

import "strconv"

// FormatAmount renders a reference-unit value with precision that shrinks as
// magnitude grows. Apply only to final accumulated volumes.
func FormatAmount(value float64) string {
	if value == 0 {
		return "0 " + ReferenceUnit
	}

	var places int
	switch {
	case value < 0.001:
		places = 6
	case value < 1:
		places = 3
	case value < 1000:
		places = 2
	default:
		places = 0
	}
	return strconv.FormatFloat(value, 'f', places, 64) + " " + ReferenceUnit
}
