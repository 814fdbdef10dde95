package nmea

import (
	"strconv"
	"strings"
)

// ToDecimal converts an NMEA coordinate in DDMM.MMMM (latitude) or
// DDDMM.MMMM (longitude) form plus a hemisphere letter into signed decimal
// degrees. The two digits before the decimal point together with the
// fractional part are the minutes; everything before them is whole degrees.
// Southern and western hemispheres negate the result.
//
// The second return value is false when no position can be derived: empty
// input, an all-zero coordinate, or a string without a decimal point.
// Callers treat that as "no position for this field", never as an error.
func ToDecimal(coord, hemisphere string) (float64, bool) {
	coord = strings.TrimSpace(coord)
	if coord == "" {
		return 0, false
	}
	if raw, err := strconv.ParseFloat(coord, 64); err != nil || raw == 0 {
		return 0, false
	}

	dot := strings.IndexByte(coord, '.')
	if dot < 2 {
		return 0, false
	}

	degrees, err := strconv.ParseFloat(coord[:dot-2], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(coord[dot-2:], 64)
	if err != nil {
		return 0, false
	}

	decimal := degrees + minutes/60

	switch strings.ToUpper(strings.TrimSpace(hemisphere)) {
	case "S", "W":
		decimal = -decimal
	}
	return decimal, true
}
