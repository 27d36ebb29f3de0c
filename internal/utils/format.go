// Package utils holds small formatting and validation helpers shared across
// the simulator's HTTP handlers and CLI, grounded on the teacher's
// internal/utils package convention of one small file per concern.
package utils

import "strconv"

// FormatAmount renders a whole-unit Daraja amount as the decimal string the
// wire format expects (e.g. "10.00").
func FormatAmount(wholeUnits int64) string {
	return strconv.FormatInt(wholeUnits, 10) + ".00"
}
