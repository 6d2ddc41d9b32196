package guard

import "github.com/alanyoungcy/fxbot/internal/domain"

// SpreadOK reports whether the live spread in points is within ceiling.
// A ceiling of 0 disables the check.
func SpreadOK(props domain.SymbolProperties, ceilingPoints float64) (float64, bool) {
	spread := props.SpreadPoints()
	if ceilingPoints <= 0 {
		return spread, true
	}
	return spread, spread <= ceilingPoints
}
