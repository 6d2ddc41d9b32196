package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

type policyKey struct {
	mode  Mode
	class domain.AssetClass
}

// ThresholdPolicy is the required-confidence table keyed by (mode, class).
type ThresholdPolicy struct {
	table map[policyKey]float64
}

// NewThresholdPolicy builds the table. Every class must have both a NORMAL
// and a SNIPER entry and SNIPER must never be looser than NORMAL.
func NewThresholdPolicy(normal, sniper map[domain.AssetClass]float64) (ThresholdPolicy, error) {
	p := ThresholdPolicy{table: make(map[policyKey]float64, 2*len(domain.AssetClasses))}
	for _, class := range domain.AssetClasses {
		n, okN := normal[class]
		s, okS := sniper[class]
		if !okN || !okS {
			return ThresholdPolicy{}, fmt.Errorf("risk: missing threshold for %s", class)
		}
		if s < n {
			return ThresholdPolicy{}, fmt.Errorf("risk: sniper threshold %.2f below normal %.2f for %s", s, n, class)
		}
		p.table[policyKey{ModeNormal, class}] = n
		p.table[policyKey{ModeSniper, class}] = s
	}
	return p, nil
}

// Required returns the minimum confidence for an entry. FULL admits nothing.
func (p ThresholdPolicy) Required(mode Mode, class domain.AssetClass) float64 {
	if v, ok := p.table[policyKey{mode, class}]; ok {
		return v
	}
	return math.Inf(1)
}

// Admits reports whether confidence clears the threshold.
func (p ThresholdPolicy) Admits(mode Mode, class domain.AssetClass, confidence float64) bool {
	return confidence >= p.Required(mode, class)
}
