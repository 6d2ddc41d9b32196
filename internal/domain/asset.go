package domain

import (
	"fmt"
	"strings"
)

// AssetClass groups instruments that share risk, tier and threshold constants.
type AssetClass string

const (
	AssetMetal      AssetClass = "metal"
	AssetYenCross   AssetClass = "yen_cross"
	AssetOtherForex AssetClass = "forex"
)

// AssetClasses lists every known class in a stable order.
var AssetClasses = []AssetClass{AssetMetal, AssetYenCross, AssetOtherForex}

// ParseAssetClass accepts the config spellings of an asset class.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metal", "metals":
		return AssetMetal, nil
	case "yen_cross", "yen", "jpy":
		return AssetYenCross, nil
	case "forex", "fx", "other_forex":
		return AssetOtherForex, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Valid reports whether c is one of the known classes.
func (c AssetClass) Valid() bool {
	switch c {
	case AssetMetal, AssetYenCross, AssetOtherForex:
		return true
	}
	return false
}

// Instrument is a monitored symbol tagged with its asset class at config time.
// Symbol is the broker name (it may carry a suffix such as "EURUSD.m");
// Name is the canonical six-letter code.
type Instrument struct {
	Name   string     `json:"name"`
	Symbol string     `json:"symbol"`
	Class  AssetClass `json:"class"`
}

// Currencies returns the base and quote codes of the canonical name.
func (i Instrument) Currencies() []string {
	n := strings.ToUpper(i.Name)
	if len(n) < 6 {
		return []string{n}
	}
	return []string{n[:3], n[3:6]}
}
