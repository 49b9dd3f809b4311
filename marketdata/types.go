package marketdata

import "github.com/bcdannyboy/rangeaccrual/curve"

// curveDocument is the JSON shape served by curve endpoints. A bare array of
// quotes is accepted as well.
type curveDocument struct {
	AsOf   string       `json:"as_of,omitempty"`
	Unit   string       `json:"unit,omitempty"` // "percent" or "decimal"
	Quotes []curveQuote `json:"quotes"`
}

type curveQuote struct {
	Maturity *float64 `json:"maturity,omitempty"`
	Tenor    string   `json:"tenor,omitempty"`
	Label    string   `json:"label,omitempty"`
	Rate     float64  `json:"rate"`
}

// Quotes is a loaded market curve in the order the bootstrapper expects.
type Quotes []curve.MarketPoint
