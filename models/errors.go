package models

import "errors"

// Failure kinds shared by the pricing, curve and calibration packages.
// Callers match them with errors.Is.
var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNonConvergence      = errors.New("solver did not converge")
	ErrMalformedCurve      = errors.New("malformed curve")
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")
)
