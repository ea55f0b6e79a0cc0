package domain

import (
	"fmt"
	"math"
)

type LengthUnit string

const (
	UnitMeter      LengthUnit = "m"
	UnitCentimeter LengthUnit = "cm"
	UnitMillimeter LengthUnit = "mm"
	UnitFoot       LengthUnit = "ft"
	UnitInch       LengthUnit = "in"
)

// metersPer is the fixed conversion table to canonical meters.
var metersPer = map[LengthUnit]float64{
	UnitMeter:      1,
	UnitCentimeter: 0.01,
	UnitMillimeter: 0.001,
	UnitFoot:       0.3048,
	UnitInch:       0.0254,
}

// LengthUnits lists the accepted length units in table order.
func LengthUnits() []LengthUnit {
	return []LengthUnit{UnitMeter, UnitCentimeter, UnitMillimeter, UnitFoot, UnitInch}
}

// ParseLengthUnit accepts exactly one of m, cm, mm, ft, in.
func ParseLengthUnit(raw string) (LengthUnit, error) {
	unit := LengthUnit(raw)
	if _, ok := metersPer[unit]; !ok {
		return "", fmt.Errorf("unsupported unit %q", raw)
	}
	return unit, nil
}

// MetersPer returns how many meters one unit represents.
func (u LengthUnit) MetersPer() float64 {
	return metersPer[u]
}

func (u LengthUnit) ToMeters(v float64) float64 {
	return v * metersPer[u]
}

// FromMeters converts a canonical length into u.
func (u LengthUnit) FromMeters(v float64) float64 {
	return v / metersPer[u]
}

// IsFinitePositive reports whether v is a usable positive measure.
func IsFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func IsFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
