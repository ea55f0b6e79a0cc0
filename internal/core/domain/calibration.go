package domain

import "time"

// CalibrateCommand is a calibration request as received from a caller.
// Unit is parsed by the calibration engine.
type CalibrateCommand struct {
	MapID         string  `json:"-"`
	PixelDistance float64 `json:"pixelDistance"`
	RealDistance  float64 `json:"realDistance"`
	Unit          string  `json:"unit"`
	Force         bool    `json:"force,omitempty"`
}

// CalibrationResult is what a successful (re)calibration produced.
type CalibrationResult struct {
	MapID               string    `json:"mapId"`
	Scale               Scale     `json:"scale"`
	ScaleFactor         float64   `json:"scaleFactor"`
	CalibrationVersion  int       `json:"calibrationVersion"`
	DeletedMeasurements *int      `json:"deletedMeasurements,omitempty"`
	CalibratedAt        time.Time `json:"calibratedAt"`
}

// CalibrationDecision is made while the map row is locked: it either
// rejects the change or says whether dependent measurements must go.
type CalibrationDecision func(current *Map, existingMeasurements int) (deleteExisting bool, err error)

// NewScale validates a calibration pair and derives meters per pixel.
func NewScale(pixelDistance, realDistance float64, rawUnit string) (Scale, error) {
	const op = "calibrate map"
	if !IsFinitePositive(pixelDistance) {
		return Scale{}, Validationf(op, "pixelDistance must be a positive finite number, got %v", pixelDistance)
	}
	if !IsFinitePositive(realDistance) {
		return Scale{}, Validationf(op, "realDistance must be a positive finite number, got %v", realDistance)
	}
	unit, err := ParseLengthUnit(rawUnit)
	if err != nil {
		return Scale{}, WrapError(ErrValidation, op, err)
	}
	factor := unit.ToMeters(realDistance) / pixelDistance
	if !IsFinitePositive(factor) {
		return Scale{}, Validationf(op, "scale factor %v is out of range for %v %s over %v px", factor, realDistance, unit, pixelDistance)
	}
	return Scale{
		PixelDistance: pixelDistance,
		RealDistance:  realDistance,
		Unit:          unit,
		ScaleFactor:   factor,
	}, nil
}
