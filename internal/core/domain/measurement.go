package domain

import "time"

type MeasurementType string

const (
	MeasurementDistance  MeasurementType = "distance"
	MeasurementPerimeter MeasurementType = "perimeter"
	MeasurementArea      MeasurementType = "area"
	MeasurementVolume    MeasurementType = "volume"
	MeasurementAngle     MeasurementType = "angle"
)

func (t MeasurementType) Valid() bool {
	switch t {
	case MeasurementDistance, MeasurementPerimeter, MeasurementArea, MeasurementVolume, MeasurementAngle:
		return true
	default:
		return false
	}
}

// NeedsScale is false only for angles, which are scale-invariant.
func (t MeasurementType) NeedsScale() bool {
	return t != MeasurementAngle
}

// Point is a pixel-space coordinate relative to the map asset.
type Point struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z,omitempty"`
}

type Measurement struct {
	ID        string          `json:"id"`
	MapID     string          `json:"mapId"`
	ProjectID string          `json:"projectId"`
	Type      MeasurementType `json:"type"`
	Points    []Point         `json:"points"`
	Height    *float64        `json:"height,omitempty"`
	Value     float64         `json:"value"`
	// Unit is the display unit requested at creation; DisplayValue carries
	// the formatted suffix.
	Unit                         string    `json:"unit"`
	DisplayValue                 string    `json:"displayValue"`
	CalibrationVersionAtCreation int       `json:"calibrationVersionAtCreation"`
	Label                        string    `json:"label,omitempty"`
	CreatedBy                    string    `json:"createdBy,omitempty"`
	CreatedAt                    time.Time `json:"createdAt"`
}

// IsStale reports whether m was computed under a superseded scale.
func (m *Measurement) IsStale(currentCalibrationVersion int) bool {
	return m.CalibrationVersionAtCreation != currentCalibrationVersion
}

// MeasureCommand is a measurement request against a map. A non-nil
// ExpectedCalibrationVersion must match the map's current version.
type MeasureCommand struct {
	MapID                      string          `json:"-"`
	Type                       MeasurementType `json:"type"`
	Points                     []Point         `json:"points"`
	Unit                       string          `json:"unit"`
	Height                     *float64        `json:"height,omitempty"`
	ExpectedCalibrationVersion *int            `json:"calibrationVersion,omitempty"`
	Label                      string          `json:"label,omitempty"`
}
