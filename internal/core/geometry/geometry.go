// Package geometry turns pixel-space point lists into real-world
// measurement values. Everything here is pure: no I/O, no clock.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const op = "measure"

// Input describes one measurement request against a calibrated map.
type Input struct {
	Type   domain.MeasurementType
	Points []domain.Point
	// ScaleFactor is meters per pixel. Ignored for angles.
	ScaleFactor float64
	// Height in meters, volume only.
	Height      *float64
	DisplayUnit string
}

type Result struct {
	Value        float64
	Unit         string
	DisplayValue string
}

// Measure computes the canonical value and its display form.
func Measure(in Input) (Result, error) {
	if !in.Type.Valid() {
		return Result{}, domain.Validationf(op, "unknown measurement type %q", in.Type)
	}
	display, err := parseDisplayUnit(in.Type, in.DisplayUnit)
	if err != nil {
		return Result{}, err
	}
	if err := validatePoints(in.Points); err != nil {
		return Result{}, err
	}
	if in.Type.NeedsScale() && !domain.IsFinitePositive(in.ScaleFactor) {
		return Result{}, domain.Validationf(op, "scale factor must be a positive finite number, got %v", in.ScaleFactor)
	}

	var value float64
	switch in.Type {
	case domain.MeasurementDistance:
		value, err = Distance(in.Points, in.ScaleFactor)
	case domain.MeasurementPerimeter:
		value, err = Perimeter(in.Points, in.ScaleFactor)
	case domain.MeasurementArea:
		value, err = Area(in.Points, in.ScaleFactor)
	case domain.MeasurementVolume:
		if in.Height == nil {
			return Result{}, domain.Validationf(op, "volume requires a height")
		}
		value, err = Volume(in.Points, in.ScaleFactor, *in.Height)
	case domain.MeasurementAngle:
		value, err = Angle(in.Points)
	}
	if err != nil {
		return Result{}, err
	}
	if !domain.IsFinite(value) || !domain.IsFinite(display.convert(value)) {
		return Result{}, domain.Validationf(op, "%s is out of range for the given points and scale", in.Type)
	}

	return Result{
		Value:        value,
		Unit:         display.suffix(),
		DisplayValue: display.format(value),
	}, nil
}

// Distance sums the consecutive segment lengths, in meters.
func Distance(points []domain.Point, scaleFactor float64) (float64, error) {
	if len(points) < 2 {
		return 0, domain.Validationf(op, "distance requires at least 2 points, got %d", len(points))
	}
	line := toLineString(points)
	if err := requireNonDegenerate(line); err != nil {
		return 0, err
	}
	return planar.Length(line) * scaleFactor, nil
}

// Perimeter is Distance plus the closing segment back to the first point.
// A ring that already repeats its first point is not closed twice.
func Perimeter(points []domain.Point, scaleFactor float64) (float64, error) {
	if n := len(points); n > 3 && points[0].X == points[n-1].X && points[0].Y == points[n-1].Y {
		points = points[:n-1]
	}
	if len(points) < 3 {
		return 0, domain.Validationf(op, "perimeter requires at least 3 points, got %d", len(points))
	}
	line := toLineString(points)
	line = append(line, line[0])
	if err := requireNonDegenerate(line); err != nil {
		return 0, err
	}
	return planar.Length(line) * scaleFactor, nil
}

// Area uses the shoelace formula over the polygon vertices, in square
// meters. Self-intersecting input is not rejected.
func Area(points []domain.Point, scaleFactor float64) (float64, error) {
	if len(points) < 3 {
		return 0, domain.Validationf(op, "area requires at least 3 points, got %d", len(points))
	}
	ring := orb.Ring(toLineString(points))
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return math.Abs(planar.Area(ring)) * scaleFactor * scaleFactor, nil
}

// Volume is the polygon area times an explicit height in meters.
func Volume(points []domain.Point, scaleFactor, height float64) (float64, error) {
	if !domain.IsFinitePositive(height) {
		return 0, domain.Validationf(op, "height must be a positive finite number, got %v", height)
	}
	area, err := Area(points, scaleFactor)
	if err != nil {
		return 0, err
	}
	return area * height, nil
}

// Angle returns the angle in degrees at the middle of exactly three points.
func Angle(points []domain.Point) (float64, error) {
	if len(points) != 3 {
		return 0, domain.Validationf(op, "angle requires exactly 3 points, got %d", len(points))
	}
	vertex := r2.Vec{X: points[1].X, Y: points[1].Y}
	a := r2.Sub(r2.Vec{X: points[0].X, Y: points[0].Y}, vertex)
	b := r2.Sub(r2.Vec{X: points[2].X, Y: points[2].Y}, vertex)

	na, nb := r2.Norm(a), r2.Norm(b)
	if na == 0 || nb == 0 {
		return 0, domain.Validationf(op, "angle arms must have non-zero length")
	}
	cos := r2.Dot(a, b) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, nil
}

func validatePoints(points []domain.Point) error {
	if len(points) < 2 {
		return domain.Validationf(op, "at least 2 points are required, got %d", len(points))
	}
	for i, p := range points {
		if !domain.IsFinite(p.X) || !domain.IsFinite(p.Y) {
			return domain.Validationf(op, "point %d has non-finite coordinates", i)
		}
		if p.Z != nil && !domain.IsFinite(*p.Z) {
			return domain.Validationf(op, "point %d has a non-finite z coordinate", i)
		}
	}
	return nil
}

func requireNonDegenerate(line orb.LineString) error {
	for i := 1; i < len(line); i++ {
		if planar.Distance(line[i-1], line[i]) == 0 {
			return domain.Validationf(op, "segment %d has zero length", i-1)
		}
	}
	return nil
}

func toLineString(points []domain.Point) orb.LineString {
	line := make(orb.LineString, len(points))
	for i, p := range points {
		line[i] = orb.Point{p.X, p.Y}
	}
	return line
}

var powerSuffixes = []struct {
	suffix string
	power  int
}{
	{"²", 2}, {"^2", 2}, {"2", 2},
	{"³", 3}, {"^3", 3}, {"3", 3},
}

type displayUnit struct {
	length domain.LengthUnit
	power  int
}

func parseDisplayUnit(t domain.MeasurementType, raw string) (displayUnit, error) {
	raw = strings.TrimSpace(raw)
	if t == domain.MeasurementAngle {
		switch strings.ToLower(raw) {
		case "", "deg", "degree", "degrees", "°":
			return displayUnit{}, nil
		}
		return displayUnit{}, domain.Validationf(op, "angle unit must be degrees, got %q", raw)
	}

	power := powerOf(t)
	base := raw
	for _, s := range powerSuffixes {
		if strings.HasSuffix(base, s.suffix) {
			if s.power != power {
				return displayUnit{}, domain.Validationf(op, "unit %q does not fit a %s measurement", raw, t)
			}
			base = strings.TrimSuffix(base, s.suffix)
			break
		}
	}
	if base == "" {
		return displayUnit{length: domain.UnitMeter, power: power}, nil
	}
	unit, err := domain.ParseLengthUnit(base)
	if err != nil {
		return displayUnit{}, domain.WrapError(domain.ErrValidation, op, err)
	}
	return displayUnit{length: unit, power: power}, nil
}

func powerOf(t domain.MeasurementType) int {
	switch t {
	case domain.MeasurementArea:
		return 2
	case domain.MeasurementVolume:
		return 3
	default:
		return 1
	}
}

func (d displayUnit) suffix() string {
	switch d.power {
	case 0:
		return "°"
	case 2:
		return string(d.length) + "²"
	case 3:
		return string(d.length) + "³"
	default:
		return string(d.length)
	}
}

func (d displayUnit) convert(canonical float64) float64 {
	if d.power == 0 {
		return canonical
	}
	return canonical / math.Pow(d.length.MetersPer(), float64(d.power))
}

func (d displayUnit) format(canonical float64) string {
	if d.power == 0 {
		return fmt.Sprintf("%.2f°", canonical)
	}
	return fmt.Sprintf("%.2f %s", d.convert(canonical), d.suffix())
}

// ConvertCanonical converts a canonical value of a measurement type into the
// requested unit, e.g. m² into ft² for areas. Angles pass through.
func ConvertCanonical(t domain.MeasurementType, canonical float64, unit string) (float64, error) {
	d, err := parseDisplayUnit(t, unit)
	if err != nil {
		return 0, err
	}
	return d.convert(canonical), nil
}
