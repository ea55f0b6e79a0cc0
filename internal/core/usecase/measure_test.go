package usecase

import (
	"context"
	"math"
	"testing"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

func newMeasureFixture(scale *domain.Scale) (*MeasurementUseCase, *memStore, *mapRepoFake) {
	store := newMemStore()
	store.putReadyMap("map-1", "proj-1", scale)
	maps := &mapRepoFake{store: store}
	return NewMeasurementUseCase(maps, &measurementRepoFake{store: store}), store, maps
}

func calibrated() *domain.Scale {
	return &domain.Scale{PixelDistance: 100, RealDistance: 5, Unit: domain.UnitMeter, ScaleFactor: 0.05}
}

func TestCreateMeasurementDistance(t *testing.T) {
	uc, store, _ := newMeasureFixture(calibrated())

	m, err := uc.Create(context.Background(), domain.Actor{UserID: "u-1"}, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementDistance,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
		Unit:   "m",
		Height: floatPtr(3),
		Label:  " wall ",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if math.Abs(m.Value-5) > 1e-9 || m.DisplayValue != "5.00 m" || m.Unit != "m" {
		t.Fatalf("unexpected measurement %+v", m)
	}
	if m.CalibrationVersionAtCreation != 1 || m.ProjectID != "proj-1" || m.CreatedBy != "u-1" {
		t.Fatalf("unexpected references %+v", m)
	}
	if m.Height != nil || m.Label != "wall" {
		t.Fatalf("height must be dropped for distance and label trimmed, got %+v", m)
	}
	if _, ok := store.measurements[m.ID]; !ok {
		t.Fatalf("expected measurement to be stored")
	}
}

func TestCreateMeasurementVolume(t *testing.T) {
	uc, _, _ := newMeasureFixture(&domain.Scale{ScaleFactor: 0.1, Unit: domain.UnitMeter})
	m, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementVolume,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 20}, {X: 0, Y: 20}},
		Height: floatPtr(0.8),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.DisplayValue != "3.20 m³" || m.Height == nil || m.Unit != "m" {
		t.Fatalf("unexpected volume %+v", m)
	}
}

func TestCreateMeasurementKeepsRequestedUnit(t *testing.T) {
	uc, _, _ := newMeasureFixture(&domain.Scale{ScaleFactor: 0.3048, Unit: domain.UnitFoot})
	m, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementArea,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		Unit:   "ft",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.Unit != "ft" || m.DisplayValue != "100.00 ft²" {
		t.Fatalf("expected requested unit ft with ft² display, got %q / %q", m.Unit, m.DisplayValue)
	}
}

func TestCreateMeasurementStaleCalibrationVersion(t *testing.T) {
	uc, store, _ := newMeasureFixture(calibrated())
	m := store.maps["map-1"]
	m.CalibrationVersion = 3
	store.maps["map-1"] = m

	_, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:                      "map-1",
		Type:                       domain.MeasurementDistance,
		Points:                     []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}},
		ExpectedCalibrationVersion: intPtr(2),
	})
	conflict, ok := domain.AsConflict(err)
	if !ok || conflict.Reason != domain.ConflictStaleCalibration || conflict.CurrentVersion != 3 {
		t.Fatalf("expected stale calibration conflict with current version 3, got %v", err)
	}
	if len(store.measurements) != 0 {
		t.Fatalf("no measurement may be stored on conflict")
	}
}

func TestCreateMeasurementConcurrentRecalibration(t *testing.T) {
	uc, store, maps := newMeasureFixture(calibrated())
	maps.afterGet = func() {
		m := store.maps["map-1"]
		m.CalibrationVersion++
		store.maps["map-1"] = m
	}

	_, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementDistance,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}},
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.measurements) != 0 {
		t.Fatalf("no measurement may be stored under a superseded scale")
	}
}

func TestCreateMeasurementMapNotReady(t *testing.T) {
	uc, store, _ := newMeasureFixture(calibrated())
	m := store.maps["map-1"]
	m.Status = domain.MapStatusProcessing
	store.maps["map-1"] = m

	_, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementDistance,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}},
	})
	conflict, ok := domain.AsConflict(err)
	if !ok || conflict.Reason != domain.ConflictMapNotReady {
		t.Fatalf("expected map_not_ready conflict, got %v", err)
	}
}

func TestCreateMeasurementRequiresCalibrationExceptAngle(t *testing.T) {
	uc, _, _ := newMeasureFixture(nil)

	_, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementArea,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
	})
	conflict, ok := domain.AsConflict(err)
	if !ok || conflict.Reason != domain.ConflictMapNotCalibrated {
		t.Fatalf("expected map_not_calibrated conflict, got %v", err)
	}

	angle, err := uc.Create(context.Background(), domain.SystemActor, domain.MeasureCommand{
		MapID:  "map-1",
		Type:   domain.MeasurementAngle,
		Points: []domain.Point{{X: 10, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 10}},
	})
	if err != nil {
		t.Fatalf("angle on uncalibrated map: %v", err)
	}
	if angle.DisplayValue != "90.00°" {
		t.Fatalf("unexpected angle %q", angle.DisplayValue)
	}
}

func TestCreateMeasurementValidation(t *testing.T) {
	uc, _, _ := newMeasureFixture(calibrated())
	cases := []domain.MeasureCommand{
		{MapID: "map-1", Type: "radius", Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}},
		{MapID: "map-1", Type: domain.MeasurementDistance, Points: []domain.Point{{X: 0, Y: 0}}},
		{MapID: "map-1", Type: domain.MeasurementPerimeter, Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}},
		{Type: domain.MeasurementDistance, Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}},
	}
	for _, cmd := range cases {
		if _, err := uc.Create(context.Background(), domain.SystemActor, cmd); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", cmd, err)
		}
	}
}

func TestDeleteMeasurementOwnership(t *testing.T) {
	uc, store, _ := newMeasureFixture(calibrated())
	store.measurements["m-1"] = domain.Measurement{ID: "m-1", MapID: "map-1", CreatedBy: "alice"}

	err := uc.Delete(context.Background(), domain.Actor{UserID: "bob"}, "m-1")
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := uc.Delete(context.Background(), domain.Actor{UserID: "alice"}, "m-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := uc.GetByID(context.Background(), "m-1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected measurement to be gone, got %v", err)
	}
}

func TestListMeasurementsUnknownMap(t *testing.T) {
	uc, _, _ := newMeasureFixture(calibrated())
	if _, err := uc.ListByMap(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
