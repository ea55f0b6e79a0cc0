package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/geometry"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

type MeasurementUseCase struct {
	maps ports.MapRepository
	repo ports.MeasurementRepository
	now  func() time.Time
}

func NewMeasurementUseCase(maps ports.MapRepository, repo ports.MeasurementRepository) *MeasurementUseCase {
	return &MeasurementUseCase{
		maps: maps,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create computes the measurement once against the map's current scale and
// stores it with the calibration version it was computed under. The insert
// is rejected if the map was recalibrated in between.
func (uc *MeasurementUseCase) Create(ctx context.Context, actor domain.Actor, cmd domain.MeasureCommand) (*domain.Measurement, error) {
	const op = "create measurement"
	if strings.TrimSpace(cmd.MapID) == "" {
		return nil, domain.Validationf(op, "map id is required")
	}
	if !cmd.Type.Valid() {
		return nil, domain.Validationf(op, "unknown measurement type %q", cmd.Type)
	}

	m, err := uc.maps.GetByID(ctx, cmd.MapID)
	if err != nil {
		return nil, err
	}
	if err := m.RequireReady(op); err != nil {
		return nil, err
	}
	if cmd.ExpectedCalibrationVersion != nil && *cmd.ExpectedCalibrationVersion != m.CalibrationVersion {
		return nil, &domain.ConflictError{
			Reason: domain.ConflictStaleCalibration,
			Message: fmt.Sprintf("map %s is at calibration version %d, request was computed for %d",
				m.ID, m.CalibrationVersion, *cmd.ExpectedCalibrationVersion),
			CurrentVersion: m.CalibrationVersion,
		}
	}
	if cmd.Type.NeedsScale() && !m.IsCalibrated() {
		return nil, &domain.ConflictError{
			Reason:         domain.ConflictMapNotCalibrated,
			Message:        fmt.Sprintf("map %s must be calibrated before %s measurements", m.ID, cmd.Type),
			CurrentVersion: m.CalibrationVersion,
		}
	}

	var scaleFactor float64
	if m.Scale != nil {
		scaleFactor = m.Scale.ScaleFactor
	}
	height := cmd.Height
	if cmd.Type != domain.MeasurementVolume {
		height = nil
	}
	res, err := geometry.Measure(geometry.Input{
		Type:        cmd.Type,
		Points:      cmd.Points,
		ScaleFactor: scaleFactor,
		Height:      height,
		DisplayUnit: cmd.Unit,
	})
	if err != nil {
		return nil, err
	}

	measurement := &domain.Measurement{
		ID:                           uuid.NewString(),
		MapID:                        m.ID,
		ProjectID:                    m.ProjectID,
		Type:                         cmd.Type,
		Points:                       append([]domain.Point(nil), cmd.Points...),
		Height:                       height,
		Value:                        res.Value,
		Unit:                         requestedUnit(cmd.Type, cmd.Unit),
		DisplayValue:                 res.DisplayValue,
		CalibrationVersionAtCreation: m.CalibrationVersion,
		Label:                        strings.TrimSpace(cmd.Label),
		CreatedBy:                    actor.UserID,
		CreatedAt:                    uc.now(),
	}
	if err := uc.repo.CreateIfCurrent(ctx, measurement); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return measurement, nil
}

// requestedUnit is the display unit as the caller asked for it, with the
// defaults geometry applies when none was given.
func requestedUnit(t domain.MeasurementType, raw string) string {
	if unit := strings.TrimSpace(raw); unit != "" {
		return unit
	}
	if t == domain.MeasurementAngle {
		return "°"
	}
	return string(domain.UnitMeter)
}

func (uc *MeasurementUseCase) GetByID(ctx context.Context, id string) (*domain.Measurement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("get measurement", "measurement id is required")
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *MeasurementUseCase) ListByMap(ctx context.Context, mapID string) ([]domain.Measurement, error) {
	if strings.TrimSpace(mapID) == "" {
		return nil, domain.Validationf("list measurements", "map id is required")
	}
	if _, err := uc.maps.GetByID(ctx, mapID); err != nil {
		return nil, err
	}
	return uc.repo.ListByMap(ctx, mapID)
}

func (uc *MeasurementUseCase) Delete(ctx context.Context, actor domain.Actor, id string) error {
	const op = "delete measurement"
	measurement, err := uc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(measurement.CreatedBy) {
		return domain.WrapError(domain.ErrForbidden, op, fmt.Errorf("user %q may not delete measurement %s", actor.UserID, id))
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
