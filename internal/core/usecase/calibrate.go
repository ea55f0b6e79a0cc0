package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

type CalibrateMapUseCase struct {
	repo ports.MapRepository
}

func NewCalibrateMapUseCase(repo ports.MapRepository) *CalibrateMapUseCase {
	return &CalibrateMapUseCase{repo: repo}
}

// Calibrate sets a new scale on a ready map and bumps its calibration
// version. Existing measurements block the change unless Force is set, in
// which case they are deleted in the same transaction.
func (uc *CalibrateMapUseCase) Calibrate(ctx context.Context, cmd domain.CalibrateCommand) (*domain.CalibrationResult, error) {
	const op = "calibrate map"
	if strings.TrimSpace(cmd.MapID) == "" {
		return nil, domain.Validationf(op, "map id is required")
	}
	scale, err := domain.NewScale(cmd.PixelDistance, cmd.RealDistance, cmd.Unit)
	if err != nil {
		return nil, err
	}

	force := cmd.Force
	decide := func(current *domain.Map, existing int) (bool, error) {
		if err := current.RequireReady(op); err != nil {
			return false, err
		}
		if existing == 0 {
			return false, nil
		}
		if !force {
			return false, &domain.ConflictError{
				Reason:               domain.ConflictMeasurementsExist,
				Message:              fmt.Sprintf("map %s has %d measurements; recalibrate with force to delete them", current.ID, existing),
				ExistingMeasurements: existing,
				CurrentVersion:       current.CalibrationVersion,
			}
		}
		return true, nil
	}

	result, err := uc.repo.Recalibrate(ctx, cmd.MapID, scale, decide)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
