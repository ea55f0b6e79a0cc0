package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

type DeleteMapUseCase struct {
	repo    ports.MapRepository
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewDeleteMapUseCase(repo ports.MapRepository, storage ports.ObjectStorage, logger *slog.Logger) *DeleteMapUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteMapUseCase{repo: repo, storage: storage, logger: logger}
}

// Delete removes a map together with its measurements and detaches it from
// cost estimates. The stored asset is removed after the database change
// commits; a failure there is logged and does not fail the call.
func (uc *DeleteMapUseCase) Delete(ctx context.Context, actor domain.Actor, id string) (domain.MapDeletion, error) {
	const op = "delete map"
	if strings.TrimSpace(id) == "" {
		return domain.MapDeletion{}, domain.Validationf(op, "map id is required")
	}
	m, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return domain.MapDeletion{}, err
	}
	if !actor.CanModify(m.UploadedBy) {
		return domain.MapDeletion{}, domain.WrapError(domain.ErrForbidden, op, fmt.Errorf("user %q may not delete map %s", actor.UserID, id))
	}

	deletion, err := uc.repo.DeleteCascade(ctx, id)
	if err != nil {
		return domain.MapDeletion{}, fmt.Errorf("%s: %w", op, err)
	}

	if m.File.StoragePath != "" {
		if err := uc.storage.Delete(ctx, m.File.StoragePath); err != nil {
			uc.logger.Warn("map_blob_delete_failed",
				"map_id", id,
				"storage_path", m.File.StoragePath,
				"error", err.Error(),
			)
		}
	}
	return deletion, nil
}
