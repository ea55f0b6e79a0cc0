package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

type ProcessMapUseCase struct {
	repo      ports.MapRepository
	storage   ports.ObjectStorage
	extractor ports.MetadataExtractor
}

func NewProcessMapUseCase(
	repo ports.MapRepository,
	storage ports.ObjectStorage,
	extractor ports.MetadataExtractor,
) *ProcessMapUseCase {
	return &ProcessMapUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
	}
}

// ProcessByID drives a map from uploading to ready or error. Redelivered
// events for maps that already reached a terminal state are skipped.
func (uc *ProcessMapUseCase) ProcessByID(ctx context.Context, mapID string) (domain.ProcessResult, error) {
	res := domain.ProcessResult{MapID: mapID}
	m, err := uc.repo.GetByID(ctx, mapID)
	if err != nil {
		return res, fmt.Errorf("fetch map by id: %w", err)
	}
	res.FileType = m.File.Type
	if m.Status.IsTerminal() {
		res.Outcome = domain.ProcessSkipped
		return res, nil
	}

	if m.Status == domain.MapStatusUploading {
		if err := uc.repo.UpdateStatus(ctx, m.ID, domain.MapStatusUploading, domain.MapStatusProcessing, ""); err != nil {
			if isLostTransition(err) {
				res.Outcome = domain.ProcessLostRace
				return res, nil
			}
			return res, fmt.Errorf("set status=processing: %w", err)
		}
		m.Status = domain.MapStatusProcessing
	}

	meta, err := uc.extractMetadata(ctx, m)
	if err == nil {
		if saveErr := uc.repo.SaveMetadata(ctx, m.ID, meta); saveErr != nil {
			err = fmt.Errorf("save metadata: %w", saveErr)
		}
	}
	if err != nil {
		if failErr := uc.markFailed(ctx, m.ID, err); failErr != nil {
			return res, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		res.Outcome = domain.ProcessFailed
		return res, err
	}
	res.Metadata = meta

	if err := uc.repo.UpdateStatus(ctx, m.ID, domain.MapStatusProcessing, domain.MapStatusReady, ""); err != nil {
		if isLostTransition(err) {
			res.Outcome = domain.ProcessLostRace
			return res, nil
		}
		return res, fmt.Errorf("set status=ready: %w", err)
	}
	res.Outcome = domain.ProcessReady
	return res, nil
}

func (uc *ProcessMapUseCase) extractMetadata(ctx context.Context, m *domain.Map) (domain.MapMetadata, error) {
	body, err := uc.storage.Open(ctx, m.File.StoragePath)
	if err != nil {
		return domain.MapMetadata{}, fmt.Errorf("open stored map: %w", err)
	}
	defer body.Close()

	meta, err := uc.extractor.Extract(ctx, m, body)
	if err != nil {
		return domain.MapMetadata{}, fmt.Errorf("extract metadata: %w", err)
	}
	return meta, nil
}

func (uc *ProcessMapUseCase) markFailed(ctx context.Context, mapID string, processErr error) error {
	return uc.repo.UpdateStatus(ctx, mapID, domain.MapStatusProcessing, domain.MapStatusError, processErr.Error())
}

// isLostTransition reports a compare-and-set miss: another consumer already
// moved the map on.
func isLostTransition(err error) bool {
	conflict, ok := domain.AsConflict(err)
	return ok && conflict.Reason == domain.ConflictInvalidTransition
}
