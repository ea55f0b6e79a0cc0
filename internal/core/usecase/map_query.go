package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

type MapQueryUseCase struct {
	repo    ports.MapRepository
	storage ports.ObjectStorage
}

func NewMapQueryUseCase(repo ports.MapRepository, storage ports.ObjectStorage) *MapQueryUseCase {
	return &MapQueryUseCase{repo: repo, storage: storage}
}

func (uc *MapQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Map, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("get map", "map id is required")
	}
	return uc.repo.GetByID(ctx, id)
}

// ListByProject returns every version of every map in the project, or only
// the versions of one logical name when name is set.
func (uc *MapQueryUseCase) ListByProject(ctx context.Context, projectID, name string) ([]domain.Map, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.Validationf("list maps", "project id is required")
	}
	return uc.repo.ListByProject(ctx, projectID, strings.TrimSpace(name))
}

func (uc *MapQueryUseCase) LatestByName(ctx context.Context, projectID, name string) (*domain.Map, error) {
	const op = "latest map by name"
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.Validationf(op, "project id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validationf(op, "name is required")
	}
	return uc.repo.LatestByName(ctx, projectID, strings.TrimSpace(name))
}

// OpenFile returns the map and a reader over its stored asset. The caller
// closes the reader.
func (uc *MapQueryUseCase) OpenFile(ctx context.Context, id string) (*domain.Map, io.ReadCloser, error) {
	m, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if m.File.StoragePath == "" {
		return nil, nil, domain.WrapError(domain.ErrNotFound, "open map file", fmt.Errorf("map %s has no stored file", id))
	}
	body, err := uc.storage.Open(ctx, m.File.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored map: %w", err)
	}
	return m, body, nil
}
