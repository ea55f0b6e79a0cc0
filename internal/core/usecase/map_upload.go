package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

// maxVersionAttempts bounds retries when two uploads race for the same
// (project, name) version number.
const maxVersionAttempts = 3

type UploadMapUseCase struct {
	repo       ports.MapRepository
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
	classifier ports.FileTypeClassifier
	now        func() time.Time
}

func NewUploadMapUseCase(
	repo ports.MapRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	classifier ports.FileTypeClassifier,
) *UploadMapUseCase {
	return &UploadMapUseCase{
		repo:       repo,
		storage:    storage,
		queue:      queue,
		classifier: classifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *UploadMapUseCase) Upload(
	ctx context.Context,
	actor domain.Actor,
	in domain.MapUpload,
	body io.Reader,
) (*domain.Map, error) {
	const op = "upload map"
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return nil, domain.Validationf(op, "project id is required")
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." {
		return nil, domain.Validationf(op, "filename is required")
	}
	fileType, err := uc.classifier.Classify(filename)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, op, err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	id := uuid.NewString()
	now := uc.now()
	m := &domain.Map{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		Filename:  filename,
		File: domain.FileDescriptor{
			Type:        fileType,
			MimeType:    in.MimeType,
			StoragePath: fmt.Sprintf("maps/%s/%s_%s", sanitizeFilename(projectID), id, sanitizeFilename(filename)),
		},
		Status:     domain.MapStatusUploading,
		UploadedBy: actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.createVersioned(ctx, m); err != nil {
		return nil, fmt.Errorf("create map metadata: %w", err)
	}

	stored, err := uc.storage.Save(ctx, m.File.StoragePath, body)
	if err != nil {
		return nil, uc.fail(ctx, m, fmt.Errorf("save to object storage: %w", err))
	}
	m.File.Size = stored.Size
	if stored.MimeType != "" {
		m.File.MimeType = stored.MimeType
	}
	if err := uc.repo.SaveFile(ctx, m.ID, m.File); err != nil {
		return nil, uc.fail(ctx, m, fmt.Errorf("save file descriptor: %w", err))
	}

	if err := uc.queue.PublishMapUploaded(ctx, m.ID); err != nil {
		return nil, uc.fail(ctx, m, fmt.Errorf("publish upload event: %w", err))
	}

	return m, nil
}

func (uc *UploadMapUseCase) createVersioned(ctx context.Context, m *domain.Map) error {
	var err error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err = uc.repo.Create(ctx, m)
		conflict, ok := domain.AsConflict(err)
		if !ok || conflict.Reason != domain.ConflictDuplicateVersion {
			return err
		}
	}
	return err
}

// fail marks the map as errored and returns cause, joined with any
// failure to record that state.
func (uc *UploadMapUseCase) fail(ctx context.Context, m *domain.Map, cause error) error {
	m.Status = domain.MapStatusError
	m.Error = cause.Error()
	if err := uc.repo.UpdateStatus(ctx, m.ID, domain.MapStatusUploading, domain.MapStatusError, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("mark map failed: %w", err))
	}
	return cause
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "map.bin"
	}
	return base
}
