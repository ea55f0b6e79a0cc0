package ports

import (
	"context"
	"io"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// MapUploader is the inbound contract for map upload orchestration.
type MapUploader interface {
	Upload(ctx context.Context, actor domain.Actor, in domain.MapUpload, body io.Reader) (*domain.Map, error)
}

// MapProcessor is the inbound contract for asynchronous map processing.
type MapProcessor interface {
	ProcessByID(ctx context.Context, mapID string) (domain.ProcessResult, error)
}

// MapReader is the inbound read model for map metadata/state.
type MapReader interface {
	GetByID(ctx context.Context, id string) (*domain.Map, error)
	ListByProject(ctx context.Context, projectID, name string) ([]domain.Map, error)
	LatestByName(ctx context.Context, projectID, name string) (*domain.Map, error)
	OpenFile(ctx context.Context, id string) (*domain.Map, io.ReadCloser, error)
}

type MapDeleter interface {
	Delete(ctx context.Context, actor domain.Actor, id string) (domain.MapDeletion, error)
}

// Calibrator establishes or replaces a map's scale.
type Calibrator interface {
	Calibrate(ctx context.Context, cmd domain.CalibrateCommand) (*domain.CalibrationResult, error)
}

type MeasurementService interface {
	Create(ctx context.Context, actor domain.Actor, cmd domain.MeasureCommand) (*domain.Measurement, error)
	GetByID(ctx context.Context, id string) (*domain.Measurement, error)
	ListByMap(ctx context.Context, mapID string) ([]domain.Measurement, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
}

// EstimateService is the inbound contract for cost estimates and rollups.
type EstimateService interface {
	Create(ctx context.Context, actor domain.Actor, e domain.CostEstimate) (*domain.CostEstimate, error)
	Update(ctx context.Context, actor domain.Actor, id string, patch domain.EstimatePatch) (*domain.CostEstimate, error)
	GetByID(ctx context.Context, id string) (*domain.CostEstimate, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.CostEstimate, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
	ProjectTotals(ctx context.Context, projectID string) (domain.ProjectTotals, error)
	CalculateFromMeasurements(ctx context.Context, actor domain.Actor, req domain.SuggestRequest) (*domain.Suggestion, error)
	Export(ctx context.Context, id string, w io.Writer) (*domain.CostEstimate, error)
}
