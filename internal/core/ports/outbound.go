package ports

import (
	"context"
	"io"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// MapRepository persists and reads map state.
type MapRepository interface {
	// Create assigns the next upload version for (project, name) and stores m.
	Create(ctx context.Context, m *domain.Map) error
	GetByID(ctx context.Context, id string) (*domain.Map, error)
	ListByProject(ctx context.Context, projectID, name string) ([]domain.Map, error)
	LatestByName(ctx context.Context, projectID, name string) (*domain.Map, error)
	SaveFile(ctx context.Context, id string, file domain.FileDescriptor) error
	// UpdateStatus moves a map from one status to another only if it is still in from.
	UpdateStatus(ctx context.Context, id string, from, to domain.MapStatus, errMessage string) error
	SaveMetadata(ctx context.Context, id string, meta domain.MapMetadata) error
	// Recalibrate runs decide under a row lock and applies the new scale,
	// optionally deleting dependent measurements, in one transaction.
	Recalibrate(ctx context.Context, id string, scale domain.Scale, decide domain.CalibrationDecision) (*domain.CalibrationResult, error)
	DeleteCascade(ctx context.Context, id string) (domain.MapDeletion, error)
}

type MeasurementRepository interface {
	// CreateIfCurrent inserts m only while its map is ready and still at
	// m.CalibrationVersionAtCreation.
	CreateIfCurrent(ctx context.Context, m *domain.Measurement) error
	GetByID(ctx context.Context, id string) (*domain.Measurement, error)
	ListByMap(ctx context.Context, mapID string) ([]domain.Measurement, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Measurement, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Measurement, error)
	Delete(ctx context.Context, id string) error
}

type EstimateRepository interface {
	Create(ctx context.Context, e *domain.CostEstimate) error
	Update(ctx context.Context, e *domain.CostEstimate) error
	GetByID(ctx context.Context, id string) (*domain.CostEstimate, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.CostEstimate, error)
	Delete(ctx context.Context, id string) error
}

// ObjectStorage stores map assets.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (domain.StoredObject, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes map upload events.
type MessageQueue interface {
	PublishMapUploaded(ctx context.Context, mapID string) error
	SubscribeMapUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// FileTypeClassifier maps a file name to a supported map file type.
type FileTypeClassifier interface {
	Classify(filename string) (domain.FileType, error)
}

// MetadataExtractor reads out-of-band metadata from a stored map asset.
type MetadataExtractor interface {
	Extract(ctx context.Context, m *domain.Map, body io.Reader) (domain.MapMetadata, error)
}

// CostRuleProvider supplies the configured rule table.
type CostRuleProvider interface {
	Rules(ctx context.Context) ([]domain.CostRule, error)
}

// EstimateExporter renders an estimate as a report document.
type EstimateExporter interface {
	Export(e domain.CostEstimate, w io.Writer) error
}
