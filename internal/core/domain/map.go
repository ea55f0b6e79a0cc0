package domain

import "time"

type MapStatus string

const (
	MapStatusUploading  MapStatus = "uploading"
	MapStatusProcessing MapStatus = "processing"
	MapStatusReady      MapStatus = "ready"
	MapStatusError      MapStatus = "error"
)

var mapTransitions = map[MapStatus][]MapStatus{
	MapStatusUploading:  {MapStatusProcessing, MapStatusError},
	MapStatusProcessing: {MapStatusReady, MapStatusError},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// ready and error are terminal.
func (s MapStatus) CanTransitionTo(next MapStatus) bool {
	for _, allowed := range mapTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s MapStatus) IsTerminal() bool {
	return s == MapStatusReady || s == MapStatusError
}

type FileType string

const (
	FileTypeCAD   FileType = "cad"
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

type FileDescriptor struct {
	Type        FileType `json:"type"`
	Size        int64    `json:"size"`
	MimeType    string   `json:"mimeType"`
	StoragePath string   `json:"storagePath"`
}

// MapMetadata is filled in by the processing worker.
type MapMetadata struct {
	WidthPx    int     `json:"widthPx,omitempty"`
	HeightPx   int     `json:"heightPx,omitempty"`
	PageCount  int     `json:"pageCount,omitempty"`
	PageWidth  float64 `json:"pageWidthPt,omitempty"`
	PageHeight float64 `json:"pageHeightPt,omitempty"`
}

// ProcessOutcome says what one processing run did to a map.
type ProcessOutcome string

const (
	ProcessReady ProcessOutcome = "ready"
	// ProcessFailed means the map was moved to error.
	ProcessFailed ProcessOutcome = "failed"
	// ProcessSkipped is a redelivery for a map that was already terminal.
	ProcessSkipped ProcessOutcome = "skipped"
	// ProcessLostRace is a status compare-and-set miss against another consumer.
	ProcessLostRace ProcessOutcome = "lost_race"
)

// ProcessResult reports a processing run. Outcome is empty when the run
// stopped on an error before the map's state could be settled.
type ProcessResult struct {
	MapID    string
	Outcome  ProcessOutcome
	FileType FileType
	Metadata MapMetadata
}

// Scale ties a pixel distance on the map to a real-world distance.
// ScaleFactor is meters per pixel.
type Scale struct {
	PixelDistance float64    `json:"pixelDistance"`
	RealDistance  float64    `json:"realDistance"`
	Unit          LengthUnit `json:"unit"`
	ScaleFactor   float64    `json:"scaleFactor"`
}

type Map struct {
	ID                 string         `json:"id"`
	ProjectID          string         `json:"projectId"`
	Name               string         `json:"name"`
	Filename           string         `json:"filename"`
	File               FileDescriptor `json:"file"`
	Status             MapStatus      `json:"status"`
	Error              string         `json:"error,omitempty"`
	Metadata           MapMetadata    `json:"metadata"`
	Scale              *Scale         `json:"scale,omitempty"`
	CalibrationVersion int            `json:"calibrationVersion"`
	Version            int            `json:"version"`
	UploadedBy         string         `json:"uploadedBy,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	CalibratedAt       *time.Time     `json:"calibratedAt,omitempty"`
}

func (m *Map) IsCalibrated() bool {
	return m.Scale != nil && m.Scale.ScaleFactor > 0
}

// RequireReady fails fast when the map is not in the ready state.
func (m *Map) RequireReady(operation string) error {
	if m.Status == MapStatusReady {
		return nil
	}
	return &ConflictError{
		Reason:  ConflictMapNotReady,
		Message: operation + ": map " + m.ID + " is " + string(m.Status),
		Status:  m.Status,
	}
}

// MapDeletion reports what a cascading map delete removed or detached.
type MapDeletion struct {
	DeletedMeasurements int `json:"deletedMeasurements"`
	DetachedEstimates   int `json:"detachedEstimates"`
}

// MapUpload is the caller-supplied part of a new map.
type MapUpload struct {
	ProjectID string
	Name      string
	Filename  string
	MimeType  string
}

// StoredObject is what the blob store reports after a save.
type StoredObject struct {
	Path     string
	Size     int64
	MimeType string
}
