package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// memStore backs the repository fakes so map, measurement and estimate
// state stays consistent across use cases within one test.
type memStore struct {
	maps         map[string]domain.Map
	measurements map[string]domain.Measurement
	estimates    map[string]domain.CostEstimate
}

func newMemStore() *memStore {
	return &memStore{
		maps:         map[string]domain.Map{},
		measurements: map[string]domain.Measurement{},
		estimates:    map[string]domain.CostEstimate{},
	}
}

func (s *memStore) putReadyMap(id, projectID string, scale *domain.Scale) domain.Map {
	m := domain.Map{
		ID:         id,
		ProjectID:  projectID,
		Name:       "ground-floor",
		Filename:   "ground-floor.pdf",
		File:       domain.FileDescriptor{Type: domain.FileTypePDF, StoragePath: "maps/" + id + ".pdf", Size: 10},
		Status:     domain.MapStatusReady,
		Scale:      scale,
		Version:    1,
		UploadedBy: "owner",
	}
	if scale != nil {
		m.CalibrationVersion = 1
	}
	s.maps[id] = m
	return m
}

func (s *memStore) countMeasurements(mapID string) int {
	n := 0
	for _, m := range s.measurements {
		if m.MapID == mapID {
			n++
		}
	}
	return n
}

type statusCall struct {
	id       string
	from, to domain.MapStatus
	errMsg   string
}

type mapRepoFake struct {
	store          *memStore
	createErrs     []error
	createCalls    int
	statusErr      error
	statusCalls    []statusCall
	saveMetaErr    error
	recalibrateErr error
	// afterGet runs after every successful GetByID, e.g. to race a recalibration.
	afterGet func()
}

func (f *mapRepoFake) Create(_ context.Context, m *domain.Map) error {
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	version := 0
	for _, existing := range f.store.maps {
		if existing.ProjectID == m.ProjectID && existing.Name == m.Name && existing.Version > version {
			version = existing.Version
		}
	}
	m.Version = version + 1
	f.store.maps[m.ID] = *m
	return nil
}

func (f *mapRepoFake) GetByID(_ context.Context, id string) (*domain.Map, error) {
	m, ok := f.store.maps[id]
	if !ok {
		return nil, domain.NotFound("map", id)
	}
	if f.afterGet != nil {
		f.afterGet()
	}
	return &m, nil
}

func (f *mapRepoFake) ListByProject(_ context.Context, projectID, name string) ([]domain.Map, error) {
	out := []domain.Map{}
	for _, m := range f.store.maps {
		if m.ProjectID == projectID && (name == "" || m.Name == name) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (f *mapRepoFake) LatestByName(ctx context.Context, projectID, name string) (*domain.Map, error) {
	maps, _ := f.ListByProject(ctx, projectID, name)
	if len(maps) == 0 {
		return nil, domain.NotFound("map", projectID+"/"+name)
	}
	return &maps[0], nil
}

func (f *mapRepoFake) SaveFile(_ context.Context, id string, file domain.FileDescriptor) error {
	m, ok := f.store.maps[id]
	if !ok {
		return domain.NotFound("map", id)
	}
	m.File = file
	f.store.maps[id] = m
	return nil
}

func (f *mapRepoFake) UpdateStatus(_ context.Context, id string, from, to domain.MapStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{id: id, from: from, to: to, errMsg: errMessage})
	if f.statusErr != nil {
		return f.statusErr
	}
	m, ok := f.store.maps[id]
	if !ok {
		return domain.NotFound("map", id)
	}
	if m.Status != from || !from.CanTransitionTo(to) {
		return &domain.ConflictError{Reason: domain.ConflictInvalidTransition, Status: m.Status}
	}
	m.Status = to
	m.Error = errMessage
	f.store.maps[id] = m
	return nil
}

func (f *mapRepoFake) SaveMetadata(_ context.Context, id string, meta domain.MapMetadata) error {
	if f.saveMetaErr != nil {
		return f.saveMetaErr
	}
	m := f.store.maps[id]
	m.Metadata = meta
	f.store.maps[id] = m
	return nil
}

func (f *mapRepoFake) Recalibrate(_ context.Context, id string, scale domain.Scale, decide domain.CalibrationDecision) (*domain.CalibrationResult, error) {
	m, ok := f.store.maps[id]
	if !ok {
		return nil, domain.NotFound("map", id)
	}
	existing := f.store.countMeasurements(id)
	deleteExisting, err := decide(&m, existing)
	if err != nil {
		return nil, err
	}
	if f.recalibrateErr != nil {
		return nil, domain.WrapError(domain.ErrTransaction, "recalibrate map", f.recalibrateErr)
	}

	result := &domain.CalibrationResult{MapID: id, Scale: scale, ScaleFactor: scale.ScaleFactor}
	if deleteExisting {
		for mid, measurement := range f.store.measurements {
			if measurement.MapID == id {
				delete(f.store.measurements, mid)
			}
		}
		deleted := existing
		result.DeletedMeasurements = &deleted
	}
	now := time.Now().UTC()
	m.Scale = &scale
	m.CalibrationVersion++
	m.CalibratedAt = &now
	f.store.maps[id] = m

	result.CalibrationVersion = m.CalibrationVersion
	result.CalibratedAt = now
	return result, nil
}

func (f *mapRepoFake) DeleteCascade(_ context.Context, id string) (domain.MapDeletion, error) {
	if _, ok := f.store.maps[id]; !ok {
		return domain.MapDeletion{}, domain.NotFound("map", id)
	}
	var out domain.MapDeletion
	for mid, measurement := range f.store.measurements {
		if measurement.MapID == id {
			delete(f.store.measurements, mid)
			out.DeletedMeasurements++
		}
	}
	for eid, estimate := range f.store.estimates {
		if estimate.MapID != nil && *estimate.MapID == id {
			estimate.MapID = nil
			f.store.estimates[eid] = estimate
			out.DetachedEstimates++
		}
	}
	delete(f.store.maps, id)
	return out, nil
}

type measurementRepoFake struct {
	store     *memStore
	createErr error
}

func (f *measurementRepoFake) CreateIfCurrent(_ context.Context, m *domain.Measurement) error {
	if f.createErr != nil {
		return f.createErr
	}
	current, ok := f.store.maps[m.MapID]
	if !ok {
		return domain.NotFound("map", m.MapID)
	}
	if current.Status != domain.MapStatusReady || current.CalibrationVersion != m.CalibrationVersionAtCreation {
		return &domain.ConflictError{
			Reason:         domain.ConflictStaleCalibration,
			CurrentVersion: current.CalibrationVersion,
			Status:         current.Status,
		}
	}
	f.store.measurements[m.ID] = *m
	return nil
}

func (f *measurementRepoFake) GetByID(_ context.Context, id string) (*domain.Measurement, error) {
	m, ok := f.store.measurements[id]
	if !ok {
		return nil, domain.NotFound("measurement", id)
	}
	return &m, nil
}

func (f *measurementRepoFake) list(match func(domain.Measurement) bool) []domain.Measurement {
	out := []domain.Measurement{}
	for _, m := range f.store.measurements {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *measurementRepoFake) ListByMap(_ context.Context, mapID string) ([]domain.Measurement, error) {
	return f.list(func(m domain.Measurement) bool { return m.MapID == mapID }), nil
}

func (f *measurementRepoFake) ListByProject(_ context.Context, projectID string) ([]domain.Measurement, error) {
	return f.list(func(m domain.Measurement) bool { return m.ProjectID == projectID }), nil
}

func (f *measurementRepoFake) ListByIDs(_ context.Context, ids []string) ([]domain.Measurement, error) {
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	return f.list(func(m domain.Measurement) bool { return wanted[m.ID] }), nil
}

func (f *measurementRepoFake) Delete(_ context.Context, id string) error {
	if _, ok := f.store.measurements[id]; !ok {
		return domain.NotFound("measurement", id)
	}
	delete(f.store.measurements, id)
	return nil
}

type estimateRepoFake struct {
	store     *memStore
	createErr error
}

func (f *estimateRepoFake) Create(_ context.Context, e *domain.CostEstimate) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.store.estimates[e.ID] = *e
	return nil
}

func (f *estimateRepoFake) Update(_ context.Context, e *domain.CostEstimate) error {
	if _, ok := f.store.estimates[e.ID]; !ok {
		return domain.NotFound("estimate", e.ID)
	}
	f.store.estimates[e.ID] = *e
	return nil
}

func (f *estimateRepoFake) GetByID(_ context.Context, id string) (*domain.CostEstimate, error) {
	e, ok := f.store.estimates[id]
	if !ok {
		return nil, domain.NotFound("estimate", id)
	}
	return &e, nil
}

func (f *estimateRepoFake) ListByProject(_ context.Context, projectID string) ([]domain.CostEstimate, error) {
	out := []domain.CostEstimate{}
	for _, e := range f.store.estimates {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *estimateRepoFake) Delete(_ context.Context, id string) error {
	if _, ok := f.store.estimates[id]; !ok {
		return domain.NotFound("estimate", id)
	}
	delete(f.store.estimates, id)
	return nil
}

type storageFake struct {
	objects   map[string][]byte
	saveErr   error
	openErr   error
	deleteErr error
	deleted   []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (domain.StoredObject, error) {
	if f.saveErr != nil {
		return domain.StoredObject{}, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.StoredObject{}, err
	}
	f.objects[key] = raw
	return domain.StoredObject{Path: key, Size: int64(len(raw)), MimeType: http.DetectContentType(raw)}, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.NotFound("object", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishMapUploaded(_ context.Context, mapID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, mapID)
	return nil
}

func (f *queueFake) SubscribeMapUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type fileTypeFake struct{}

func (fileTypeFake) Classify(filename string) (domain.FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return domain.FileTypePDF, nil
	case ".png", ".jpg":
		return domain.FileTypeImage, nil
	case ".dwg", ".dxf":
		return domain.FileTypeCAD, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(filename))
	}
}

type metadataExtractorFake struct {
	meta  domain.MapMetadata
	err   error
	calls int
	body  string
}

func (f *metadataExtractorFake) Extract(_ context.Context, _ *domain.Map, body io.Reader) (domain.MapMetadata, error) {
	f.calls++
	raw, _ := io.ReadAll(body)
	f.body = string(raw)
	if f.err != nil {
		return domain.MapMetadata{}, f.err
	}
	return f.meta, nil
}

type ruleProviderFake struct {
	rules []domain.CostRule
	err   error
}

func (f *ruleProviderFake) Rules(context.Context) ([]domain.CostRule, error) {
	return f.rules, f.err
}

type exporterFake struct {
	exported *domain.CostEstimate
	err      error
}

func (f *exporterFake) Export(e domain.CostEstimate, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	f.exported = &e
	_, err := io.WriteString(w, "report:"+e.ID)
	return err
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func stringPtr(v string) *string { return &v }
