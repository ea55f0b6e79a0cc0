package httpadapter

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

type uploaderFake struct {
	got  domain.MapUpload
	body string
	err  error
}

func (f *uploaderFake) Upload(_ context.Context, actor domain.Actor, in domain.MapUpload, body io.Reader) (*domain.Map, error) {
	f.got = in
	raw, _ := io.ReadAll(body)
	f.body = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Map{ID: "map-1", ProjectID: in.ProjectID, Name: in.Name, Filename: in.Filename, Status: domain.MapStatusUploading, Version: 1, UploadedBy: actor.UserID}, nil
}

type mapsFake struct {
	maps map[string]*domain.Map
	file string
}

func (f *mapsFake) GetByID(_ context.Context, id string) (*domain.Map, error) {
	m, ok := f.maps[id]
	if !ok {
		return nil, domain.NotFound("map", id)
	}
	cp := *m
	return &cp, nil
}

func (f *mapsFake) ListByProject(_ context.Context, projectID, name string) ([]domain.Map, error) {
	var out []domain.Map
	for _, m := range f.maps {
		if m.ProjectID == projectID && (name == "" || m.Name == name) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *mapsFake) LatestByName(_ context.Context, projectID, name string) (*domain.Map, error) {
	var latest *domain.Map
	for _, m := range f.maps {
		if m.ProjectID == projectID && m.Name == name && (latest == nil || m.Version > latest.Version) {
			latest = m
		}
	}
	if latest == nil {
		return nil, domain.NotFound("map", name)
	}
	return latest, nil
}

func (f *mapsFake) OpenFile(ctx context.Context, id string) (*domain.Map, io.ReadCloser, error) {
	m, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return m, io.NopCloser(strings.NewReader(f.file)), nil
}

type mapDeleterFake struct {
	actor domain.Actor
	err   error
}

func (f *mapDeleterFake) Delete(_ context.Context, actor domain.Actor, _ string) (domain.MapDeletion, error) {
	f.actor = actor
	if f.err != nil {
		return domain.MapDeletion{}, f.err
	}
	return domain.MapDeletion{DeletedMeasurements: 2, DetachedEstimates: 1}, nil
}

type calibratorFake struct {
	got    domain.CalibrateCommand
	result *domain.CalibrationResult
	err    error
}

func (f *calibratorFake) Calibrate(_ context.Context, cmd domain.CalibrateCommand) (*domain.CalibrationResult, error) {
	f.got = cmd
	return f.result, f.err
}

type measurementsFake struct {
	got   domain.MeasureCommand
	list  []domain.Measurement
	err   error
	actor domain.Actor
}

func (f *measurementsFake) Create(_ context.Context, actor domain.Actor, cmd domain.MeasureCommand) (*domain.Measurement, error) {
	f.got, f.actor = cmd, actor
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Measurement{ID: "meas-1", MapID: cmd.MapID, Type: cmd.Type, Points: cmd.Points, Value: 12.5, DisplayValue: "12.50 m", CreatedBy: actor.UserID}, nil
}

func (f *measurementsFake) GetByID(_ context.Context, id string) (*domain.Measurement, error) {
	for _, m := range f.list {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, domain.NotFound("measurement", id)
}

func (f *measurementsFake) ListByMap(_ context.Context, mapID string) ([]domain.Measurement, error) {
	return f.list, f.err
}

func (f *measurementsFake) Delete(_ context.Context, actor domain.Actor, _ string) error {
	f.actor = actor
	return f.err
}

type estimatesFake struct {
	created    domain.CostEstimate
	patch      domain.EstimatePatch
	suggestReq domain.SuggestRequest
	suggestion *domain.Suggestion
	totals     domain.ProjectTotals
	export     string
	err        error
}

func (f *estimatesFake) Create(_ context.Context, actor domain.Actor, e domain.CostEstimate) (*domain.CostEstimate, error) {
	f.created = e
	if f.err != nil {
		return nil, f.err
	}
	e.ID = "est-1"
	e.CreatedBy = actor.UserID
	return &e, nil
}

func (f *estimatesFake) Update(_ context.Context, _ domain.Actor, id string, patch domain.EstimatePatch) (*domain.CostEstimate, error) {
	f.patch = patch
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CostEstimate{ID: id}, nil
}

func (f *estimatesFake) GetByID(_ context.Context, id string) (*domain.CostEstimate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CostEstimate{ID: id}, nil
}

func (f *estimatesFake) ListByProject(context.Context, string) ([]domain.CostEstimate, error) {
	return []domain.CostEstimate{}, f.err
}

func (f *estimatesFake) Delete(context.Context, domain.Actor, string) error { return f.err }

func (f *estimatesFake) ProjectTotals(_ context.Context, projectID string) (domain.ProjectTotals, error) {
	t := f.totals
	t.ProjectID = projectID
	return t, f.err
}

func (f *estimatesFake) CalculateFromMeasurements(_ context.Context, _ domain.Actor, req domain.SuggestRequest) (*domain.Suggestion, error) {
	f.suggestReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestion, nil
}

func (f *estimatesFake) Export(_ context.Context, id string, w io.Writer) (*domain.CostEstimate, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, _ = io.WriteString(w, f.export)
	return &domain.CostEstimate{ID: id}, nil
}

type testServices struct {
	uploader     *uploaderFake
	maps         *mapsFake
	deleter      *mapDeleterFake
	calibrator   *calibratorFake
	measurements *measurementsFake
	estimates    *estimatesFake
}

func newTestServices() *testServices {
	return &testServices{
		uploader: &uploaderFake{},
		maps: &mapsFake{maps: map[string]*domain.Map{
			"map-1": {ID: "map-1", ProjectID: "proj-1", Name: "Ground floor", Filename: "ground.pdf", Status: domain.MapStatusReady, CalibrationVersion: 2, Version: 1,
				File: domain.FileDescriptor{Type: domain.FileTypePDF, MimeType: "application/pdf", Size: 8}},
			"map-2": {ID: "map-2", ProjectID: "proj-1", Name: "Ground floor", Status: domain.MapStatusReady, Version: 2},
		}, file: "%PDF-1.7"},
		deleter:      &mapDeleterFake{},
		calibrator:   &calibratorFake{},
		measurements: &measurementsFake{},
		estimates:    &estimatesFake{},
	}
}

func (s *testServices) services() Services {
	return Services{
		Uploader:     s.uploader,
		Maps:         s.maps,
		MapDeleter:   s.deleter,
		Calibrator:   s.calibrator,
		Measurements: s.measurements,
		Estimates:    s.estimates,
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, newTestServices().services()).Handler()
}
