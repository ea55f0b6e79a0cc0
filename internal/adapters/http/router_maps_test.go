package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

func multipartUpload(t *testing.T, filename, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestUploadMapReturns202WithDownloadURL(t *testing.T) {
	svc := newTestServices()
	handler := NewRouter(config.Config{PublicBaseURL: "https://takeoff.example.com"}, svc.services()).Handler()

	body, contentType := multipartUpload(t, "ground.pdf", "Ground floor", "%PDF-1.7 body")
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-1/maps", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if svc.uploader.got.ProjectID != "proj-1" || svc.uploader.got.Name != "Ground floor" || svc.uploader.got.Filename != "ground.pdf" {
		t.Fatalf("unexpected upload input %+v", svc.uploader.got)
	}
	if svc.uploader.body != "%PDF-1.7 body" {
		t.Fatalf("unexpected streamed body %q", svc.uploader.body)
	}

	var resp map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["downloadUrl"] != "https://takeoff.example.com/v1/maps/map-1/file" {
		t.Fatalf("unexpected downloadUrl %v", resp["downloadUrl"])
	}
	if resp["uploadedBy"] != "system" {
		t.Fatalf("expected system actor without auth, got %v", resp["uploadedBy"])
	}
}

func TestUploadMapRequiresFile(t *testing.T) {
	body, contentType := multipartUpload(t, "", "Ground floor", "")
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-1/maps", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadMapRejectsOversizedBody(t *testing.T) {
	body, contentType := multipartUpload(t, "big.png", "", strings.Repeat("x", 4096))
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-1/maps", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	newTestHandler(config.Config{MaxUploadBytes: 512}).ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestUploadMapUnsupportedTypeIs400(t *testing.T) {
	svc := newTestServices()
	svc.uploader.err = domain.Validationf("classify map file", "unsupported file extension %q", ".txt")
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	body, contentType := multipartUpload(t, "notes.txt", "", "hello")
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/proj-1/maps", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListMapsLatestByName(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-1/maps?name=Ground+floor&latest=true", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var m map[string]any
	_ = json.Unmarshal(res.Body.Bytes(), &m)
	if m["id"] != "map-2" || m["downloadUrl"] != "/v1/maps/map-2/file" {
		t.Fatalf("expected latest version map-2 with relative url, got %v", m)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/projects/proj-1/maps?latest=true", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("latest without name expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/projects/proj-1/maps", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	var list []map[string]any
	_ = json.Unmarshal(res.Body.Bytes(), &list)
	if res.Code != http.StatusOK || len(list) != 2 {
		t.Fatalf("expected two maps, got %d: %s", res.Code, res.Body.String())
	}
}

func TestGetMapReturns404ForNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/maps/missing", nil)
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDownloadMapFileStreamsBytes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/maps/map-1/file", nil)
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "application/pdf" || res.Body.String() != "%PDF-1.7" {
		t.Fatalf("unexpected file response %q %q", res.Header().Get("Content-Type"), res.Body.String())
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "ground.pdf") {
		t.Fatalf("expected filename in disposition, got %q", res.Header().Get("Content-Disposition"))
	}
}

func TestDeleteMapForbiddenIs403(t *testing.T) {
	svc := newTestServices()
	svc.deleter.err = domain.WrapError(domain.ErrForbidden, "delete map", errors.New("not the uploader"))
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/maps/map-1", nil))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestDeleteMapReportsCascade(t *testing.T) {
	svc := newTestServices()
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/maps/map-1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var got domain.MapDeletion
	_ = json.Unmarshal(res.Body.Bytes(), &got)
	if got.DeletedMeasurements != 2 || got.DetachedEstimates != 1 {
		t.Fatalf("unexpected deletion report %+v", got)
	}
	if svc.deleter.actor != domain.SystemActor {
		t.Fatalf("expected system actor, got %+v", svc.deleter.actor)
	}
}

func TestCalibrateReturns409WithExistingMeasurements(t *testing.T) {
	svc := newTestServices()
	svc.calibrator.err = &domain.ConflictError{
		Reason:               domain.ConflictMeasurementsExist,
		Message:              "map map-1 has 3 measurements; pass force to recalibrate",
		ExistingMeasurements: 3,
		CurrentVersion:       2,
	}
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	req := httptest.NewRequest(http.MethodPatch, "/v1/maps/map-1/calibrate",
		strings.NewReader(`{"pixelDistance":100,"realDistance":5,"unit":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if body["reason"] != domain.ConflictMeasurementsExist || body["existingMeasurements"] != float64(3) || body["currentVersion"] != float64(2) {
		t.Fatalf("unexpected conflict body %v", body)
	}
	if svc.calibrator.got.MapID != "map-1" || svc.calibrator.got.Force {
		t.Fatalf("unexpected command %+v", svc.calibrator.got)
	}
}

func TestCalibrateForcedReturns200(t *testing.T) {
	svc := newTestServices()
	deleted := 3
	svc.calibrator.result = &domain.CalibrationResult{MapID: "map-1", ScaleFactor: 0.05, CalibrationVersion: 3, DeletedMeasurements: &deleted}
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	req := httptest.NewRequest(http.MethodPatch, "/v1/maps/map-1/calibrate",
		strings.NewReader(`{"pixelDistance":100,"realDistance":5,"unit":"m","force":true}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(res.Body.Bytes(), &body)
	if body["scaleFactor"] != 0.05 || body["calibrationVersion"] != float64(3) || body["deletedMeasurements"] != float64(3) {
		t.Fatalf("unexpected calibration body %v", body)
	}
	if !svc.calibrator.got.Force {
		t.Fatalf("expected force to reach the calibrator")
	}
}

func TestCalibrateValidationErrorIs400(t *testing.T) {
	svc := newTestServices()
	svc.calibrator.err = domain.Validationf("calibrate map", "pixelDistance must be a positive finite number, got %v", 0)
	handler := NewRouter(config.Config{}, svc.services()).Handler()

	req := httptest.NewRequest(http.MethodPatch, "/v1/maps/map-1/calibrate",
		strings.NewReader(`{"pixelDistance":0,"realDistance":5,"unit":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCalibrateUnitOutsideEnumIsRejectedBeforeService(t *testing.T) {
	for _, unit := range []string{"FT", " m ", "yd"} {
		svc := newTestServices()
		handler := NewRouter(config.Config{}, svc.services()).Handler()

		req := httptest.NewRequest(http.MethodPatch, "/v1/maps/map-1/calibrate",
			strings.NewReader(`{"pixelDistance":100,"realDistance":5,"unit":"`+unit+`"}`))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != http.StatusBadRequest {
			t.Fatalf("unit %q: expected 400, got %d", unit, res.Code)
		}
		if svc.calibrator.got.MapID != "" {
			t.Fatalf("unit %q must not reach the calibrator", unit)
		}
	}
}
