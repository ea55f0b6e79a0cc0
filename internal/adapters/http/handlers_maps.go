package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const multipartMemory = 32 << 20

// mapView adds read-time projections to a stored map.
type mapView struct {
	*domain.Map
	DownloadURL string `json:"downloadUrl"`
}

func (rt *Router) viewMap(m *domain.Map) mapView {
	return mapView{Map: m, DownloadURL: rt.cfg.PublicBaseURL + "/v1/maps/" + m.ID + "/file"}
}

func (rt *Router) viewMaps(maps []domain.Map) []mapView {
	out := make([]mapView, 0, len(maps))
	for i := range maps {
		out = append(out, rt.viewMap(&maps[i]))
	}
	return out
}

func (rt *Router) uploadMap(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"})
			return
		}
		writeError(w, r, domain.WrapError(domain.ErrValidation, "parse upload", err))
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.Validationf("parse upload", "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	m, err := rt.svc.Uploader.Upload(r.Context(), actorFromContext(r.Context()), domain.MapUpload{
		ProjectID: pathID(r, "projectId"),
		Name:      strings.TrimSpace(r.FormValue("name")),
		Filename:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
	}, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rt.viewMap(m))
}

func (rt *Router) listMaps(w http.ResponseWriter, r *http.Request) {
	projectID := pathID(r, "projectId")
	name := strings.TrimSpace(r.URL.Query().Get("name"))

	if latest, _ := strconv.ParseBool(r.URL.Query().Get("latest")); latest {
		if name == "" {
			writeError(w, r, domain.Validationf("latest map", "name is required with latest=true"))
			return
		}
		m, err := rt.svc.Maps.LatestByName(r.Context(), projectID, name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.viewMap(m))
		return
	}

	maps, err := rt.svc.Maps.ListByProject(r.Context(), projectID, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.viewMaps(maps))
}

func (rt *Router) getMap(w http.ResponseWriter, r *http.Request) {
	m, err := rt.svc.Maps.GetByID(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.viewMap(m))
}

func (rt *Router) downloadMapFile(w http.ResponseWriter, r *http.Request) {
	m, body, err := rt.svc.Maps.OpenFile(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	mimeType := m.File.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	if m.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(m.File.Size, 10))
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(m.Filename, `"`, "")+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logHandlerError(r, "map_file_stream_failed", err)
	}
}

func (rt *Router) deleteMap(w http.ResponseWriter, r *http.Request) {
	result, err := rt.svc.MapDeleter.Delete(r.Context(), actorFromContext(r.Context()), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) calibrateMap(w http.ResponseWriter, r *http.Request) {
	var cmd domain.CalibrateCommand
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, r, err)
		return
	}
	cmd.MapID = pathID(r, "id")

	result, err := rt.svc.Calibrator.Calibrate(r.Context(), cmd)
	deleted := 0
	if result != nil && result.DeletedMeasurements != nil {
		deleted = *result.DeletedMeasurements
	}
	rt.metrics.RecordCalibration(serviceName, deleted, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
