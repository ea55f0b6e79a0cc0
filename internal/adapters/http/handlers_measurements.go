package httpadapter

import (
	"net/http"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// measurementView flags measurements computed under a superseded scale.
type measurementView struct {
	domain.Measurement
	Stale bool `json:"stale"`
}

func (rt *Router) createMeasurement(w http.ResponseWriter, r *http.Request) {
	var cmd domain.MeasureCommand
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, r, err)
		return
	}
	cmd.MapID = pathID(r, "id")

	m, err := rt.svc.Measurements.Create(r.Context(), actorFromContext(r.Context()), cmd)
	rt.metrics.RecordMeasurement(serviceName, string(cmd.Type), err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (rt *Router) listMeasurements(w http.ResponseWriter, r *http.Request) {
	mapID := pathID(r, "id")
	m, err := rt.svc.Maps.GetByID(r.Context(), mapID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := rt.svc.Measurements.ListByMap(r.Context(), mapID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]measurementView, 0, len(items))
	for _, item := range items {
		out = append(out, measurementView{Measurement: item, Stale: item.IsStale(m.CalibrationVersion)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) getMeasurement(w http.ResponseWriter, r *http.Request) {
	m, err := rt.svc.Measurements.GetByID(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (rt *Router) deleteMeasurement(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Measurements.Delete(r.Context(), actorFromContext(r.Context()), pathID(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
