package httpadapter

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *Router) createEstimate(w http.ResponseWriter, r *http.Request) {
	var in domain.CostEstimate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.ProjectID = pathID(r, "projectId")

	e, err := rt.svc.Estimates.Create(r.Context(), actorFromContext(r.Context()), in)
	rt.metrics.RecordEstimate(serviceName, "create", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (rt *Router) listEstimates(w http.ResponseWriter, r *http.Request) {
	items, err := rt.svc.Estimates.ListByProject(r.Context(), pathID(r, "projectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) estimateSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := rt.svc.Estimates.ProjectTotals(r.Context(), pathID(r, "projectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (rt *Router) estimateFromMeasurements(w http.ResponseWriter, r *http.Request) {
	var req domain.SuggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ProjectID = pathID(r, "projectId")

	suggestion, err := rt.svc.Estimates.CalculateFromMeasurements(r.Context(), actorFromContext(r.Context()), req)
	rt.metrics.RecordEstimate(serviceName, "suggest", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordSuggestion(serviceName, len(suggestion.Estimate.Items))

	status := http.StatusOK
	if suggestion.Persisted {
		status = http.StatusCreated
	}
	writeJSON(w, status, suggestion)
}

func (rt *Router) getEstimate(w http.ResponseWriter, r *http.Request) {
	e, err := rt.svc.Estimates.GetByID(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (rt *Router) updateEstimate(w http.ResponseWriter, r *http.Request) {
	var patch domain.EstimatePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := rt.svc.Estimates.Update(r.Context(), actorFromContext(r.Context()), pathID(r, "id"), patch)
	rt.metrics.RecordEstimate(serviceName, "update", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (rt *Router) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	err := rt.svc.Estimates.Delete(r.Context(), actorFromContext(r.Context()), pathID(r, "id"))
	rt.metrics.RecordEstimate(serviceName, "delete", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportEstimate buffers the workbook so a rendering failure can still be
// reported as a JSON error.
func (rt *Router) exportEstimate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	e, err := rt.svc.Estimates.Export(r.Context(), pathID(r, "id"), &buf)
	rt.metrics.RecordEstimate(serviceName, "export", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="estimate-`+e.ID+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
