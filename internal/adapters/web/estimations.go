package web

import (
	"fmt"
	"net/http"
	"strconv"

	"backoffice/internal/core"
)

// ── Base rates ────────────────────────────────────────────────────────────────

func (h *Handler) listBaseRates(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	rates, err := h.svc.ListBaseRates(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rates)
}

func (h *Handler) requestBaseRate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	var cfg core.RateConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	rate, err := h.svc.RequestBaseRate(r.Context(), projectID, cfg, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rate)
}

func (h *Handler) activeBaseRate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	rate, err := h.svc.GetActiveBaseRate(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rate)
}

// approveBaseRate requires the caller to resubmit the full configuration so
// divergence from the stored values surfaces as a 409 with per-field detail.
func (h *Handler) approveBaseRate(w http.ResponseWriter, r *http.Request) {
	baseRateID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var submitted core.RateConfig
	if !decodeJSON(w, r, &submitted) {
		return
	}
	rate, err := h.svc.ApproveBaseRate(r.Context(), baseRateID, submitted, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rate)
}

func (h *Handler) rejectBaseRate(w http.ResponseWriter, r *http.Request) {
	baseRateID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.RejectBaseRate(r.Context(), baseRateID, actorFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Estimations ───────────────────────────────────────────────────────────────

// importEstimation handles POST /api/projects/{projectID}/estimation with a
// CSV body in the canonical schema.
func (h *Handler) importEstimation(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	result, err := h.svc.ImportEstimationCSV(r.Context(), projectID, r.Body, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) currentEstimation(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	result, err := h.svc.GetCurrentEstimation(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) exportEstimation(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="project_%d_estimation.csv"`, projectID))
	if err := h.svc.ExportEstimationCSV(r.Context(), projectID, w); err != nil {
		// Headers may already be out; log-and-abort is all that's left.
		writeServiceError(w, r, err)
	}
}

func (h *Handler) estimationVersions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	versions, err := h.svc.ListEstimationVersions(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, versions)
}

func (h *Handler) rollbackEstimation(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	version, ok := urlInt(w, r, "version")
	if !ok {
		return
	}
	result, err := h.svc.RollbackEstimation(r.Context(), projectID, version, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) estimationArtifact(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	version, ok := urlInt(w, r, "version")
	if !ok {
		return
	}
	items, err := h.svc.LoadEstimationArtifact(r.Context(), projectID, version)
	if err != nil {
		writeError(w, r, err.Error(), "ARTIFACT_MISSING", http.StatusNotFound)
		return
	}
	writeJSON(w, items)
}

// ── Allocation ────────────────────────────────────────────────────────────────

func (h *Handler) itemAvailability(w http.ResponseWriter, r *http.Request) {
	estimationID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	projectID, err := strconv.Atoi(r.URL.Query().Get("project_id"))
	if err != nil {
		writeError(w, r, "project_id query parameter is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var excludePRID *int
	if v := r.URL.Query().Get("exclude_pr"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, "invalid exclude_pr parameter", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		excludePRID = &id
	}

	availability, err := h.svc.GetItemAvailability(r.Context(), estimationID, projectID, excludePRID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, availability)
}

func (h *Handler) validateAllocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Links       []core.ProposedLink `json:"links"`
		ExcludePRID *int                `json:"exclude_pr_id,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	violations, err := h.svc.ValidateAllocation(r.Context(), req.Links, req.ExcludePRID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}
