package web

import (
	"net/http"

	"backoffice/internal/app"
	"backoffice/internal/core"
)

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req app.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.CreateUser(r.Context(), req, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, user)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, projects)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req app.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := h.svc.CreateProject(r.Context(), req, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	project, err := h.svc.GetProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req app.CreateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.svc.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, customer)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.svc.ListVendors(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendors)
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var input core.VendorInput
	if !decodeJSON(w, r, &input) {
		return
	}
	vendor, err := h.svc.CreateVendor(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendor)
}

func (h *Handler) deactivateVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeactivateVendor(r.Context(), vendorID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
