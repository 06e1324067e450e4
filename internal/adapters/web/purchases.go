package web

import (
	"context"
	"net/http"

	"backoffice/internal/app"
	"backoffice/internal/core"
)

func (h *Handler) createPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePurchaseRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pr, err := h.svc.CreatePurchaseRequest(r.Context(), req, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, pr)
}

func (h *Handler) listPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	prs, err := h.svc.ListPurchaseRequests(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, prs)
}

func (h *Handler) getPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	pr, err := h.svc.GetPurchaseRequest(r.Context(), prID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, pr)
}

func (h *Handler) addPurchaseRequestItems(w http.ResponseWriter, r *http.Request) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Items []core.PRItemInput `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pr, err := h.svc.AddPurchaseRequestItems(r.Context(), prID, req.Items, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, pr)
}

// editPurchaseRequest handles PUT /api/purchase-requests/{id}: the payload is
// the complete replacement item set; omitted stable ids are deleted.
func (h *Handler) editPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Items []core.PRItemInput `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	version, err := h.svc.EditPurchaseRequest(r.Context(), prID, req.Items, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"version": version})
}

func (h *Handler) confirmPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.transitionPurchaseRequest(w, r, h.svc.ConfirmPurchaseRequest)
}

func (h *Handler) approvePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.transitionPurchaseRequest(w, r, h.svc.ApprovePurchaseRequest)
}

func (h *Handler) rejectPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.transitionPurchaseRequest(w, r, h.svc.RejectPurchaseRequest)
}

func (h *Handler) cancelPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.transitionPurchaseRequest(w, r, h.svc.CancelPurchaseRequest)
}

func (h *Handler) transitionPurchaseRequest(
	w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error),
) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	pr, err := fn(r.Context(), prID, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, pr)
}

func (h *Handler) purchaseRequestVersions(w http.ResponseWriter, r *http.Request) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	versions, err := h.svc.PurchaseRequestVersions(r.Context(), prID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, versions)
}

func (h *Handler) purchaseRequestItemsAtVersion(w http.ResponseWriter, r *http.Request) {
	prID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	version, ok := urlInt(w, r, "version")
	if !ok {
		return
	}
	items, err := h.svc.PurchaseRequestItemsAtVersion(r.Context(), prID, version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, items)
}
