package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"backoffice/internal/app"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string) http.Handler {
	h := &Handler{svc: svc, jwtSecret: jwtSecret}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		// Estimation CSV uploads carry full item sets; everything else gets a
		// tight 1 MB cap.
		r.With(RequestBodyLimit(10 << 20)).Post("/api/projects/{projectID}/estimation", h.importEstimation)

		r.Group(func(r chi.Router) {
			r.Use(RequestBodyLimit(1 << 20)) // 1 MB

			r.Get("/api/auth/me", h.me)
			r.Post("/api/users", h.createUser)

			// Projects and customers
			r.Get("/api/projects", h.listProjects)
			r.Post("/api/projects", h.createProject)
			r.Get("/api/projects/{projectID}", h.getProject)
			r.Post("/api/customers", h.createCustomer)

			// Base rates
			r.Get("/api/projects/{projectID}/base-rates", h.listBaseRates)
			r.Post("/api/projects/{projectID}/base-rates", h.requestBaseRate)
			r.Get("/api/projects/{projectID}/base-rates/active", h.activeBaseRate)
			r.Post("/api/base-rates/{id}/approve", h.approveBaseRate)
			r.Post("/api/base-rates/{id}/reject", h.rejectBaseRate)

			// Estimations
			r.Get("/api/projects/{projectID}/estimation", h.currentEstimation)
			r.Get("/api/projects/{projectID}/estimation/export", h.exportEstimation)
			r.Get("/api/projects/{projectID}/estimations", h.estimationVersions)
			r.Post("/api/projects/{projectID}/estimations/{version}/rollback", h.rollbackEstimation)
			r.Get("/api/projects/{projectID}/estimations/{version}/artifact", h.estimationArtifact)

			// Allocation
			r.Get("/api/estimations/{id}/availability", h.itemAvailability)
			r.Post("/api/allocations/validate", h.validateAllocation)

			// Purchase requests
			r.Post("/api/purchase-requests", h.createPurchaseRequest)
			r.Get("/api/projects/{projectID}/purchase-requests", h.listPurchaseRequests)
			r.Get("/api/purchase-requests/{id}", h.getPurchaseRequest)
			r.Post("/api/purchase-requests/{id}/items", h.addPurchaseRequestItems)
			r.Put("/api/purchase-requests/{id}", h.editPurchaseRequest)
			r.Post("/api/purchase-requests/{id}/confirm", h.confirmPurchaseRequest)
			r.Post("/api/purchase-requests/{id}/approve", h.approvePurchaseRequest)
			r.Post("/api/purchase-requests/{id}/reject", h.rejectPurchaseRequest)
			r.Post("/api/purchase-requests/{id}/cancel", h.cancelPurchaseRequest)
			r.Get("/api/purchase-requests/{id}/versions", h.purchaseRequestVersions)
			r.Get("/api/purchase-requests/{id}/versions/{version}/items", h.purchaseRequestItemsAtVersion)

			// Customer payments
			r.Get("/api/projects/{projectID}/payments", h.listPayments)
			r.Post("/api/projects/{projectID}/payments", h.createPayment)
			r.Post("/api/projects/{projectID}/payments/reversal", h.createReceiptReversal)
			r.Post("/api/payments/{id}/approve", h.approvePayment)
			r.Post("/api/payments/{id}/reject", h.rejectPayment)

			// Invoices
			r.Get("/api/projects/{projectID}/invoices", h.listInvoices)
			r.Post("/api/projects/{projectID}/invoices", h.createInvoice)
			r.Post("/api/projects/{projectID}/invoices/credit-note", h.createCreditNote)
			r.Post("/api/invoices/{id}/approve", h.approveInvoice)
			r.Post("/api/invoices/{id}/cancel", h.cancelInvoice)

			// Vendors and vendor payments
			r.Get("/api/vendors", h.listVendors)
			r.Post("/api/vendors", h.createVendor)
			r.Delete("/api/vendors/{id}", h.deactivateVendor)
			r.Get("/api/projects/{projectID}/vendor-payments", h.listVendorPayments)
			r.Post("/api/projects/{projectID}/vendor-payments", h.createVendorPayment)
			r.Post("/api/vendor-payments/{id}/approve", h.approveVendorPayment)

			// Ledger and audit trail
			r.Get("/api/projects/{projectID}/ledger", h.projectStatement)
			r.Get("/api/projects/{projectID}/activity", h.projectActivity)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// urlInt extracts a numeric URL parameter; writes a 400 and returns false on
// a malformed value.
func urlInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, "invalid "+name+" parameter", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// decodeJSON decodes the request body into v; on failure writes the error
// response and returns false. HTTP 413 when the body exceeds the middleware
// size limit, 400 for everything else.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
