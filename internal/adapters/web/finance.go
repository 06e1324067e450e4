package web

import (
	"net/http"

	"backoffice/internal/core"
)

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	payments, err := h.svc.ListCustomerPayments(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	var input core.CustomerPaymentInput
	if !decodeJSON(w, r, &input) {
		return
	}
	payment, err := h.svc.CreateCustomerPayment(r.Context(), projectID, input, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) createReceiptReversal(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	payment, err := h.svc.CreateReceiptReversal(r.Context(), projectID, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		DocumentURL *string `json:"document_url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := h.svc.ApproveCustomerPayment(r.Context(), paymentID, req.DocumentURL, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.RejectCustomerPayment(r.Context(), paymentID, actorFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]core.PaymentStatus{"status": core.PaymentRejected})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	invoices, err := h.svc.ListInvoices(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoices)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	var input core.InvoiceInput
	if !decodeJSON(w, r, &input) {
		return
	}
	invoice, err := h.svc.CreateInvoice(r.Context(), projectID, input, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	note, err := h.svc.CreateCreditNote(r.Context(), projectID, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, note)
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	invoice, err := h.svc.ApproveInvoice(r.Context(), invoiceID, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.CancelInvoice(r.Context(), invoiceID, actorFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]core.InvoiceStatus{"status": core.InvoiceCancelled})
}

func (h *Handler) listVendorPayments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	payments, err := h.svc.ListVendorPayments(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

func (h *Handler) createVendorPayment(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	var input core.VendorPaymentInput
	if !decodeJSON(w, r, &input) {
		return
	}
	payment, err := h.svc.CreateVendorPayment(r.Context(), projectID, input, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) approveVendorPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.ApproveVendorPayment(r.Context(), paymentID, actorFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]core.PaymentStatus{"status": core.PaymentApproved})
}

func (h *Handler) projectStatement(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	statement, err := h.svc.GetProjectStatement(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, statement)
}

func (h *Handler) projectActivity(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlInt(w, r, "projectID")
	if !ok {
		return
	}
	entries, err := h.svc.ListProjectActivity(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entries)
}
