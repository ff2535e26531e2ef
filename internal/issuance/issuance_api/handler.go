// Package issuance_api exposes the purchase capture endpoint (public,
// driven by the storefront after PayPal approval) and the courtesy
// issuance endpoints for box-office staff.
package issuance_api

import (
	"encoding/json"
	"net/http"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/issuance"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Service *issuance.Service
}

func NewHandler(service *issuance.Service) *Handler {
	return &Handler{Service: service}
}

// CompletePurchase handles POST /purchases/capture. The storefront calls
// it once the buyer approved the PayPal order; retries are safe.
func (h *Handler) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	var req issuance.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.InvalidInput, "invalid request body", err))
		return
	}

	result, err := h.Service.CompletePurchase(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if result.AlreadyIssued {
		utils.WriteJSON(w, http.StatusOK, "order already fulfilled", result)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "tickets issued", result)
}

// IssueCourtesy handles POST /courtesy.
func (h *Handler) IssueCourtesy(w http.ResponseWriter, r *http.Request) {
	var req issuance.CourtesyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.InvalidInput, "invalid request body", err))
		return
	}

	result, err := h.Service.IssueCourtesy(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "courtesy tickets issued", result)
}

// ListCourtesy handles GET /courtesy?event_id=...
func (h *Handler) ListCourtesy(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")

	tickets, stats, err := h.Service.ListCourtesy(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "courtesy tickets", map[string]interface{}{
		"tickets": tickets,
		"stats":   stats,
	})
}
