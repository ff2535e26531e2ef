// Package checkin_api exposes the scanner endpoints: authenticated
// check-in and undo, plus the public pre-scan status lookup.
package checkin_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/checkin"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/qr"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Service *checkin.Service
	QR      *qr.Generator
}

func NewHandler(service *checkin.Service, qrGenerator *qr.Generator) *Handler {
	return &Handler{Service: service, QR: qrGenerator}
}

const (
	ActionCheckin = "checkin"
	ActionUndo    = "undo"
)

type scanRequest struct {
	// Scanners send the encrypted QR payload; admin tooling may send the
	// raw qr_id directly. Exactly one is required.
	EncryptedQR string `json:"encrypted_qr,omitempty"`
	QRID        string `json:"qr_id,omitempty"`
	Action      string `json:"action,omitempty"`
}

func (h *Handler) resolveQRID(req scanRequest) (string, error) {
	if req.QRID != "" {
		return req.QRID, nil
	}
	if req.EncryptedQR == "" {
		return "", errs.E(errs.InvalidInput, "either qr_id or encrypted_qr is required")
	}
	payload, err := h.QR.Decrypt(req.EncryptedQR)
	if err != nil {
		return "", errs.Wrap(errs.InvalidInput, "the scanned code is not a valid ticket QR", err)
	}
	return payload.QRID, nil
}

// Scan handles POST /checkin: validates the scanned code and performs
// the requested action (check-in by default, undo when asked).
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.InvalidInput, "invalid request body", err))
		return
	}

	qrID, err := h.resolveQRID(req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	operator := auth.IdentityFrom(r.Context())

	switch req.Action {
	case "", ActionCheckin:
		result, err := h.Service.CheckIn(r.Context(), qrID, operator)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, "check-in recorded", result)

	case ActionUndo:
		result, err := h.Service.UndoCheckIn(r.Context(), qrID, operator)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, "check-in undone", result)

	default:
		utils.WriteError(w, errs.E(errs.InvalidInput, "action must be checkin or undo"))
	}
}

// PublicStatus handles GET /public/tickets/{qrID}/status, the
// unauthenticated pre-scan view shown on door displays.
func (h *Handler) PublicStatus(w http.ResponseWriter, r *http.Request) {
	qrID := chi.URLParam(r, "qrID")
	if qrID == "" {
		utils.WriteError(w, errs.E(errs.InvalidInput, "qr id is required"))
		return
	}

	status, err := h.Service.PublicLookup(r.Context(), qrID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket status", status)
}
