// Package ticket_api exposes the holder-facing ticket endpoints: the
// grouped my-tickets view, attendee configuration, audit logs, and
// event preregistration.
package ticket_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Service *tickets.Service
}

func NewHandler(service *tickets.Service) *Handler {
	return &Handler{Service: service}
}

// MyTickets handles GET /tickets: the caller's own tickets grouped by
// event and order. Orphan tickets matching the account email are linked
// on the way.
func (h *Handler) MyTickets(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity.UID == "" {
		utils.WriteError(w, errs.E(errs.Unauthorized, "authentication required"))
		return
	}

	overview, err := h.Service.GetUserTickets(r.Context(), identity.UID, identity.Email)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "tickets", overview)
}

// UserTickets handles GET /users/{userID}/tickets for back-office staff.
func (h *Handler) UserTickets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		utils.WriteError(w, errs.E(errs.InvalidInput, "user id is required"))
		return
	}

	overview, err := h.Service.GetUserTickets(r.Context(), userID, "")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "tickets", overview)
}

// ConfigureAttendee handles PUT /tickets/{ticketID}/attendee. Holders
// may configure their own tickets; staff may configure any.
func (h *Handler) ConfigureAttendee(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	identity := auth.IdentityFrom(r.Context())

	if !identity.HasRole(models.RoleAdmin, models.RoleGestor) {
		owned, err := h.Service.OwnedBy(r.Context(), ticketID, identity.UID)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		if !owned {
			utils.WriteError(w, errs.E(errs.Forbidden, "you can only configure your own tickets"))
			return
		}
	}

	var input tickets.AttendeeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteError(w, errs.Wrap(errs.InvalidInput, "invalid request body", err))
		return
	}

	ticket, err := h.Service.ConfigureAttendee(r.Context(), ticketID, input)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "attendee configured", ticket)
}

// TicketLogs handles GET /tickets/{ticketID}/logs (staff only).
func (h *Handler) TicketLogs(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	logs, err := h.Service.GetTicketLogs(r.Context(), ticketID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket logs", logs)
}

// Preregister handles POST /public/preregistrations.
func (h *Handler) Preregister(w http.ResponseWriter, r *http.Request) {
	var input tickets.PreregistrationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteError(w, errs.Wrap(errs.InvalidInput, "invalid request body", err))
		return
	}

	prereg, err := h.Service.Preregister(r.Context(), input)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "preregistration recorded", prereg)
}

// ListPreregistrations handles GET /events/{eventID}/preregistrations
// (staff only).
func (h *Handler) ListPreregistrations(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	preregs, err := h.Service.ListPreregistrations(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "preregistrations", preregs)
}
