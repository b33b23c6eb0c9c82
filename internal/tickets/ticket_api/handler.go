package ticket_api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-verify/internal/logger"
	"ms-verify/internal/tickets"
	"ms-verify/internal/tickets/db"
	"ms-verify/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

// ViewTicket handles GET /api/tickets/{orderID}.
func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ticket, err := h.TicketService.GetTicket(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, db.ErrTicketNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Ticket not found", orderID)
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to fetch ticket", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

// ViewTicketByToken handles GET /api/tickets/token/{token}.
func (h *Handler) ViewTicketByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	ticket, err := h.TicketService.GetTicketByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, db.ErrTicketNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Ticket not found", "")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to fetch ticket", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

// ListTickets handles GET /api/tickets with event_date, status_filter,
// club_id, limit and offset query parameters.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.TicketFilter{
		EventDate: q.Get("event_date"),
		Status:    q.Get("status_filter"),
		Limit:     100,
	}
	if v := q.Get("club_id"); v != "" {
		if clubID, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ClubID = clubID
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	list, err := h.TicketService.ListTickets(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list tickets", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

// CancelTicket handles PATCH /api/tickets/{orderID}/cancel.
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.TicketService.CancelTicket(r.Context(), orderID); err != nil {
		if errors.Is(err, db.ErrTicketNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Ticket not found", orderID)
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to cancel ticket", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": orderID,
	})
}

// TicketQR handles GET /api/tickets/{orderID}/qr and returns a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	png, err := h.TicketService.RenderQR(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, db.ErrTicketNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Ticket not found", orderID)
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to render QR", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
