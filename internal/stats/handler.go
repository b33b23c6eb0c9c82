package stats

import (
	"net/http"
	"strconv"

	"ms-verify/internal/utils"
)

type Handler struct {
	Service *Service
}

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var clubID int64
	if v := q.Get("club_id"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			clubID = parsed
		}
	}

	stats, err := h.Service.GetStats(r.Context(), q.Get("event_date"), clubID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to compute stats", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

// GetHistory handles GET /api/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.Service.GetHistory(r.Context(), q.Get("event_date"), limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load history", err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, history)
}
