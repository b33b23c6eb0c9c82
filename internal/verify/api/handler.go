package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-verify/internal/auth"
	"ms-verify/internal/logger"
	"ms-verify/internal/utils"
	"ms-verify/internal/verify"
)

type Handler struct {
	Service *verify.Service
	Logger  *logger.Logger
}

type verifyRequest struct {
	QRData    string `json:"qr_data"`
	ScannerID string `json:"scanner_id"`
}

// VerifyTicket handles POST /api/verify. Business rejections (malformed,
// forged, not found, used, expired...) come back as 200 with a structured
// status; only a storage failure turns into an HTTP error, and then no
// admission has been granted.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	scannerID := req.ScannerID
	if id := auth.ScannerID(r.Context()); id != "" {
		scannerID = id
	}
	if scannerID == "" {
		scannerID = "default"
	}

	result, err := h.Service.Verify(r.Context(), scannerID, req.QRData)
	if err != nil {
		h.Logger.Error("VERIFY", fmt.Sprintf("scan by %s failed: %v", scannerID, err))
		utils.WriteError(w, http.StatusServiceUnavailable, "Verification unavailable", "storage failure")
		return
	}

	utils.WriteJSON(w, http.StatusOK, result)
}
