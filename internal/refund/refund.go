// internal/refund/refund.go
package refund

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves the dropout-refund lifecycle. A refund moves
// pending -> processed -> cancelled (or pending -> cancelled); processing
// writes a negative payment row linked back by refund_id, cancelling
// removes it again. Cancelled is terminal.
type Handler struct {
	refunds  *data.RefundRepository
	payments *data.PaymentRepository
	sessions *data.SessionRepository
	players  *data.PlayerRepository
}

func NewHandler(refunds *data.RefundRepository, payments *data.PaymentRepository, sessions *data.SessionRepository, players *data.PlayerRepository) *Handler {
	return &Handler{refunds: refunds, payments: payments, sessions: sessions, players: players}
}

// =============================================================================
// CREATE AND LIST
// =============================================================================

// RefundsHandler handles GET (list) and POST (create) on /api/refunds.
func (h *Handler) RefundsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listRefunds(w, r)
	case http.MethodPost:
		h.createRefund(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	sessionID, _ := strconv.ParseInt(r.URL.Query().Get("session_id"), 10, 64)
	playerID, _ := strconv.ParseInt(r.URL.Query().Get("player_id"), 10, 64)

	refunds, err := h.refunds.List(sessionID, playerID)
	if err != nil {
		logger.LogError("Failed to list refunds: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load refunds", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"refunds": refunds,
		"count":   len(refunds),
	})
}

type createRefundRequest struct {
	PlayerID     int64    `json:"player_id"`
	SessionID    int64    `json:"session_id"`
	Amount       *float64 `json:"amount"`
	Instructions string   `json:"instructions"`
}

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req createRefundRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	if _, err := h.players.GetByID(req.PlayerID); err != nil {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	s, err := h.sessions.GetByID(req.SessionID)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load session", "")
		return
	}

	// The suggestion is always server-computed from the session's current
	// dropout and fill-in picture; callers may override the actual amount.
	suggested, _ := costing.SuggestedRefund(s).Round(2).Float64()
	amount := suggested
	if req.Amount != nil {
		if *req.Amount < 0 {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_amount", "Refund amount cannot be negative", "")
			return
		}
		amount = *req.Amount
	}

	ref := &data.DropoutRefund{
		PlayerID:        req.PlayerID,
		SessionID:       req.SessionID,
		RefundAmount:    amount,
		SuggestedAmount: suggested,
		Instructions:    req.Instructions,
	}
	if err := h.refunds.Insert(ref); err != nil {
		logger.LogError("Failed to create refund: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to create refund", "")
		return
	}

	logger.LogInfo("Refund created: player %d session %d amount %.2f (ID %d)", ref.PlayerID, ref.SessionID, ref.RefundAmount, ref.ID)
	middleware.WriteAPISuccess(w, r, ref)
}

// =============================================================================
// SINGLE REFUND
// =============================================================================

// RefundHandler handles GET/PUT on a single refund via ?id=.
func (h *Handler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	ref, ok := h.loadRefund(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		middleware.WriteAPISuccess(w, r, ref)
	case http.MethodPut:
		h.updateRefund(w, r, ref)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) loadRefund(w http.ResponseWriter, r *http.Request) (*data.DropoutRefund, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Refund ID must be a positive integer", "")
		return nil, false
	}

	ref, err := h.refunds.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Refund not found", "")
		return nil, false
	}
	if err != nil {
		logger.LogError("Failed to load refund %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load refund", "")
		return nil, false
	}
	return ref, true
}

func (h *Handler) updateRefund(w http.ResponseWriter, r *http.Request, ref *data.DropoutRefund) {
	var req struct {
		Amount       *float64 `json:"amount"`
		Instructions *string  `json:"instructions"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}
	if ref.Status == data.RefundCancelled {
		middleware.WriteAPIError(w, r, http.StatusConflict, "refund_cancelled", "Cancelled refunds cannot be edited", "")
		return
	}

	if req.Amount != nil {
		if *req.Amount < 0 {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_amount", "Refund amount cannot be negative", "")
			return
		}
		if err := h.refunds.UpdateAmount(ref.ID, *req.Amount); err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update refund", "")
			return
		}
		ref.RefundAmount = *req.Amount

		// Keep the ledger row in step when already processed
		if ref.Status == data.RefundProcessed {
			payment, err := h.payments.GetByRefundID(ref.ID)
			if errors.Is(err, data.ErrNotFound) {
				logger.LogWarn("Refund %d is processed but has no linked payment", ref.ID)
			} else if err != nil {
				middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load linked payment", "")
				return
			} else if err := h.payments.UpdateAmount(payment.ID, -*req.Amount); err != nil {
				middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update linked payment", "")
				return
			}
		}
	}

	if req.Instructions != nil {
		if err := h.refunds.UpdateInstructions(ref.ID, *req.Instructions); err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update refund", "")
			return
		}
		ref.Instructions = *req.Instructions
	}

	logger.LogInfo("Refund %d updated", ref.ID)
	middleware.WriteAPISuccess(w, r, ref)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// ProcessHandler marks a pending refund processed and writes the negative
// payment row that actually moves the balance.
func (h *Handler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	ref, ok := h.loadRefund(w, r)
	if !ok {
		return
	}
	if ref.Status != data.RefundPending {
		middleware.WriteAPIError(w, r, http.StatusConflict, "invalid_transition",
			"Only pending refunds can be processed", string(ref.Status))
		return
	}

	now := time.Now()
	payment := &data.Payment{
		PlayerID: ref.PlayerID,
		Amount:   -ref.RefundAmount,
		Method:   "refund",
		Date:     now,
		Notes:    "Dropout refund for session " + strconv.FormatInt(ref.SessionID, 10),
		RefundID: &ref.ID,
	}
	if err := h.refunds.Process(ref, payment, now); err != nil {
		logger.LogError("Failed to process refund %d: %v", ref.ID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to process refund", "")
		return
	}

	ref.Status = data.RefundProcessed
	ref.ProcessedDate = &now
	logger.LogInfo("Refund %d processed: player %d amount %.2f", ref.ID, ref.PlayerID, ref.RefundAmount)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"refund":  ref,
		"payment": payment,
	})
}

// CancelHandler cancels a pending or processed refund. For a processed
// refund the linked payment is removed so the player's balance returns to
// its pre-refund value.
func (h *Handler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	ref, ok := h.loadRefund(w, r)
	if !ok {
		return
	}
	if ref.Status == data.RefundCancelled {
		middleware.WriteAPIError(w, r, http.StatusConflict, "invalid_transition", "Refund is already cancelled", "")
		return
	}

	removed, err := h.refunds.Cancel(ref.ID)
	if err != nil {
		logger.LogError("Failed to cancel refund %d: %v", ref.ID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to cancel refund", "")
		return
	}
	if ref.Status == data.RefundProcessed && !removed {
		logger.LogWarn("Refund %d cancelled but no linked payment was found", ref.ID)
	}

	ref.Status = data.RefundCancelled
	ref.ProcessedDate = nil
	logger.LogInfo("Refund %d cancelled", ref.ID)
	middleware.WriteAPISuccess(w, r, ref)
}
