// internal/payment/payment.go
package payment

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves the payment-ledger endpoints. Refund payments (negative
// rows carrying a refund_id) are created and removed through the refund
// lifecycle, never directly here.
type Handler struct {
	payments    *data.PaymentRepository
	players     *data.PlayerRepository
	attendances *data.AttendanceRepository
}

func NewHandler(payments *data.PaymentRepository, players *data.PlayerRepository, attendances *data.AttendanceRepository) *Handler {
	return &Handler{payments: payments, players: players, attendances: attendances}
}

// =============================================================================
// LEDGER
// =============================================================================

// outstandingRow is one player's position in the balance ranking.
type outstandingRow struct {
	PlayerID      int64  `json:"player_id"`
	Name          string `json:"name"`
	TotalCharges  string `json:"total_charges"`
	TotalPayments string `json:"total_payments"`
	Balance       string `json:"balance"`
}

// PaymentsHandler handles GET (ledger) and POST (record payment) on
// /api/payments. GET with ?player_id= narrows to one player.
func (h *Handler) PaymentsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listPayments(w, r)
	case http.MethodPost:
		h.createPayment(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	if playerID, err := strconv.ParseInt(r.URL.Query().Get("player_id"), 10, 64); err == nil && playerID > 0 {
		if !middleware.IsPlayerAdmin(r.Context()) && middleware.CallerPlayerID(r.Context()) != playerID {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Cannot view another player's payments", "")
			return
		}
		payments, err := h.payments.ForPlayer(playerID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load payments", "")
			return
		}
		middleware.WriteAPISuccess(w, r, map[string]interface{}{
			"payments": payments,
			"count":    len(payments),
		})
		return
	}

	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	payments, err := h.payments.List()
	if err != nil {
		logger.LogError("Failed to list payments: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load payments", "")
		return
	}
	collected, err := h.payments.SumAll()
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load payments", "")
		return
	}

	outstanding, err := h.OutstandingBalances()
	if err != nil {
		logger.LogError("Failed to compute balances: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to compute balances", "")
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"payments":        payments,
		"count":           len(payments),
		"total_collected": strconv.FormatFloat(collected, 'f', 2, 64),
		"outstanding":     outstanding,
	})
}

// OutstandingBalances recomputes every active player's position and
// returns those who owe money, biggest debt first.
func (h *Handler) OutstandingBalances() ([]outstandingRow, error) {
	players, err := h.players.List("", "")
	if err != nil {
		return nil, err
	}

	var result []outstandingRow
	for _, p := range players {
		if !p.IsActive {
			continue
		}
		rows, err := h.attendances.ChargeRowsForPlayer(p.ID)
		if err != nil {
			return nil, err
		}
		payments, err := h.payments.ForPlayer(p.ID)
		if err != nil {
			return nil, err
		}
		pb := costing.ComputePlayerBalance(rows, payments)
		if pb.Balance.Sign() <= 0 {
			continue
		}
		result = append(result, outstandingRow{
			PlayerID:      p.ID,
			Name:          p.Name,
			TotalCharges:  pb.TotalCharges.StringFixed(2),
			TotalPayments: pb.TotalPayments.StringFixed(2),
			Balance:       pb.Balance.StringFixed(2),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Balance == result[j].Balance {
			return result[i].Name < result[j].Name
		}
		// StringFixed(2) sorts wrong lexically, compare numerically
		bi, _ := strconv.ParseFloat(result[i].Balance, 64)
		bj, _ := strconv.ParseFloat(result[j].Balance, 64)
		return bi > bj
	})
	return result, nil
}

type createPaymentRequest struct {
	PlayerID int64   `json:"player_id"`
	Amount   float64 `json:"amount"`
	Method   string  `json:"method"`
	Date     string  `json:"date"`
	Notes    string  `json:"notes"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req createPaymentRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	// Manually entered payments must be positive; negative rows exist
	// only as refund counterparts.
	if req.Amount <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_amount", "Payment amount must be positive", "")
		return
	}
	if _, err := h.players.GetByID(req.PlayerID); err != nil {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := data.ParseDate(req.Date)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_date", "Date must be YYYY-MM-DD", req.Date)
			return
		}
		date = parsed
	}

	p := &data.Payment{
		PlayerID: req.PlayerID,
		Amount:   req.Amount,
		Method:   req.Method,
		Date:     date,
		Notes:    req.Notes,
	}
	if err := h.payments.Insert(p); err != nil {
		logger.LogError("Failed to record payment: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to record payment", "")
		return
	}

	logger.LogInfo("Payment recorded: player %d amount %.2f via %s (ID %d)", p.PlayerID, p.Amount, p.Method, p.ID)
	middleware.WriteAPISuccess(w, r, p)
}

// PaymentHandler handles DELETE on a single payment via ?id=.
func (h *Handler) PaymentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Payment ID must be a positive integer", "")
		return
	}

	p, err := h.payments.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Payment not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load payment", "")
		return
	}
	if p.RefundID != nil {
		middleware.WriteAPIError(w, r, http.StatusConflict, "refund_linked",
			"This payment belongs to a refund; cancel the refund instead", "")
		return
	}

	if err := h.payments.Delete(id); err != nil {
		logger.LogError("Failed to delete payment %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to delete payment", "")
		return
	}
	logger.LogInfo("Payment %d deleted", id)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"deleted": id})
}
