// internal/birdie/birdie.go
package birdie

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves the birdie inventory: purchases add tubes to stock,
// usage entries consume them, and the current stock is always the
// difference of the two.
type Handler struct {
	birdies  *data.BirdieRepository
	sessions *data.SessionRepository
}

func NewHandler(birdies *data.BirdieRepository, sessions *data.SessionRepository) *Handler {
	return &Handler{birdies: birdies, sessions: sessions}
}

type recordRequest struct {
	Type      string  `json:"transaction_type"`
	Quantity  int     `json:"quantity"`
	Cost      float64 `json:"cost"`
	Date      string  `json:"date"`
	Notes     string  `json:"notes"`
	SessionID *int64  `json:"session_id"`
}

// BirdiesHandler handles GET (list) and POST (record) on /api/birdies.
func (h *Handler) BirdiesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.record(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.birdies.List()
	if err != nil {
		logger.LogError("Failed to list birdie transactions: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load birdie transactions", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req recordRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	txType := data.BirdieTransactionType(req.Type)
	if !txType.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_type", "Transaction type must be purchase or usage", req.Type)
		return
	}
	if req.Quantity <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_quantity", "Quantity must be positive", "")
		return
	}
	if req.Cost < 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_cost", "Cost cannot be negative", "")
		return
	}
	if txType == data.BirdieUsage && req.Cost != 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_cost", "Usage entries carry no cost", "")
		return
	}
	if req.SessionID != nil {
		if _, err := h.sessions.GetByID(*req.SessionID); err != nil {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
			return
		}
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

	tx := &data.BirdieTransaction{
		Date:      date,
		Type:      txType,
		Quantity:  req.Quantity,
		Cost:      req.Cost,
		Notes:     req.Notes,
		SessionID: req.SessionID,
	}
	if err := h.birdies.Insert(tx); err != nil {
		logger.LogError("Failed to record birdie transaction: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to record transaction", "")
		return
	}

	logger.LogInfo("Birdie %s recorded: %d tubes (ID %d)", tx.Type, tx.Quantity, tx.ID)
	middleware.WriteAPISuccess(w, r, tx)
}

// BirdieHandler handles DELETE on a single transaction via ?id=.
func (h *Handler) BirdieHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Transaction ID must be a positive integer", "")
		return
	}

	err = h.birdies.Delete(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Transaction not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to delete transaction", "")
		return
	}
	logger.LogInfo("Birdie transaction %d deleted", id)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"deleted": id})
}

// SummaryHandler returns the current stock position.
func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	stock, err := h.birdies.CurrentStock()
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to compute stock", "")
		return
	}
	spent, err := h.birdies.TotalSpent()
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to compute spend", "")
		return
	}

	if stock < 0 {
		logger.LogWarn("Birdie stock is negative (%d), usage exceeds recorded purchases", stock)
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"current_stock": stock,
		"total_spent":   strconv.FormatFloat(spent, 'f', 2, 64),
	})
}
