// internal/session/session.go
package session

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves the play-session endpoints.
type Handler struct {
	sessions *data.SessionRepository
	refunds  *data.RefundRepository
}

func NewHandler(sessions *data.SessionRepository, refunds *data.RefundRepository) *Handler {
	return &Handler{sessions: sessions, refunds: refunds}
}

type courtRequest struct {
	Name      string  `json:"name"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Cost      float64 `json:"cost"`
	CourtType string  `json:"court_type"`
}

type sessionRequest struct {
	Date       string         `json:"date"`
	BirdieCost float64        `json:"birdie_cost"`
	Notes      string         `json:"notes"`
	Courts     []courtRequest `json:"courts"`
}

func buildCourts(reqs []courtRequest) ([]data.Court, error) {
	courts := make([]data.Court, 0, len(reqs))
	for _, c := range reqs {
		if c.Cost < 0 {
			return nil, errors.New("court cost cannot be negative")
		}
		courtType := data.CourtType(c.CourtType)
		if courtType == "" {
			courtType = data.CourtRegular
		}
		if !courtType.Valid() {
			return nil, errors.New("unknown court type: " + c.CourtType)
		}
		courts = append(courts, data.Court{
			Name:      strings.TrimSpace(c.Name),
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Cost:      c.Cost,
			CourtType: courtType,
		})
	}
	return courts, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionsHandler handles GET (list) and POST (create) on /api/sessions.
func (h *Handler) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listSessions(w, r)
	case http.MethodPost:
		h.createSession(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	sessions, err := h.sessions.List(includeArchived)
	if err != nil {
		logger.LogError("Failed to list sessions: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load sessions", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req sessionRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	date, err := data.ParseDate(req.Date)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_date", "Date must be YYYY-MM-DD", req.Date)
		return
	}
	if req.BirdieCost < 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_birdie_cost", "Birdie cost cannot be negative", "")
		return
	}
	courts, err := buildCourts(req.Courts)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_court", err.Error(), "")
		return
	}

	s := &data.Session{
		Date:       date,
		BirdieCost: req.BirdieCost,
		Notes:      req.Notes,
		Courts:     courts,
	}
	if err := h.sessions.Insert(s); err != nil {
		logger.LogError("Failed to create session: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to create session", "")
		return
	}

	logger.LogInfo("Session created for %s with %d courts (ID %d)", s.DateString, len(s.Courts), s.ID)
	middleware.WriteAPISuccess(w, r, s)
}

// SessionHandler handles GET/PUT/DELETE on a single session via ?id=.
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Session ID must be a positive integer", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getSession(w, r, id)
	case http.MethodPut:
		h.updateSession(w, r, id)
	case http.MethodDelete:
		h.deleteSession(w, r, id)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

// sessionDetail is a session with its cost breakdown, all figures
// recomputed at request time.
type sessionDetail struct {
	*data.Session
	Breakdown       breakdownJSON `json:"breakdown"`
	SuggestedRefund string        `json:"suggested_refund"`
	ProcessedRefund string        `json:"processed_refunds"`
}

type breakdownJSON struct {
	TotalCost        string `json:"total_cost"`
	CostPerPlayer    string `json:"cost_per_player"`
	BirdieCostTotal  string `json:"birdie_cost_total"`
	AttendeeCount    int    `json:"attendee_count"`
	DropoutCount     int    `json:"dropout_count"`
	FillinCount      int    `json:"fillin_count"`
	SuggestedCourts  int    `json:"suggested_courts"`
	RegularCharges   string `json:"regular_charges"`
	AdhocCharges     string `json:"adhoc_charges"`
	KidCharges       string `json:"kid_charges"`
	TotalCollection  string `json:"total_collection"`
	RegularCourtCost string `json:"regular_court_cost"`
	AdhocCourtCost   string `json:"adhoc_court_cost"`
}

func toBreakdownJSON(b costing.Breakdown) breakdownJSON {
	return breakdownJSON{
		TotalCost:        b.TotalCost.StringFixed(2),
		CostPerPlayer:    b.CostPerPlayer.StringFixed(2),
		BirdieCostTotal:  b.BirdieCostTotal.StringFixed(2),
		AttendeeCount:    b.AttendeeCount,
		DropoutCount:     b.DropoutCount,
		FillinCount:      b.FillinCount,
		SuggestedCourts:  b.SuggestedCourts,
		RegularCharges:   b.RegularCharges.StringFixed(2),
		AdhocCharges:     b.AdhocCharges.StringFixed(2),
		KidCharges:       b.KidCharges.StringFixed(2),
		TotalCollection:  b.TotalCollection.StringFixed(2),
		RegularCourtCost: b.RegularCourtCost.StringFixed(2),
		AdhocCourtCost:   b.AdhocCourtCost.StringFixed(2),
	}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, id int64) {
	s, err := h.sessions.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	if err != nil {
		logger.LogError("Failed to load session %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load session", "")
		return
	}

	processed, err := h.refunds.SumProcessedForSession(id)
	if err != nil {
		logger.LogError("Failed to sum refunds for session %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load session", "")
		return
	}

	middleware.WriteAPISuccess(w, r, sessionDetail{
		Session:         s,
		Breakdown:       toBreakdownJSON(costing.ComputeBreakdown(s)),
		SuggestedRefund: costing.SuggestedRefund(s).StringFixed(2),
		ProcessedRefund: strconv.FormatFloat(processed, 'f', 2, 64),
	})
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request, id int64) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	s, err := h.sessions.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load session", "")
		return
	}

	var req struct {
		Date       *string  `json:"date"`
		BirdieCost *float64 `json:"birdie_cost"`
		Notes      *string  `json:"notes"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	if req.Date != nil {
		date, err := data.ParseDate(*req.Date)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_date", "Date must be YYYY-MM-DD", *req.Date)
			return
		}
		s.Date = date
		s.DateString = *req.Date
	}
	if req.BirdieCost != nil {
		if *req.BirdieCost < 0 {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_birdie_cost", "Birdie cost cannot be negative", "")
			return
		}
		s.BirdieCost = *req.BirdieCost
	}
	if req.Notes != nil {
		s.Notes = *req.Notes
	}

	if err := h.sessions.Update(s); err != nil {
		logger.LogError("Failed to update session %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update session", "")
		return
	}
	middleware.WriteAPISuccess(w, r, s)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request, id int64) {
	if !middleware.RequireAdmin(w, r) {
		return
	}

	err := h.sessions.Delete(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	if err != nil {
		logger.LogError("Failed to delete session %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to delete session", "")
		return
	}
	logger.LogInfo("Session %d deleted", id)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"deleted": id})
}

// =============================================================================
// ARCHIVE AND FREEZE
// =============================================================================

// ArchiveHandler sets or clears the archived flag via ?id=&archived=.
func (h *Handler) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, "archived", h.sessions.SetArchived)
}

// FreezeHandler sets or clears the voting-frozen flag via ?id=&frozen=.
// While frozen only admins can change attendance.
func (h *Handler) FreezeHandler(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, "frozen", h.sessions.SetVotingFrozen)
}

func (h *Handler) setFlag(w http.ResponseWriter, r *http.Request, param string, set func(int64, bool) error) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Session ID must be a positive integer", "")
		return
	}
	value := r.URL.Query().Get(param) != "false"

	err = set(id, value)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update session", "")
		return
	}
	logger.LogInfo("Session %d %s set to %t", id, param, value)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"id": id, param: value})
}

// =============================================================================
// COURTS
// =============================================================================

// CourtsHandler adds a court to an existing session (POST /api/session/courts).
func (h *Handler) CourtsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req struct {
		SessionID int64 `json:"session_id"`
		courtRequest
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	if _, err := h.sessions.GetByID(req.SessionID); err != nil {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Session not found", "")
		return
	}
	courts, err := buildCourts([]courtRequest{req.courtRequest})
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_court", err.Error(), "")
		return
	}

	court := courts[0]
	court.SessionID = req.SessionID
	if err := h.sessions.InsertCourt(&court); err != nil {
		logger.LogError("Failed to add court to session %d: %v", req.SessionID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to add court", "")
		return
	}
	middleware.WriteAPISuccess(w, r, court)
}

// CourtHandler handles PUT/DELETE on a single court via ?id=.
func (h *Handler) CourtHandler(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Court ID must be a positive integer", "")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req courtRequest
		if err := middleware.ParseJSONRequest(r, &req); err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
			return
		}
		courts, err := buildCourts([]courtRequest{req})
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_court", err.Error(), "")
			return
		}
		court := courts[0]
		court.ID = id
		err = h.sessions.UpdateCourt(&court)
		if errors.Is(err, data.ErrNotFound) {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Court not found", "")
			return
		}
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update court", "")
			return
		}
		middleware.WriteAPISuccess(w, r, court)

	case http.MethodDelete:
		err := h.sessions.DeleteCourt(id)
		if errors.Is(err, data.ErrNotFound) {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Court not found", "")
			return
		}
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to delete court", "")
			return
		}
		middleware.WriteAPISuccess(w, r, map[string]interface{}{"deleted": id})

	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}
