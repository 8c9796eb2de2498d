// internal/attendance/attendance.go
package attendance

import (
	"errors"
	"net/http"
	"strconv"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves attendance sign-up and status endpoints.
type Handler struct {
	attendances *data.AttendanceRepository
	sessions    *data.SessionRepository
	players     *data.PlayerRepository
}

func NewHandler(attendances *data.AttendanceRepository, sessions *data.SessionRepository, players *data.PlayerRepository) *Handler {
	return &Handler{attendances: attendances, sessions: sessions, players: players}
}

// =============================================================================
// SIGN-UP / STATUS CHANGE
// =============================================================================

type upsertRequest struct {
	PlayerID  int64  `json:"player_id"`
	SessionID int64  `json:"session_id"`
	Status    string `json:"status"`
	Category  string `json:"category"`
}

// upsertResponse returns the stored attendance plus the fresh session
// figures so clients can show the new cost immediately.
type upsertResponse struct {
	Attendance    *data.Attendance `json:"attendance"`
	AttendeeCount int              `json:"attendee_count"`
	CostPerPlayer string           `json:"cost_per_player"`
}

// AttendanceHandler handles POST (upsert) and GET (list) on /api/attendance.
func (h *Handler) AttendanceHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.upsert(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	status := data.AttendanceStatus(req.Status)
	if !status.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_status", "Unknown attendance status", req.Status)
		return
	}
	if req.PlayerID <= 0 || req.SessionID <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "player_id and session_id are required", "")
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

	target, err := h.players.GetByID(req.PlayerID)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load player", "")
		return
	}

	isAdmin := middleware.IsPlayerAdmin(r.Context())
	if !isAdmin {
		if s.IsArchived {
			middleware.WriteAPIError(w, r, http.StatusConflict, "session_archived", "Session is archived", "")
			return
		}
		if s.VotingFrozen {
			middleware.WriteAPIError(w, r, http.StatusConflict, "voting_frozen", "Voting is frozen for this session", "")
			return
		}
		if !status.SelfServiceAllowed() {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "admin_status", "Only admins can set this status", req.Status)
			return
		}
		callerID := middleware.CallerPlayerID(r.Context())
		if callerID != req.PlayerID && !isManagedBy(target, callerID) {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Cannot change another player's attendance", "")
			return
		}
	}

	// Category defaults to the player's current base category on first
	// sign-up and is left untouched on later changes unless supplied.
	category := data.PlayerCategory(req.Category)
	if category != "" {
		if !category.Valid() {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_category", "Unknown player category", req.Category)
			return
		}
		if !isAdmin {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "admin_status", "Only admins can override the charged category", "")
			return
		}
	}
	a, err := h.attendances.Upsert(req.PlayerID, req.SessionID, status, category, target.Category)
	if err != nil {
		logger.LogError("Failed to upsert attendance (player %d, session %d): %v", req.PlayerID, req.SessionID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to record attendance", "")
		return
	}

	// Reload for fresh counts after the write
	s, err = h.sessions.GetByID(req.SessionID)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to reload session", "")
		return
	}
	b := costing.ComputeBreakdown(s)

	logger.LogInfo("Attendance recorded: player %d session %d status %s", req.PlayerID, req.SessionID, status)
	middleware.WriteAPISuccess(w, r, upsertResponse{
		Attendance:    a,
		AttendeeCount: b.AttendeeCount,
		CostPerPlayer: b.CostPerPlayer.StringFixed(2),
	})
}

func isManagedBy(target *data.Player, callerID int64) bool {
	return callerID != 0 && target.ManagedBy != nil && *target.ManagedBy == callerID
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if sessionID, err := strconv.ParseInt(r.URL.Query().Get("session_id"), 10, 64); err == nil && sessionID > 0 {
		attendances, err := h.attendances.ForSession(sessionID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load attendance", "")
			return
		}
		middleware.WriteAPISuccess(w, r, map[string]interface{}{
			"attendances": attendances,
			"count":       len(attendances),
		})
		return
	}

	if playerID, err := strconv.ParseInt(r.URL.Query().Get("player_id"), 10, 64); err == nil && playerID > 0 {
		if !middleware.IsPlayerAdmin(r.Context()) && middleware.CallerPlayerID(r.Context()) != playerID {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Cannot view another player's history", "")
			return
		}
		attendances, err := h.attendances.ForPlayer(playerID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load attendance", "")
			return
		}
		middleware.WriteAPISuccess(w, r, map[string]interface{}{
			"attendances": attendances,
			"count":       len(attendances),
		})
		return
	}

	middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_filter", "session_id or player_id is required", "")
}

// =============================================================================
// CATEGORY OVERRIDE
// =============================================================================

// CategoryHandler changes the charged category on one attendance record.
// This is the per-session override; the player's base category is not
// touched.
func (h *Handler) CategoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	var req struct {
		PlayerID  int64  `json:"player_id"`
		SessionID int64  `json:"session_id"`
		Category  string `json:"category"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	category := data.PlayerCategory(req.Category)
	if !category.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_category", "Unknown player category", req.Category)
		return
	}

	err := h.attendances.UpdateCategory(req.PlayerID, req.SessionID, category)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Attendance record not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update category", "")
		return
	}

	a, err := h.attendances.GetByPlayerAndSession(req.PlayerID, req.SessionID)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to reload attendance", "")
		return
	}
	logger.LogInfo("Attendance category override: player %d session %d now %s", req.PlayerID, req.SessionID, category)
	middleware.WriteAPISuccess(w, r, a)
}
