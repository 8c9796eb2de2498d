// internal/player/player.go
package player

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
	"bcbackend/internal/security"
)

// Handler serves the player roster endpoints.
type Handler struct {
	players     *data.PlayerRepository
	attendances *data.AttendanceRepository
	payments    *data.PaymentRepository
}

func NewHandler(players *data.PlayerRepository, attendances *data.AttendanceRepository, payments *data.PaymentRepository) *Handler {
	return &Handler{players: players, attendances: attendances, payments: payments}
}

// playerDetail is a player plus their recomputed financial position.
type playerDetail struct {
	data.Player
	TotalCharges  string `json:"total_charges"`
	TotalPayments string `json:"total_payments"`
	Balance       string `json:"balance"`
}

func (h *Handler) detailFor(p *data.Player) (*playerDetail, error) {
	rows, err := h.attendances.ChargeRowsForPlayer(p.ID)
	if err != nil {
		return nil, err
	}
	payments, err := h.payments.ForPlayer(p.ID)
	if err != nil {
		return nil, err
	}
	pb := costing.ComputePlayerBalance(rows, payments)
	return &playerDetail{
		Player:        *p,
		TotalCharges:  pb.TotalCharges.StringFixed(2),
		TotalPayments: pb.TotalPayments.StringFixed(2),
		Balance:       pb.Balance.StringFixed(2),
	}, nil
}

// =============================================================================
// ROSTER (admin)
// =============================================================================

// PlayersHandler handles GET (list) and POST (create) on /api/players.
func (h *Handler) PlayersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listPlayers(w, r)
	case http.MethodPost:
		h.createPlayer(w, r)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) listPlayers(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	category := data.PlayerCategory(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_category", "Unknown player category", string(category))
		return
	}

	players, err := h.players.List(category, r.URL.Query().Get("search"))
	if err != nil {
		logger.LogError("Failed to list players: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load players", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"players": players,
		"count":   len(players),
	})
}

type createPlayerRequest struct {
	Name            string `json:"name"`
	Category        string `json:"category"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ZellePreference string `json:"zelle_preference"`
	ManagedBy       *int64 `json:"managed_by"`
	IsAdmin         bool   `json:"is_admin"`
}

func (h *Handler) createPlayer(w http.ResponseWriter, r *http.Request) {
	if !middleware.RequireAdmin(w, r) {
		return
	}

	var req createPlayerRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_name", "Player name is required", "")
		return
	}

	p := &data.Player{
		Name:            strings.TrimSpace(req.Name),
		Category:        data.PlayerCategory(req.Category),
		Phone:           strings.TrimSpace(req.Phone),
		Email:           strings.TrimSpace(req.Email),
		ZellePreference: data.ZellePreference(req.ZellePreference),
		IsAdmin:         req.IsAdmin,
		IsActive:        true,
		IsApproved:      true,
	}
	if p.Category != "" && !p.Category.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_category", "Unknown player category", req.Category)
		return
	}
	if p.ZellePreference != "" && !p.ZellePreference.Valid() {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_zelle_preference", "Zelle preference must be email or phone", req.ZellePreference)
		return
	}

	if req.ManagedBy != nil {
		manager, err := h.players.GetByID(*req.ManagedBy)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_manager", "Managing player does not exist", "")
			return
		}
		if manager.ManagedBy != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_manager", "A managed player cannot manage others", "")
			return
		}
		p.ManagedBy = req.ManagedBy
	}

	if req.Password != "" {
		hash, err := security.HashPassword(req.Password)
		if err != nil {
			logger.LogError("Failed to hash password: %v", err)
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "hash_error", "Failed to store password", "")
			return
		}
		p.PasswordHash = hash
	}

	if err := h.players.Insert(p); err != nil {
		logger.LogError("Failed to create player: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to create player", "")
		return
	}

	logger.LogInfo("Player created: %s (ID %d)", p.Name, p.ID)
	middleware.WriteAPISuccess(w, r, p)
}

// PlayerHandler handles GET/PUT/DELETE on a single player via ?id=.
func (h *Handler) PlayerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Player ID must be a positive integer", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getPlayer(w, r, id)
	case http.MethodPut:
		h.updatePlayer(w, r, id)
	case http.MethodDelete:
		h.deletePlayer(w, r, id)
	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

func (h *Handler) getPlayer(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := h.players.GetByID(id)
	if err == nil && !middleware.IsPlayerAdmin(r.Context()) {
		callerID := middleware.CallerPlayerID(r.Context())
		if callerID != id && !(p.ManagedBy != nil && *p.ManagedBy == callerID) {
			middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Cannot view another player", "")
			return
		}
	}
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		logger.LogError("Failed to load player %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load player", "")
		return
	}

	detail, err := h.detailFor(p)
	if err != nil {
		logger.LogError("Failed to compute balance for player %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to compute balance", "")
		return
	}
	middleware.WriteAPISuccess(w, r, detail)
}

type updatePlayerRequest struct {
	Name            *string `json:"name"`
	Phone           *string `json:"phone"`
	Email           *string `json:"email"`
	ZellePreference *string `json:"zelle_preference"`
	ManagedBy       *int64  `json:"managed_by"`
	ClearManagedBy  bool    `json:"clear_managed_by"`
	IsActive        *bool   `json:"is_active"`
	IsApproved      *bool   `json:"is_approved"`
}

func (h *Handler) updatePlayer(w http.ResponseWriter, r *http.Request, id int64) {
	if !middleware.RequireAdmin(w, r) {
		return
	}

	p, err := h.players.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load player", "")
		return
	}

	var req updatePlayerRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_name", "Player name cannot be empty", "")
			return
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		p.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		p.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.ZellePreference != nil {
		pref := data.ZellePreference(*req.ZellePreference)
		if pref != "" && !pref.Valid() {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_zelle_preference", "Zelle preference must be email or phone", *req.ZellePreference)
			return
		}
		p.ZellePreference = pref
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.IsApproved != nil {
		p.IsApproved = *req.IsApproved
	}
	if req.ClearManagedBy {
		p.ManagedBy = nil
	} else if req.ManagedBy != nil {
		if *req.ManagedBy == id {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_manager", "A player cannot manage themselves", "")
			return
		}
		manager, err := h.players.GetByID(*req.ManagedBy)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_manager", "Managing player does not exist", "")
			return
		}
		if manager.ManagedBy != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_manager", "A managed player cannot manage others", "")
			return
		}
		p.ManagedBy = req.ManagedBy
	}

	if err := h.players.Update(p); err != nil {
		logger.LogError("Failed to update player %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update player", "")
		return
	}
	middleware.WriteAPISuccess(w, r, p)
}

func (h *Handler) deletePlayer(w http.ResponseWriter, r *http.Request, id int64) {
	if !middleware.RequireAdmin(w, r) {
		return
	}

	err := h.players.Delete(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		logger.LogError("Failed to delete player %d: %v", id, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to delete player", "")
		return
	}
	logger.LogInfo("Player %d deleted", id)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"deleted": id})
}

// ToggleAdminHandler flips a player's admin flag.
func (h *Handler) ToggleAdminHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequireAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Player ID must be a positive integer", "")
		return
	}

	p, err := h.players.GetByID(id)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load player", "")
		return
	}

	p.IsAdmin = !p.IsAdmin
	if err := h.players.Update(p); err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update player", "")
		return
	}
	logger.LogInfo("Player %d admin flag set to %t", id, p.IsAdmin)
	middleware.WriteAPISuccess(w, r, p)
}

// CategoryHandler changes a player's base category. Past attendance keeps
// its snapshotted category; only future sign-ups pick up the new one.
func (h *Handler) CategoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequireAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Player ID must be a positive integer", "")
		return
	}

	var req struct {
		Category string `json:"category"`
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

	err = h.players.UpdateCategory(id, category)
	if errors.Is(err, data.ErrNotFound) {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Player not found", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update category", "")
		return
	}
	logger.LogInfo("Player %d base category changed to %s", id, category)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"id": id, "category": category})
}

// ManagedHandler lists the players managed by a given manager.
func (h *Handler) ManagedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_id", "Player ID must be a positive integer", "")
		return
	}
	if !middleware.IsPlayerAdmin(r.Context()) && middleware.CallerPlayerID(r.Context()) != id {
		middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Cannot view another player's managed list", "")
		return
	}

	managed, err := h.players.Managed(id)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load managed players", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"players": managed,
		"count":   len(managed),
	})
}

// =============================================================================
// SELF SERVICE
// =============================================================================

// MeHandler lets a logged-in player view or edit their own profile.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.CallerPlayerID(r.Context())
	if callerID == 0 {
		middleware.WriteAPIError(w, r, http.StatusForbidden, "player_required", "A player login is required", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := h.players.GetByID(callerID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load profile", "")
			return
		}
		detail, err := h.detailFor(p)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to compute balance", "")
			return
		}
		middleware.WriteAPISuccess(w, r, detail)

	case http.MethodPut:
		var req struct {
			Phone           *string `json:"phone"`
			ZellePreference *string `json:"zelle_preference"`
		}
		if err := middleware.ParseJSONRequest(r, &req); err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
			return
		}
		p, err := h.players.GetByID(callerID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load profile", "")
			return
		}
		if req.Phone != nil {
			p.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.ZellePreference != nil {
			pref := data.ZellePreference(*req.ZellePreference)
			if pref != "" && !pref.Valid() {
				middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_zelle_preference", "Zelle preference must be email or phone", *req.ZellePreference)
				return
			}
			p.ZellePreference = pref
		}
		if err := h.players.Update(p); err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update profile", "")
			return
		}
		middleware.WriteAPISuccess(w, r, p)

	default:
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

// PasswordHandler lets a player change their own password.
func (h *Handler) PasswordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	callerID := middleware.CallerPlayerID(r.Context())
	if callerID == 0 {
		middleware.WriteAPIError(w, r, http.StatusForbidden, "player_required", "A player login is required", "")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body", err.Error())
		return
	}
	if len(req.NewPassword) < 8 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters", "")
		return
	}

	p, err := h.players.GetByID(callerID)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to load profile", "")
		return
	}
	if p.PasswordHash != "" && !security.CheckPassword(p.PasswordHash, req.CurrentPassword) {
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "wrong_password", "Current password is incorrect", "")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "hash_error", "Failed to store password", "")
		return
	}
	if err := h.players.UpdatePassword(callerID, hash); err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to update password", "")
		return
	}
	logger.LogInfo("Player %d changed password", callerID)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"updated": true})
}
