// internal/security/security.go
package security

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bcbackend/internal/config"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
)

// =============================================================================
// ACCESS TOKENS
// =============================================================================

// Roles carried by an access token. Admin sees everything, a player admin
// can manage sessions and attendance, a plain player only their own data.
const (
	RoleAdmin       = "admin"
	RolePlayerAdmin = "player_admin"
	RolePlayer      = "player"
)

// TokenInfo is what a valid token resolves to.
type TokenInfo struct {
	Role     string
	PlayerID int64 // 0 for the shared admin login
	Expiry   time.Time
}

var (
	accessTokens   = make(map[string]TokenInfo)
	accessTokensMu sync.Mutex
)

// GenerateAccessToken mints a token for the given role and registers it.
func GenerateAccessToken(role string, playerID int64) string {
	token := uuid.NewString()

	accessTokensMu.Lock()
	accessTokens[token] = TokenInfo{
		Role:     role,
		PlayerID: playerID,
		Expiry:   time.Now().Add(config.TokenTTL()),
	}
	accessTokensMu.Unlock()

	return token
}

// ValidateAccessToken reports whether the token exists and has not expired.
func ValidateAccessToken(token string) bool {
	_, ok := GetTokenInfo(token)
	return ok
}

// GetTokenInfo returns the info behind a token, or ok=false if the token is
// unknown or expired. Expired tokens are removed on sight.
func GetTokenInfo(token string) (TokenInfo, bool) {
	accessTokensMu.Lock()
	defer accessTokensMu.Unlock()

	info, ok := accessTokens[token]
	if !ok {
		return TokenInfo{}, false
	}
	if time.Now().After(info.Expiry) {
		delete(accessTokens, token)
		return TokenInfo{}, false
	}
	return info, true
}

// RevokeToken drops a token immediately (logout).
func RevokeToken(token string) {
	accessTokensMu.Lock()
	delete(accessTokens, token)
	accessTokensMu.Unlock()
}

// CleanExpiredTokens periodically cleans up expired access tokens.
func CleanExpiredTokens() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for range ticker.C {
		removed := 0
		accessTokensMu.Lock()
		for token, info := range accessTokens {
			if time.Now().After(info.Expiry) {
				delete(accessTokens, token)
				removed++
			}
		}
		accessTokensMu.Unlock()
		if removed > 0 {
			logger.LogInfo("Access token cleanup completed, removed %d expired", removed)
		}
	}
}

// =============================================================================
// PASSWORDS
// =============================================================================

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

type loginRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	Role        string       `json:"role"`
	ExpiresAt   string       `json:"expires_at"`
	Player      *data.Player `json:"player,omitempty"`
}

var errInvalidCredentials = errors.New("invalid credentials")

// LoginHandler issues an access token. Two modes share the endpoint: the
// shared admin password (no email), or a player's email plus password.
func LoginHandler(players *data.PlayerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.LogHTTPRequest(r)

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		resp, err := authenticate(players, req)
		if err != nil {
			logger.LogWarn("Failed login attempt from %s", logger.GetClientIP(r))
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func authenticate(players *data.PlayerRepository, req loginRequest) (*loginResponse, error) {
	if req.Email == "" {
		if req.Password == "" || req.Password != config.AdminPassword() {
			return nil, errInvalidCredentials
		}
		token := GenerateAccessToken(RoleAdmin, 0)
		info, _ := GetTokenInfo(token)
		logger.LogInfo("Admin login successful")
		return &loginResponse{
			AccessToken: token,
			Role:        RoleAdmin,
			ExpiresAt:   info.Expiry.Format(time.RFC3339),
		}, nil
	}

	player, err := players.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, errInvalidCredentials
	}
	if !player.IsActive || !player.IsApproved {
		return nil, errInvalidCredentials
	}
	if player.PasswordHash == "" || !CheckPassword(player.PasswordHash, req.Password) {
		return nil, errInvalidCredentials
	}

	role := RolePlayer
	if player.IsAdmin {
		role = RolePlayerAdmin
	}
	token := GenerateAccessToken(role, player.ID)
	info, _ := GetTokenInfo(token)
	logger.LogInfo("Player login successful: %s (ID %d)", player.Name, player.ID)
	return &loginResponse{
		AccessToken: token,
		Role:        role,
		ExpiresAt:   info.Expiry.Format(time.RFC3339),
		Player:      player,
	}, nil
}

// LogoutHandler revokes the caller's token.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.Header.Get("X-Access-Token")
	if token != "" {
		RevokeToken(token)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "logged out"})
}

// =============================================================================
// CORS
// =============================================================================

// AddCORSHeaders adds CORS headers and handles OPTIONS requests globally.
func AddCORSHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", config.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Access-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
