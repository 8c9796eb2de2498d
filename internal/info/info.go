// internal/info/info.go
package info

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"bcbackend/internal/costing"
	"bcbackend/internal/data"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
)

// Handler serves the admin dashboard summary.
type Handler struct {
	players     *data.PlayerRepository
	sessions    *data.SessionRepository
	payments    *data.PaymentRepository
	attendances *data.AttendanceRepository
	birdies     *data.BirdieRepository
}

func NewHandler(players *data.PlayerRepository, sessions *data.SessionRepository, payments *data.PaymentRepository, attendances *data.AttendanceRepository, birdies *data.BirdieRepository) *Handler {
	return &Handler{players: players, sessions: sessions, payments: payments, attendances: attendances, birdies: birdies}
}

type recentSession struct {
	ID            int64  `json:"id"`
	Date          string `json:"date"`
	When          string `json:"when"`
	AttendeeCount int    `json:"attendee_count"`
	TotalCost     string `json:"total_cost"`
}

type recentPayment struct {
	ID       int64   `json:"id"`
	PlayerID int64   `json:"player_id"`
	Amount   float64 `json:"amount"`
	Method   string  `json:"method"`
	When     string  `json:"when"`
}

type dashboard struct {
	PlayerCount      int             `json:"player_count"`
	UpcomingSessions int             `json:"upcoming_sessions"`
	TotalCollected   string          `json:"total_collected"`
	TotalOutstanding string          `json:"total_outstanding"`
	BirdieStock      int             `json:"birdie_stock"`
	RecentSessions   []recentSession `json:"recent_sessions"`
	RecentPayments   []recentPayment `json:"recent_payments"`
	GeneratedAt      string          `json:"generated_at"`
}

const recentLimit = 5

// DashboardHandler assembles the club overview. Everything here is
// recomputed per request; nothing is cached.
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !middleware.RequirePlayerAdmin(w, r) {
		return
	}

	d := dashboard{GeneratedAt: time.Now().Format(time.RFC3339)}
	var err error

	if d.PlayerCount, err = h.players.Count(); err != nil {
		h.fail(w, r, "player count", err)
		return
	}
	if d.UpcomingSessions, err = h.sessions.CountUpcoming(time.Now()); err != nil {
		h.fail(w, r, "upcoming sessions", err)
		return
	}
	collected, err := h.payments.SumAll()
	if err != nil {
		h.fail(w, r, "collected total", err)
		return
	}
	d.TotalCollected = formatMoney(collected)

	outstanding, err := h.totalOutstanding()
	if err != nil {
		h.fail(w, r, "outstanding total", err)
		return
	}
	d.TotalOutstanding = outstanding

	if d.BirdieStock, err = h.birdies.CurrentStock(); err != nil {
		h.fail(w, r, "birdie stock", err)
		return
	}

	if d.RecentSessions, err = h.recentSessions(); err != nil {
		h.fail(w, r, "recent sessions", err)
		return
	}
	if d.RecentPayments, err = h.recentPayments(); err != nil {
		h.fail(w, r, "recent payments", err)
		return
	}

	middleware.WriteAPISuccess(w, r, d)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	logger.LogError("Dashboard: failed to load %s: %v", what, err)
	middleware.WriteAPIError(w, r, http.StatusInternalServerError, "db_error", "Failed to build dashboard", "")
}

// totalOutstanding sums the positive balances over all active players.
func (h *Handler) totalOutstanding() (string, error) {
	players, err := h.players.List("", "")
	if err != nil {
		return "", err
	}

	total := decimal.Zero
	for _, p := range players {
		if !p.IsActive {
			continue
		}
		rows, err := h.attendances.ChargeRowsForPlayer(p.ID)
		if err != nil {
			return "", err
		}
		payments, err := h.payments.ForPlayer(p.ID)
		if err != nil {
			return "", err
		}
		pb := costing.ComputePlayerBalance(rows, payments)
		if pb.Balance.Sign() > 0 {
			total = total.Add(pb.Balance)
		}
	}
	return total.StringFixed(2), nil
}

func (h *Handler) recentSessions() ([]recentSession, error) {
	sessions, err := h.sessions.List(true)
	if err != nil {
		return nil, err
	}
	if len(sessions) > recentLimit {
		sessions = sessions[:recentLimit]
	}

	result := make([]recentSession, 0, len(sessions))
	for _, s := range sessions {
		full, err := h.sessions.GetByID(s.ID)
		if err != nil {
			return nil, err
		}
		b := costing.ComputeBreakdown(full)
		result = append(result, recentSession{
			ID:            s.ID,
			Date:          s.DateString,
			When:          humanize.Time(s.Date),
			AttendeeCount: b.AttendeeCount,
			TotalCost:     b.TotalCost.StringFixed(2),
		})
	}
	return result, nil
}

func (h *Handler) recentPayments() ([]recentPayment, error) {
	payments, err := h.payments.Recent(recentLimit)
	if err != nil {
		return nil, err
	}

	result := make([]recentPayment, 0, len(payments))
	for _, p := range payments {
		result = append(result, recentPayment{
			ID:       p.ID,
			PlayerID: p.PlayerID,
			Amount:   p.Amount,
			Method:   p.Method,
			When:     humanize.Time(p.Date),
		})
	}
	return result, nil
}

func formatMoney(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
