// test_helpers.go - shared fixtures for the integration suite
package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bcbackend/internal/attendance"
	"bcbackend/internal/birdie"
	"bcbackend/internal/config"
	"bcbackend/internal/data"
	"bcbackend/internal/info"
	"bcbackend/internal/middleware"
	"bcbackend/internal/payment"
	"bcbackend/internal/player"
	"bcbackend/internal/refund"
	"bcbackend/internal/security"
	"bcbackend/internal/session"
)

// TestSuite provides a live server over a throwaway database.
type TestSuite struct {
	Server *httptest.Server
	Client *http.Client

	Players     *data.PlayerRepository
	Sessions    *data.SessionRepository
	Attendances *data.AttendanceRepository
	Payments    *data.PaymentRepository
	Refunds     *data.RefundRepository
	Birdies     *data.BirdieRepository

	AdminToken string
}

// NewTestSuite opens a fresh database in a temp directory and starts a
// server wired exactly like the production route table.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	testDir := filepath.Join(os.TempDir(), fmt.Sprintf("bctest_%d_%d",
		time.Now().UnixNano(), os.Getpid()))
	require.NoError(t, os.MkdirAll(testDir, 0755))

	dbPath := filepath.Join(testDir, "test.db")
	require.NoError(t, data.InitDB(dbPath))
	require.NoError(t, data.CreateTables())

	os.Setenv("ADMIN_PASSWORD", "test-admin-password")
	require.NoError(t, config.LoadAuthConfig())
	middleware.SetTokenRateLimit(0)

	suite := &TestSuite{
		Client:      &http.Client{Timeout: 30 * time.Second},
		Players:     data.NewPlayerRepository(),
		Sessions:    data.NewSessionRepository(),
		Attendances: data.NewAttendanceRepository(),
		Payments:    data.NewPaymentRepository(),
		Refunds:     data.NewRefundRepository(),
		Birdies:     data.NewBirdieRepository(),
	}

	suite.Server = httptest.NewServer(suite.routes())
	suite.AdminToken = security.GenerateAccessToken(security.RoleAdmin, 0)

	t.Cleanup(func() {
		suite.Server.Close()
		data.CloseDB()
		os.RemoveAll(testDir)
	})

	return suite
}

func (ts *TestSuite) routes() *http.ServeMux {
	playerH := player.NewHandler(ts.Players, ts.Attendances, ts.Payments)
	sessionH := session.NewHandler(ts.Sessions, ts.Refunds)
	attendanceH := attendance.NewHandler(ts.Attendances, ts.Sessions, ts.Players)
	paymentH := payment.NewHandler(ts.Payments, ts.Players, ts.Attendances)
	refundH := refund.NewHandler(ts.Refunds, ts.Payments, ts.Sessions, ts.Players)
	birdieH := birdie.NewHandler(ts.Birdies, ts.Sessions)
	infoH := info.NewHandler(ts.Players, ts.Sessions, ts.Payments, ts.Attendances, ts.Birdies)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", middleware.PublicMiddleware(security.LoginHandler(ts.Players)))
	mux.HandleFunc("/api/players", middleware.APIMiddleware(playerH.PlayersHandler))
	mux.HandleFunc("/api/player", middleware.APIMiddleware(playerH.PlayerHandler))
	mux.HandleFunc("/api/sessions", middleware.APIMiddleware(sessionH.SessionsHandler))
	mux.HandleFunc("/api/session", middleware.APIMiddleware(sessionH.SessionHandler))
	mux.HandleFunc("/api/session/freeze", middleware.APIMiddleware(sessionH.FreezeHandler))
	mux.HandleFunc("/api/attendance", middleware.APIMiddleware(attendanceH.AttendanceHandler))
	mux.HandleFunc("/api/payments", middleware.APIMiddleware(paymentH.PaymentsHandler))
	mux.HandleFunc("/api/refunds", middleware.APIMiddleware(refundH.RefundsHandler))
	mux.HandleFunc("/api/refund", middleware.APIMiddleware(refundH.RefundHandler))
	mux.HandleFunc("/api/refund/process", middleware.APIMiddleware(refundH.ProcessHandler))
	mux.HandleFunc("/api/refund/cancel", middleware.APIMiddleware(refundH.CancelHandler))
	mux.HandleFunc("/api/birdies", middleware.APIMiddleware(birdieH.BirdiesHandler))
	mux.HandleFunc("/api/birdies/summary", middleware.APIMiddleware(birdieH.SummaryHandler))
	mux.HandleFunc("/api/dashboard", middleware.APIMiddleware(infoH.DashboardHandler))
	return mux
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// DoJSON sends a request with the admin token and decodes the standard
// envelope into out (which may be nil).
func (ts *TestSuite) DoJSON(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", ts.AdminToken)

	resp, err := ts.Client.Do(req)
	require.NoError(t, err)

	if out != nil {
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return resp
}

// =============================================================================
// FIXTURES
// =============================================================================

// CreatePlayer inserts an active, approved player directly.
func (ts *TestSuite) CreatePlayer(t *testing.T, name string, category data.PlayerCategory) *data.Player {
	t.Helper()

	p := &data.Player{
		Name:       name,
		Category:   category,
		IsActive:   true,
		IsApproved: true,
	}
	require.NoError(t, ts.Players.Insert(p))
	return p
}

// CreateSession inserts a session with the given courts for a date a week out.
func (ts *TestSuite) CreateSession(t *testing.T, birdieCost float64, courts ...data.Court) *data.Session {
	t.Helper()

	s := &data.Session{
		Date:       time.Now().AddDate(0, 0, 7),
		BirdieCost: birdieCost,
		Courts:     courts,
	}
	require.NoError(t, ts.Sessions.Insert(s))
	return s
}

// SignUp records a YES vote directly through the repository.
func (ts *TestSuite) SignUp(t *testing.T, p *data.Player, s *data.Session) *data.Attendance {
	t.Helper()

	a, err := ts.Attendances.Upsert(p.ID, s.ID, data.StatusYes, "", p.Category)
	require.NoError(t, err)
	return a
}
