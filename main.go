// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"bcbackend/internal/archive"
	"bcbackend/internal/attendance"
	"bcbackend/internal/birdie"
	"bcbackend/internal/config"
	"bcbackend/internal/data"
	"bcbackend/internal/info"
	"bcbackend/internal/logger"
	"bcbackend/internal/middleware"
	"bcbackend/internal/payment"
	"bcbackend/internal/player"
	"bcbackend/internal/refund"
	"bcbackend/internal/security"
	"bcbackend/internal/session"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	loggerConfig := config.LoggerConfig()
	if err := logger.SetupLogger(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")

	// Step 3: Load auth, CORS and archive settings
	if err := config.LoadAuthConfig(); err != nil {
		logger.LogFatal("Failed to load auth config: %v", err)
	}
	config.LoadCORSConfig()
	config.LoadArchiveConfig()
	config.LogCurrentEnvironment()

	// Step 4: Open database and ensure schema
	if err := data.InitDB(config.DatabasePath()); err != nil {
		logger.LogFatal("Failed to open database: %v", err)
	}
	defer data.CloseDB()
	if err := data.CreateTables(); err != nil {
		logger.LogFatal("Failed to create tables: %v", err)
	}

	// Step 5: Archive catch-up sweep, then the daily routine
	sessions := data.NewSessionRepository()
	archive.RunSweep(sessions)
	archive.StartArchiveRoutine(sessions)

	// Step 6: Setup app
	app := &App{
		addr: serverAddress(),
		mux:  routes(),
	}

	// Step 7: Start background tasks
	go security.CleanExpiredTokens()

	// Step 8: Run server
	app.Run()
}

// serverAddress builds the server address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5051"
	}
	return host + ":" + port
}

// routes sets up all API routes
func routes() *http.ServeMux {
	players := data.NewPlayerRepository()
	sessions := data.NewSessionRepository()
	attendances := data.NewAttendanceRepository()
	payments := data.NewPaymentRepository()
	refunds := data.NewRefundRepository()
	birdies := data.NewBirdieRepository()

	playerH := player.NewHandler(players, attendances, payments)
	sessionH := session.NewHandler(sessions, refunds)
	attendanceH := attendance.NewHandler(attendances, sessions, players)
	paymentH := payment.NewHandler(payments, players, attendances)
	refundH := refund.NewHandler(refunds, payments, sessions, players)
	birdieH := birdie.NewHandler(birdies, sessions)
	infoH := info.NewHandler(players, sessions, payments, attendances, birdies)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	apiMux := http.NewServeMux()

	// Auth
	apiMux.HandleFunc("/login", middleware.PublicMiddleware(security.LoginHandler(players)))
	apiMux.HandleFunc("/logout", middleware.APIMiddleware(security.LogoutHandler))

	// Players
	apiMux.HandleFunc("/players", middleware.APIMiddleware(playerH.PlayersHandler))
	apiMux.HandleFunc("/player", middleware.APIMiddleware(playerH.PlayerHandler))
	apiMux.HandleFunc("/player/toggle-admin", middleware.APIMiddleware(playerH.ToggleAdminHandler))
	apiMux.HandleFunc("/player/category", middleware.APIMiddleware(playerH.CategoryHandler))
	apiMux.HandleFunc("/player/managed", middleware.APIMiddleware(playerH.ManagedHandler))
	apiMux.HandleFunc("/me", middleware.APIMiddleware(playerH.MeHandler))
	apiMux.HandleFunc("/me/password", middleware.APIMiddleware(playerH.PasswordHandler))

	// Sessions and courts
	apiMux.HandleFunc("/sessions", middleware.APIMiddleware(sessionH.SessionsHandler))
	apiMux.HandleFunc("/session", middleware.APIMiddleware(sessionH.SessionHandler))
	apiMux.HandleFunc("/session/archive", middleware.APIMiddleware(sessionH.ArchiveHandler))
	apiMux.HandleFunc("/session/freeze", middleware.APIMiddleware(sessionH.FreezeHandler))
	apiMux.HandleFunc("/session/courts", middleware.APIMiddleware(sessionH.CourtsHandler))
	apiMux.HandleFunc("/court", middleware.APIMiddleware(sessionH.CourtHandler))

	// Attendance
	apiMux.HandleFunc("/attendance", middleware.APIMiddleware(attendanceH.AttendanceHandler))
	apiMux.HandleFunc("/attendance/category", middleware.APIMiddleware(attendanceH.CategoryHandler))

	// Payments
	apiMux.HandleFunc("/payments", middleware.APIMiddleware(paymentH.PaymentsHandler))
	apiMux.HandleFunc("/payment", middleware.APIMiddleware(paymentH.PaymentHandler))

	// Refunds
	apiMux.HandleFunc("/refunds", middleware.APIMiddleware(refundH.RefundsHandler))
	apiMux.HandleFunc("/refund", middleware.APIMiddleware(refundH.RefundHandler))
	apiMux.HandleFunc("/refund/process", middleware.APIMiddleware(refundH.ProcessHandler))
	apiMux.HandleFunc("/refund/cancel", middleware.APIMiddleware(refundH.CancelHandler))

	// Birdies
	apiMux.HandleFunc("/birdies", middleware.APIMiddleware(birdieH.BirdiesHandler))
	apiMux.HandleFunc("/birdies/summary", middleware.APIMiddleware(birdieH.SummaryHandler))
	apiMux.HandleFunc("/birdie", middleware.APIMiddleware(birdieH.BirdieHandler))

	// Dashboard
	apiMux.HandleFunc("/dashboard", middleware.APIMiddleware(infoH.DashboardHandler))

	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	return mux
}

// Run starts the HTTP server
func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = a.trackConnections(handler)
	handler = security.AddCORSHeaders(handler)
	handler = withTimeout(handler, 15*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}
