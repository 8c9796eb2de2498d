package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"bcbackend/internal/logger"
)

// =============================================================================
// CONSTANTS AND GLOBAL VARIABLES
// =============================================================================

// Global database instance with better management
var (
	db   *sql.DB
	dbMu sync.RWMutex
)

// Database connection pool configuration
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

const (
	TimeFormat = time.RFC3339
	DateFormat = "2006-01-02"
)

// =============================================================================
// ENUMERATED FIELDS
// =============================================================================

// PlayerCategory decides how a player is charged for a session.
type PlayerCategory string

const (
	CategoryRegular PlayerCategory = "regular"
	CategoryAdhoc   PlayerCategory = "adhoc"
	CategoryKid     PlayerCategory = "kid"
)

func (c PlayerCategory) Valid() bool {
	switch c {
	case CategoryRegular, CategoryAdhoc, CategoryKid:
		return true
	}
	return false
}

// AttendanceStatus is a player's vote/final standing for one session.
type AttendanceStatus string

const (
	StatusYes       AttendanceStatus = "YES"
	StatusNo        AttendanceStatus = "NO"
	StatusTentative AttendanceStatus = "TENTATIVE"
	StatusDropout   AttendanceStatus = "DROPOUT"
	StatusFillin    AttendanceStatus = "FILLIN"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusYes, StatusNo, StatusTentative, StatusDropout, StatusFillin:
		return true
	}
	return false
}

// SelfServiceAllowed reports whether players may set this status themselves.
// DROPOUT and FILLIN are bookkeeping states reserved for admins.
func (s AttendanceStatus) SelfServiceAllowed() bool {
	switch s {
	case StatusYes, StatusNo, StatusTentative:
		return true
	}
	return false
}

// RefundStatus is the lifecycle state of a dropout refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundCancelled RefundStatus = "cancelled"
)

func (s RefundStatus) Valid() bool {
	switch s {
	case RefundPending, RefundProcessed, RefundCancelled:
		return true
	}
	return false
}

// BirdieTransactionType distinguishes stock going in from stock going out.
type BirdieTransactionType string

const (
	BirdiePurchase BirdieTransactionType = "purchase"
	BirdieUsage    BirdieTransactionType = "usage"
)

func (t BirdieTransactionType) Valid() bool {
	return t == BirdiePurchase || t == BirdieUsage
}

// ZellePreference selects which contact detail a player shares for Zelle.
type ZellePreference string

const (
	ZelleByEmail ZellePreference = "email"
	ZelleByPhone ZellePreference = "phone"
)

func (z ZellePreference) Valid() bool {
	return z == ZelleByEmail || z == ZelleByPhone
}

// =============================================================================
// STRUCT DEFINITIONS (ALL TYPES)
// =============================================================================

type Player struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Category        PlayerCategory  `json:"category"`
	Phone           string          `json:"phone,omitempty"`
	Email           string          `json:"email,omitempty"`
	PasswordHash    string          `json:"-"`
	ZellePreference ZellePreference `json:"zelle_preference"`
	ManagedBy       *int64          `json:"managed_by,omitempty"`
	IsAdmin         bool            `json:"is_admin"`
	IsActive        bool            `json:"is_active"`
	IsApproved      bool            `json:"is_approved"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Session struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"-"`
	DateString   string    `json:"date"`
	BirdieCost   float64   `json:"birdie_cost"`
	Notes        string    `json:"notes,omitempty"`
	IsArchived   bool      `json:"is_archived"`
	VotingFrozen bool      `json:"voting_frozen"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Courts      []Court      `json:"courts,omitempty"`
	Attendances []Attendance `json:"attendances,omitempty"`
}

type CourtType string

const (
	CourtRegular CourtType = "regular"
	CourtAdhoc   CourtType = "adhoc"
)

func (t CourtType) Valid() bool {
	return t == CourtRegular || t == CourtAdhoc
}

type Court struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Name      string    `json:"name"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Cost      float64   `json:"cost"`
	CourtType CourtType `json:"court_type"`
}

type Attendance struct {
	ID        int64            `json:"id"`
	PlayerID  int64            `json:"player_id"`
	SessionID int64            `json:"session_id"`
	Status    AttendanceStatus `json:"status"`
	Category  PlayerCategory   `json:"category"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Payment struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"player_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes,omitempty"`
	RefundID  *int64    `json:"refund_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type DropoutRefund struct {
	ID              int64        `json:"id"`
	PlayerID        int64        `json:"player_id"`
	SessionID       int64        `json:"session_id"`
	RefundAmount    float64      `json:"refund_amount"`
	SuggestedAmount float64      `json:"suggested_amount"`
	Instructions    string       `json:"instructions,omitempty"`
	Status          RefundStatus `json:"status"`
	ProcessedDate   *time.Time   `json:"processed_date,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type BirdieTransaction struct {
	ID        int64                 `json:"id"`
	Date      time.Time             `json:"date"`
	Type      BirdieTransactionType `json:"transaction_type"`
	Quantity  int                   `json:"quantity"`
	Cost      float64               `json:"cost"`
	Notes     string                `json:"notes,omitempty"`
	SessionID *int64                `json:"session_id,omitempty"`
}

// ChargeRow is one attended session from a player's point of view, with
// just enough aggregate context to price it.
type ChargeRow struct {
	SessionID     int64
	Category      PlayerCategory
	BirdieCost    float64
	TotalCost     float64
	AttendeeCount int
}

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// InitDB initializes the database with connection pooling and resilience
func InitDB(dataSourceName string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	// Close existing connection if any
	if db != nil {
		db.Close()
	}

	return initDBWithRetry(dataSourceName, 3)
}

func initDBWithRetry(dataSourceName string, maxRetries int) error {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("sqlite", dataSourceName)
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		db.SetConnMaxIdleTime(connMaxIdleTime)

		// Test the connection
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			db.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Enable optimizations with error handling
		if err := enablePragmasWithRetry(db); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
			// Don't fail initialization for pragma errors
		}

		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return nil
	}

	return fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

func enablePragmasWithRetry(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// GetDB returns the database connection with health check
func GetDB() (*sql.DB, error) {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.LogError("Database health check failed: %v", err)
		return nil, fmt.Errorf("database connection unhealthy: %w", err)
	}

	return db, nil
}

// CloseDB closes the database connection gracefully
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const playersTableSchema = `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'regular',
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		password_hash TEXT DEFAULT '',
		zelle_preference TEXT DEFAULT 'email',
		managed_by INTEGER REFERENCES players(id) ON DELETE SET NULL,
		is_admin BOOLEAN DEFAULT 0,
		is_active BOOLEAN DEFAULT 1,
		is_approved BOOLEAN DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_players_name ON players(name);
	CREATE INDEX IF NOT EXISTS idx_players_category ON players(category);
	CREATE INDEX IF NOT EXISTS idx_players_email ON players(email);`

const sessionsTableSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		birdie_cost REAL NOT NULL DEFAULT 0,
		notes TEXT DEFAULT '',
		is_archived BOOLEAN DEFAULT 0,
		voting_frozen BOOLEAN DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date);`

const courtsTableSchema = `
	CREATE TABLE IF NOT EXISTS courts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		name TEXT DEFAULT 'Court',
		start_time TEXT DEFAULT '',
		end_time TEXT DEFAULT '',
		cost REAL NOT NULL DEFAULT 0,
		court_type TEXT DEFAULT 'regular'
	);
	CREATE INDEX IF NOT EXISTS idx_courts_session ON courts(session_id);`

const attendancesTableSchema = `
	CREATE TABLE IF NOT EXISTS attendances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'NO',
		category TEXT NOT NULL DEFAULT 'regular',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(player_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_attendances_session ON attendances(session_id);
	CREATE INDEX IF NOT EXISTS idx_attendances_player ON attendances(player_id);`

const paymentsTableSchema = `
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		amount REAL NOT NULL,
		method TEXT NOT NULL,
		date TEXT NOT NULL,
		notes TEXT DEFAULT '',
		refund_id INTEGER REFERENCES dropout_refunds(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_player ON payments(player_id);
	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(date);
	CREATE INDEX IF NOT EXISTS idx_payments_refund ON payments(refund_id);`

const refundsTableSchema = `
	CREATE TABLE IF NOT EXISTS dropout_refunds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		refund_amount REAL NOT NULL DEFAULT 0,
		suggested_amount REAL DEFAULT 0,
		instructions TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		processed_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_refunds_player ON dropout_refunds(player_id);
	CREATE INDEX IF NOT EXISTS idx_refunds_session ON dropout_refunds(session_id);
	CREATE INDEX IF NOT EXISTS idx_refunds_status ON dropout_refunds(status);`

const birdieTableSchema = `
	CREATE TABLE IF NOT EXISTS birdie_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost REAL DEFAULT 0,
		notes TEXT DEFAULT '',
		session_id INTEGER REFERENCES sessions(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_birdie_type ON birdie_transactions(transaction_type);`

// =============================================================================
// TABLE CREATION AND MIGRATIONS
// =============================================================================

func CreateTables() error {
	tables := []struct {
		name   string
		schema string
	}{
		{"players", playersTableSchema},
		{"sessions", sessionsTableSchema},
		{"courts", courtsTableSchema},
		{"attendances", attendancesTableSchema},
		{"refunds", refundsTableSchema},
		{"payments", paymentsTableSchema},
		{"birdie_transactions", birdieTableSchema},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	if err := migratePaymentsTable(); err != nil {
		return fmt.Errorf("failed to migrate payments table: %w", err)
	}

	return nil
}

// migratePaymentsTable adds refund_id to databases created before refunds
// were linked by foreign key instead of notes matching.
func migratePaymentsTable() error {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('payments')
		WHERE name='refund_id'
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check for refund_id column: %w", err)
	}

	if count == 0 {
		_, err = db.Exec(`ALTER TABLE payments ADD COLUMN refund_id INTEGER REFERENCES dropout_refunds(id) ON DELETE SET NULL`)
		if err != nil {
			return fmt.Errorf("failed to add refund_id column: %w", err)
		}
		logger.LogInfo("Added refund_id column to payments table")
	}

	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func formatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(TimeFormat)
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

func parseNullableTime(nullStr sql.NullString) (*time.Time, error) {
	if !nullStr.Valid || nullStr.String == "" {
		return nil, nil
	}

	parsedTime, err := time.Parse(TimeFormat, nullStr.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time: %w", err)
	}

	return &parsedTime, nil
}

func formatDate(t time.Time) string {
	return t.Format(DateFormat)
}

func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse(DateFormat, dateStr)
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func scanNullableID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

// ExecDB executes a query with better error handling and timeouts
func ExecDB(query string, args ...interface{}) (sql.Result, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := dbConn.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}

	return result, nil
}

// Rows wraps sql.Rows so the query timeout stays alive until the caller
// has finished iterating. Close releases the timeout context.
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
}

// Close closes the underlying rows and releases the query timeout
func (r *Rows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}

// Row wraps sql.Row, releasing the query timeout when Scan is called
type Row struct {
	row    *sql.Row
	cancel context.CancelFunc
}

// Scan copies the row's columns into dest and releases the query timeout
func (r *Row) Scan(dest ...interface{}) error {
	defer r.cancel()
	return r.row.Scan(dest...)
}

// QueryDB executes a query with timeout and returns rows. The timeout is
// released when the returned rows are closed, not when QueryDB returns.
func QueryDB(query string, args ...interface{}) (*Rows, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)

	rows, err := dbConn.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		logger.LogError("Database query failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return &Rows{Rows: rows, cancel: cancel}, nil
}

// QueryRowDB executes a query that returns a single row
func QueryRowDB(query string, args ...interface{}) *Row {
	dbConn, _ := GetDB() // We'll let the query fail if DB is unavailable

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)

	return &Row{row: dbConn.QueryRowContext(ctx, query, args...), cancel: cancel}
}
