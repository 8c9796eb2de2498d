package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ATTENDANCE REPOSITORY
// =============================================================================

// At most one attendance row exists per (player, session) pair; the table
// carries a UNIQUE constraint and writes go through Upsert.

type AttendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, player_id, session_id, status, category, created_at, updated_at`

// =============================================================================
// UPSERT (the only write path for votes)
// =============================================================================

// Upsert records a player's status for a session as a single atomic
// statement. On first insert the category snapshot comes from the explicit
// category if given, otherwise from fallback (the player's base category at
// sign-up time). On update the snapshot is preserved unless an explicit
// category is supplied. Concurrent double-inserts are resolved by SQLite's
// ON CONFLICT clause rather than surfacing the uniqueness violation.
func (r *AttendanceRepository) Upsert(playerID, sessionID int64, status AttendanceStatus, category, fallback PlayerCategory) (*Attendance, error) {
	now := formatTime(time.Now())

	const stmt = `
		INSERT INTO attendances (player_id, session_id, status, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id, session_id) DO UPDATE SET
			status = excluded.status,
			category = CASE WHEN ? != '' THEN excluded.category ELSE category END,
			updated_at = excluded.updated_at`

	insertCategory := category
	if insertCategory == "" {
		insertCategory = fallback
	}
	if insertCategory == "" {
		insertCategory = CategoryRegular
	}

	_, err := ExecDB(stmt, playerID, sessionID, string(status), string(insertCategory), now, now,
		string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert attendance: %w", err)
	}

	return r.GetByPlayerAndSession(playerID, sessionID)
}

// =============================================================================
// READS
// =============================================================================

func (r *AttendanceRepository) GetByPlayerAndSession(playerID, sessionID int64) (*Attendance, error) {
	row := QueryRowDB(`SELECT `+attendanceColumns+` FROM attendances WHERE player_id = ? AND session_id = ?`,
		playerID, sessionID)
	return scanAttendance(row)
}

func (r *AttendanceRepository) ForSession(sessionID int64) ([]Attendance, error) {
	return attendancesForSession(sessionID)
}

func (r *AttendanceRepository) ForPlayer(playerID int64) ([]Attendance, error) {
	rows, err := QueryDB(`
		SELECT a.id, a.player_id, a.session_id, a.status, a.category, a.created_at, a.updated_at
		FROM attendances a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.player_id = ?
		ORDER BY s.date DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player attendances: %w", err)
	}
	defer rows.Close()

	return collectAttendances(rows)
}

// UpdateCategory overrides the per-session category snapshot without
// touching the player's base category.
func (r *AttendanceRepository) UpdateCategory(playerID, sessionID int64, category PlayerCategory) error {
	result, err := ExecDB(`UPDATE attendances SET category = ?, updated_at = ? WHERE player_id = ? AND session_id = ?`,
		string(category), formatTime(time.Now()), playerID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update attendance category: %w", err)
	}
	return requireRowAffected(result)
}

// CountByStatus counts attendance rows for a session with a given status.
func (r *AttendanceRepository) CountByStatus(sessionID int64, status AttendanceStatus) (int, error) {
	var count int
	err := QueryRowDB(`SELECT COUNT(*) FROM attendances WHERE session_id = ? AND status = ?`,
		sessionID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attendances: %w", err)
	}
	return count, nil
}

// ChargeRowsForPlayer returns one row per session the player attended
// (status YES), joined with the aggregates the cost calculator needs:
// the session's total court cost and its attendee count.
func (r *AttendanceRepository) ChargeRowsForPlayer(playerID int64) ([]ChargeRow, error) {
	const stmt = `
		SELECT a.session_id, a.category, s.birdie_cost,
			COALESCE((SELECT SUM(c.cost) FROM courts c WHERE c.session_id = s.id), 0),
			(SELECT COUNT(*) FROM attendances y WHERE y.session_id = s.id AND y.status = 'YES')
		FROM attendances a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.player_id = ? AND a.status = 'YES'
		ORDER BY s.date`

	rows, err := QueryDB(stmt, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query charge rows: %w", err)
	}
	defer rows.Close()

	var result []ChargeRow
	for rows.Next() {
		var row ChargeRow
		if err := rows.Scan(&row.SessionID, &row.Category, &row.BirdieCost, &row.TotalCost, &row.AttendeeCount); err != nil {
			return nil, fmt.Errorf("failed to scan charge row: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func attendancesForSession(sessionID int64) ([]Attendance, error) {
	rows, err := QueryDB(`SELECT `+attendanceColumns+` FROM attendances WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session attendances: %w", err)
	}
	defer rows.Close()

	return collectAttendances(rows)
}

func collectAttendances(rows *Rows) ([]Attendance, error) {
	var result []Attendance
	for rows.Next() {
		var a Attendance
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.PlayerID, &a.SessionID, &a.Status, &a.Category, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}

		var err error
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func scanAttendance(row *Row) (*Attendance, error) {
	var a Attendance
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.PlayerID, &a.SessionID, &a.Status, &a.Category, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan attendance: %w", err)
	}

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &a, nil
}
