package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SESSION REPOSITORY
// =============================================================================

// Sessions own their courts and attendances; both cascade on delete.

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{db: db}
}

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

func (r *SessionRepository) Insert(s *Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	const stmt = `
		INSERT INTO sessions (date, birdie_cost, notes, is_archived, voting_frozen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt,
		formatDate(s.Date), s.BirdieCost, s.Notes, s.IsArchived, s.VotingFrozen,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	s.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read session id: %w", err)
	}
	s.DateString = formatDate(s.Date)

	// Courts created inline with the session
	for i := range s.Courts {
		s.Courts[i].SessionID = s.ID
		if err := r.InsertCourt(&s.Courts[i]); err != nil {
			return err
		}
	}

	return nil
}

// GetByID loads the session with its courts and attendances.
func (r *SessionRepository) GetByID(id int64) (*Session, error) {
	row := QueryRowDB(`
		SELECT id, date, birdie_cost, notes, is_archived, voting_frozen, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	if s.Courts, err = r.CourtsForSession(id); err != nil {
		return nil, err
	}
	if s.Attendances, err = attendancesForSession(id); err != nil {
		return nil, err
	}

	return s, nil
}

// List returns sessions newest first. Archived sessions are included only
// when includeArchived is set.
func (r *SessionRepository) List(includeArchived bool) ([]Session, error) {
	query := `
		SELECT id, date, birdie_cost, notes, is_archived, voting_frozen, created_at, updated_at
		FROM sessions`
	if !includeArchived {
		query += ` WHERE is_archived = 0`
	}
	query += ` ORDER BY date DESC`

	rows, err := QueryDB(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

// Upcoming returns non-archived sessions on or after the given date, oldest first.
func (r *SessionRepository) Upcoming(from time.Time) ([]Session, error) {
	rows, err := QueryDB(`
		SELECT id, date, birdie_cost, notes, is_archived, voting_frozen, created_at, updated_at
		FROM sessions
		WHERE date >= ? AND is_archived = 0
		ORDER BY date`, formatDate(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *SessionRepository) Update(s *Session) error {
	s.UpdatedAt = time.Now()

	const stmt = `
		UPDATE sessions
		SET date = ?, birdie_cost = ?, notes = ?, is_archived = ?, voting_frozen = ?, updated_at = ?
		WHERE id = ?`

	result, err := ExecDB(stmt,
		formatDate(s.Date), s.BirdieCost, s.Notes, s.IsArchived, s.VotingFrozen,
		formatTime(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return requireRowAffected(result)
}

func (r *SessionRepository) SetArchived(id int64, archived bool) error {
	result, err := ExecDB(`UPDATE sessions SET is_archived = ?, updated_at = ? WHERE id = ?`,
		archived, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set archived flag: %w", err)
	}
	return requireRowAffected(result)
}

func (r *SessionRepository) SetVotingFrozen(id int64, frozen bool) error {
	result, err := ExecDB(`UPDATE sessions SET voting_frozen = ?, updated_at = ? WHERE id = ?`,
		frozen, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set voting_frozen flag: %w", err)
	}
	return requireRowAffected(result)
}

func (r *SessionRepository) Delete(id int64) error {
	result, err := ExecDB(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRowAffected(result)
}

// ArchiveOlderThan marks past sessions as archived and returns how many changed.
func (r *SessionRepository) ArchiveOlderThan(cutoff time.Time) (int, error) {
	result, err := ExecDB(`UPDATE sessions SET is_archived = 1, updated_at = ? WHERE date < ? AND is_archived = 0`,
		formatTime(time.Now()), formatDate(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to archive old sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *SessionRepository) CountUpcoming(from time.Time) (int, error) {
	var count int
	err := QueryRowDB(`SELECT COUNT(*) FROM sessions WHERE date >= ? AND is_archived = 0`, formatDate(from)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming sessions: %w", err)
	}
	return count, nil
}

// =============================================================================
// COURT OPERATIONS
// =============================================================================

func (r *SessionRepository) InsertCourt(c *Court) error {
	if c.Name == "" {
		c.Name = "Court"
	}
	if c.CourtType == "" {
		c.CourtType = CourtRegular
	}

	const stmt = `
		INSERT INTO courts (session_id, name, start_time, end_time, cost, court_type)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt, c.SessionID, c.Name, c.StartTime, c.EndTime, c.Cost, string(c.CourtType))
	if err != nil {
		return fmt.Errorf("failed to insert court: %w", err)
	}

	c.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read court id: %w", err)
	}

	return nil
}

func (r *SessionRepository) UpdateCourt(c *Court) error {
	const stmt = `
		UPDATE courts SET name = ?, start_time = ?, end_time = ?, cost = ?, court_type = ?
		WHERE id = ?`

	result, err := ExecDB(stmt, c.Name, c.StartTime, c.EndTime, c.Cost, string(c.CourtType), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update court: %w", err)
	}
	return requireRowAffected(result)
}

func (r *SessionRepository) DeleteCourt(id int64) error {
	result, err := ExecDB(`DELETE FROM courts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete court: %w", err)
	}
	return requireRowAffected(result)
}

func (r *SessionRepository) CourtsForSession(sessionID int64) ([]Court, error) {
	rows, err := QueryDB(`
		SELECT id, session_id, name, start_time, end_time, cost, court_type
		FROM courts WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query courts: %w", err)
	}
	defer rows.Close()

	var result []Court
	for rows.Next() {
		var c Court
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Name, &c.StartTime, &c.EndTime, &c.Cost, &c.CourtType); err != nil {
			return nil, fmt.Errorf("failed to scan court: %w", err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func scanSession(row *Row) (*Session, error) {
	var s Session
	var date, createdAt, updatedAt string

	err := row.Scan(&s.ID, &date, &s.BirdieCost, &s.Notes, &s.IsArchived, &s.VotingFrozen,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return populateSession(&s, date, createdAt, updatedAt)
}

func scanSessionRows(rows *Rows) (*Session, error) {
	var s Session
	var date, createdAt, updatedAt string

	err := rows.Scan(&s.ID, &date, &s.BirdieCost, &s.Notes, &s.IsArchived, &s.VotingFrozen,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return populateSession(&s, date, createdAt, updatedAt)
}

func populateSession(s *Session, date, createdAt, updatedAt string) (*Session, error) {
	var err error
	if s.Date, err = ParseDate(date); err != nil {
		return nil, fmt.Errorf("failed to parse session date: %w", err)
	}
	s.DateString = date

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return s, nil
}
