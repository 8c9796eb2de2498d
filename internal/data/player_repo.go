package data

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// =============================================================================
// PLAYER REPOSITORY
// =============================================================================

type PlayerRepository struct {
	db *sql.DB
}

func NewPlayerRepository() *PlayerRepository {
	return &PlayerRepository{db: db}
}

const playerColumns = `id, name, category, phone, email, password_hash, zelle_preference,
	managed_by, is_admin, is_active, is_approved, created_at, updated_at`

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

func (r *PlayerRepository) Insert(p *Player) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Category == "" {
		p.Category = CategoryRegular
	}
	if p.ZellePreference == "" {
		p.ZellePreference = ZelleByEmail
	}

	const stmt = `
		INSERT INTO players (name, category, phone, email, password_hash, zelle_preference,
			managed_by, is_admin, is_active, is_approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt,
		p.Name, string(p.Category), p.Phone, strings.ToLower(p.Email), p.PasswordHash,
		string(p.ZellePreference), nullableID(p.ManagedBy), p.IsAdmin, p.IsActive,
		p.IsApproved, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read player id: %w", err)
	}

	return nil
}

func (r *PlayerRepository) GetByID(id int64) (*Player, error) {
	row := QueryRowDB(`SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	return scanPlayer(row)
}

func (r *PlayerRepository) GetByEmail(email string) (*Player, error) {
	row := QueryRowDB(`SELECT `+playerColumns+` FROM players WHERE lower(email) = ?`,
		strings.ToLower(email))
	return scanPlayer(row)
}

// List returns players filtered by category ("" or "all" = everyone) and an
// optional case-insensitive search over name, phone and email.
func (r *PlayerRepository) List(category PlayerCategory, search string) ([]Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players`
	var conditions []string
	var args []interface{}

	if category != "" && category != "all" {
		conditions = append(conditions, "category = ?")
		args = append(args, string(category))
	}
	if search != "" {
		term := "%" + strings.ToLower(search) + "%"
		conditions = append(conditions, "(lower(name) LIKE ? OR lower(phone) LIKE ? OR lower(email) LIKE ?)")
		args = append(args, term, term, term)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"

	rows, err := QueryDB(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var result []Player
	for rows.Next() {
		p, err := scanPlayerRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}

	return result, nil
}

// Managed returns players this player may vote and pay for.
func (r *PlayerRepository) Managed(managerID int64) ([]Player, error) {
	rows, err := QueryDB(`SELECT `+playerColumns+` FROM players WHERE managed_by = ? ORDER BY name`, managerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query managed players: %w", err)
	}
	defer rows.Close()

	var result []Player
	for rows.Next() {
		p, err := scanPlayerRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PlayerRepository) Update(p *Player) error {
	p.UpdatedAt = time.Now()

	const stmt = `
		UPDATE players
		SET name = ?, category = ?, phone = ?, email = ?, zelle_preference = ?,
			managed_by = ?, is_admin = ?, is_active = ?, is_approved = ?, updated_at = ?
		WHERE id = ?`

	result, err := ExecDB(stmt,
		p.Name, string(p.Category), p.Phone, strings.ToLower(p.Email),
		string(p.ZellePreference), nullableID(p.ManagedBy), p.IsAdmin, p.IsActive,
		p.IsApproved, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return requireRowAffected(result)
}

func (r *PlayerRepository) UpdatePassword(id int64, passwordHash string) error {
	result, err := ExecDB(`UPDATE players SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRowAffected(result)
}

func (r *PlayerRepository) UpdateCategory(id int64, category PlayerCategory) error {
	result, err := ExecDB(`UPDATE players SET category = ?, updated_at = ? WHERE id = ?`,
		string(category), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update player category: %w", err)
	}
	return requireRowAffected(result)
}

// Delete removes the player; attendances and payments cascade.
func (r *PlayerRepository) Delete(id int64) error {
	result, err := ExecDB(`DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return requireRowAffected(result)
}

func (r *PlayerRepository) Count() (int, error) {
	var count int
	err := QueryRowDB(`SELECT COUNT(*) FROM players`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func scanPlayer(row *Row) (*Player, error) {
	var p Player
	var managedBy sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Phone, &p.Email, &p.PasswordHash,
		&p.ZellePreference, &managedBy, &p.IsAdmin, &p.IsActive, &p.IsApproved,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}

	return populatePlayer(&p, managedBy, createdAt, updatedAt)
}

func scanPlayerRows(rows *Rows) (*Player, error) {
	var p Player
	var managedBy sql.NullInt64
	var createdAt, updatedAt string

	err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Phone, &p.Email, &p.PasswordHash,
		&p.ZellePreference, &managedBy, &p.IsAdmin, &p.IsActive, &p.IsApproved,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}

	return populatePlayer(&p, managedBy, createdAt, updatedAt)
}

func populatePlayer(p *Player, managedBy sql.NullInt64, createdAt, updatedAt string) (*Player, error) {
	p.ManagedBy = scanNullableID(managedBy)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return p, nil
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
