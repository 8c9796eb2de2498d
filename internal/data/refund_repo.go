package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// DROPOUT REFUND REPOSITORY
// =============================================================================

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository() *RefundRepository {
	return &RefundRepository{db: db}
}

const refundColumns = `id, player_id, session_id, refund_amount, suggested_amount,
	instructions, status, processed_date, created_at, updated_at`

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

func (r *RefundRepository) Insert(ref *DropoutRefund) error {
	now := time.Now()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	if ref.Status == "" {
		ref.Status = RefundPending
	}

	const stmt = `
		INSERT INTO dropout_refunds (player_id, session_id, refund_amount, suggested_amount,
			instructions, status, processed_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt,
		ref.PlayerID, ref.SessionID, ref.RefundAmount, ref.SuggestedAmount,
		ref.Instructions, string(ref.Status), formatNullableTime(ref.ProcessedDate),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dropout refund: %w", err)
	}

	ref.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read refund id: %w", err)
	}

	return nil
}

func (r *RefundRepository) GetByID(id int64) (*DropoutRefund, error) {
	row := QueryRowDB(`SELECT `+refundColumns+` FROM dropout_refunds WHERE id = ?`, id)
	return scanRefund(row)
}

// List returns refunds filtered by optional session and player ids (0 = any).
func (r *RefundRepository) List(sessionID, playerID int64) ([]DropoutRefund, error) {
	query := `SELECT ` + refundColumns + ` FROM dropout_refunds`
	var conditions []string
	var args []interface{}

	if sessionID != 0 {
		conditions = append(conditions, "session_id = ?")
		args = append(args, sessionID)
	}
	if playerID != 0 {
		conditions = append(conditions, "player_id = ?")
		args = append(args, playerID)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := QueryDB(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	var result []DropoutRefund
	for rows.Next() {
		ref, err := scanRefundRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ref)
	}

	return result, rows.Err()
}

func (r *RefundRepository) UpdateAmount(id int64, amount float64) error {
	result, err := ExecDB(`UPDATE dropout_refunds SET refund_amount = ?, updated_at = ? WHERE id = ?`,
		amount, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update refund amount: %w", err)
	}
	return requireRowAffected(result)
}

func (r *RefundRepository) UpdateInstructions(id int64, instructions string) error {
	result, err := ExecDB(`UPDATE dropout_refunds SET instructions = ?, updated_at = ? WHERE id = ?`,
		instructions, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update refund instructions: %w", err)
	}
	return requireRowAffected(result)
}

// Process marks a pending refund processed and writes its negative payment
// row in a single transaction, so the ledger and the refund status cannot
// drift apart. The refund must still be pending when the update runs.
func (r *RefundRepository) Process(ref *DropoutRefund, p *Payment, processedDate time.Time) error {
	dbConn, err := GetDB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := dbConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p.CreatedAt = time.Now()
	if p.Date.IsZero() {
		p.Date = p.CreatedAt
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO payments (player_id, amount, method, date, notes, refund_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PlayerID, p.Amount, p.Method, formatTime(p.Date), p.Notes,
		nullableID(p.RefundID), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert refund payment: %w", err)
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE dropout_refunds SET status = ?, processed_date = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(RefundProcessed), formatTime(processedDate), formatTime(time.Now()), ref.ID, string(RefundPending))
	if err != nil {
		return fmt.Errorf("failed to update refund status: %w", err)
	}
	if err := requireRowAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refund processing: %w", err)
	}
	return nil
}

// Cancel moves a refund to cancelled, clears its processed date, and removes
// any linked payment, all in one transaction. Reports whether a linked
// payment existed.
func (r *RefundRepository) Cancel(id int64) (bool, error) {
	dbConn, err := GetDB()
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := dbConn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE refund_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete refund payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	removed := affected > 0

	result, err = tx.ExecContext(ctx,
		`UPDATE dropout_refunds SET status = ?, processed_date = NULL, updated_at = ? WHERE id = ?`,
		string(RefundCancelled), formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to update refund status: %w", err)
	}
	if err := requireRowAffected(result); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit refund cancellation: %w", err)
	}
	return removed, nil
}

// SumProcessedForSession totals the refunds actually given for one session.
func (r *RefundRepository) SumProcessedForSession(sessionID int64) (float64, error) {
	var total sql.NullFloat64
	err := QueryRowDB(`SELECT SUM(refund_amount) FROM dropout_refunds WHERE session_id = ? AND status = 'processed'`,
		sessionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum processed refunds: %w", err)
	}
	return total.Float64, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func scanRefund(row *Row) (*DropoutRefund, error) {
	var ref DropoutRefund
	var processedDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&ref.ID, &ref.PlayerID, &ref.SessionID, &ref.RefundAmount, &ref.SuggestedAmount,
		&ref.Instructions, &ref.Status, &processedDate, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}

	return populateRefund(&ref, processedDate, createdAt, updatedAt)
}

func scanRefundRows(rows *Rows) (*DropoutRefund, error) {
	var ref DropoutRefund
	var processedDate sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&ref.ID, &ref.PlayerID, &ref.SessionID, &ref.RefundAmount, &ref.SuggestedAmount,
		&ref.Instructions, &ref.Status, &processedDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}

	return populateRefund(&ref, processedDate, createdAt, updatedAt)
}

func populateRefund(ref *DropoutRefund, processedDate sql.NullString, createdAt, updatedAt string) (*DropoutRefund, error) {
	var err error
	if ref.ProcessedDate, err = parseNullableTime(processedDate); err != nil {
		return nil, fmt.Errorf("failed to parse processed_date: %w", err)
	}
	if ref.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if ref.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return ref, nil
}
