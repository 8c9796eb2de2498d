package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// PAYMENT REPOSITORY
// =============================================================================

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, player_id, amount, method, date, notes, refund_id, created_at`

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

func (r *PaymentRepository) Insert(p *Payment) error {
	p.CreatedAt = time.Now()
	if p.Date.IsZero() {
		p.Date = p.CreatedAt
	}

	const stmt = `
		INSERT INTO payments (player_id, amount, method, date, notes, refund_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt,
		p.PlayerID, p.Amount, p.Method, formatTime(p.Date), p.Notes,
		nullableID(p.RefundID), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(id int64) (*Payment, error) {
	row := QueryRowDB(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	return scanPayment(row)
}

// GetByRefundID finds the payment materialized by a processed refund.
func (r *PaymentRepository) GetByRefundID(refundID int64) (*Payment, error) {
	row := QueryRowDB(`SELECT `+paymentColumns+` FROM payments WHERE refund_id = ?`, refundID)
	return scanPayment(row)
}

func (r *PaymentRepository) List() ([]Payment, error) {
	rows, err := QueryDB(`SELECT ` + paymentColumns + ` FROM payments ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) ForPlayer(playerID int64) ([]Payment, error) {
	rows, err := QueryDB(`SELECT `+paymentColumns+` FROM payments WHERE player_id = ? ORDER BY date DESC`,
		playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) Recent(limit int) ([]Payment, error) {
	rows, err := QueryDB(`SELECT `+paymentColumns+` FROM payments ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) UpdateAmount(id int64, amount float64) error {
	result, err := ExecDB(`UPDATE payments SET amount = ? WHERE id = ?`, amount, id)
	if err != nil {
		return fmt.Errorf("failed to update payment amount: %w", err)
	}
	return requireRowAffected(result)
}

func (r *PaymentRepository) Delete(id int64) error {
	result, err := ExecDB(`DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteByRefundID removes the payment linked to a refund, reporting whether
// one existed.
func (r *PaymentRepository) DeleteByRefundID(refundID int64) (bool, error) {
	result, err := ExecDB(`DELETE FROM payments WHERE refund_id = ?`, refundID)
	if err != nil {
		return false, fmt.Errorf("failed to delete refund payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

// SumForPlayer totals all payment amounts for one player; refunds are
// negative rows and reduce the sum.
func (r *PaymentRepository) SumForPlayer(playerID int64) (float64, error) {
	var total sql.NullFloat64
	err := QueryRowDB(`SELECT SUM(amount) FROM payments WHERE player_id = ?`, playerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum player payments: %w", err)
	}
	return total.Float64, nil
}

func (r *PaymentRepository) SumAll() (float64, error) {
	var total sql.NullFloat64
	err := QueryRowDB(`SELECT SUM(amount) FROM payments`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total.Float64, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func scanPayment(row *Row) (*Payment, error) {
	var p Payment
	var date, createdAt string
	var refundID sql.NullInt64

	err := row.Scan(&p.ID, &p.PlayerID, &p.Amount, &p.Method, &date, &p.Notes, &refundID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	return populatePayment(&p, date, createdAt, refundID)
}

func collectPayments(rows *Rows) ([]Payment, error) {
	var result []Payment
	for rows.Next() {
		var p Payment
		var date, createdAt string
		var refundID sql.NullInt64

		if err := rows.Scan(&p.ID, &p.PlayerID, &p.Amount, &p.Method, &date, &p.Notes, &refundID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}

		populated, err := populatePayment(&p, date, createdAt, refundID)
		if err != nil {
			return nil, err
		}
		result = append(result, *populated)
	}

	return result, rows.Err()
}

func populatePayment(p *Payment, date, createdAt string, refundID sql.NullInt64) (*Payment, error) {
	p.RefundID = scanNullableID(refundID)

	var err error
	if p.Date, err = parseTime(date); err != nil {
		return nil, fmt.Errorf("failed to parse payment date: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return p, nil
}
