package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// BIRDIE BANK REPOSITORY
// =============================================================================

// The birdie bank is a plain running ledger: purchases add stock, usage
// removes it. No state machine, just aggregate queries.

type BirdieRepository struct {
	db *sql.DB
}

func NewBirdieRepository() *BirdieRepository {
	return &BirdieRepository{db: db}
}

func (r *BirdieRepository) Insert(tx *BirdieTransaction) error {
	if tx.Date.IsZero() {
		tx.Date = time.Now()
	}

	const stmt = `
		INSERT INTO birdie_transactions (date, transaction_type, quantity, cost, notes, session_id)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := ExecDB(stmt,
		formatTime(tx.Date), string(tx.Type), tx.Quantity, tx.Cost, tx.Notes,
		nullableID(tx.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert birdie transaction: %w", err)
	}

	tx.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}

	return nil
}

func (r *BirdieRepository) GetByID(id int64) (*BirdieTransaction, error) {
	row := QueryRowDB(`
		SELECT id, date, transaction_type, quantity, cost, notes, session_id
		FROM birdie_transactions WHERE id = ?`, id)

	var tx BirdieTransaction
	var date string
	var sessionID sql.NullInt64

	err := row.Scan(&tx.ID, &date, &tx.Type, &tx.Quantity, &tx.Cost, &tx.Notes, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan birdie transaction: %w", err)
	}

	tx.SessionID = scanNullableID(sessionID)
	if tx.Date, err = parseTime(date); err != nil {
		return nil, fmt.Errorf("failed to parse transaction date: %w", err)
	}

	return &tx, nil
}

func (r *BirdieRepository) List() ([]BirdieTransaction, error) {
	rows, err := QueryDB(`
		SELECT id, date, transaction_type, quantity, cost, notes, session_id
		FROM birdie_transactions ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query birdie transactions: %w", err)
	}
	defer rows.Close()

	var result []BirdieTransaction
	for rows.Next() {
		var tx BirdieTransaction
		var date string
		var sessionID sql.NullInt64

		if err := rows.Scan(&tx.ID, &date, &tx.Type, &tx.Quantity, &tx.Cost, &tx.Notes, &sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan birdie transaction: %w", err)
		}

		tx.SessionID = scanNullableID(sessionID)
		if tx.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("failed to parse transaction date: %w", err)
		}
		result = append(result, tx)
	}

	return result, rows.Err()
}

func (r *BirdieRepository) Delete(id int64) error {
	result, err := ExecDB(`DELETE FROM birdie_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete birdie transaction: %w", err)
	}
	return requireRowAffected(result)
}

// =============================================================================
// AGGREGATES
// =============================================================================

// CurrentStock is cumulative purchases minus cumulative usage.
func (r *BirdieRepository) CurrentStock() (int, error) {
	var purchased, used sql.NullInt64

	err := QueryRowDB(`SELECT SUM(quantity) FROM birdie_transactions WHERE transaction_type = 'purchase'`).Scan(&purchased)
	if err != nil {
		return 0, fmt.Errorf("failed to sum purchases: %w", err)
	}

	err = QueryRowDB(`SELECT SUM(quantity) FROM birdie_transactions WHERE transaction_type = 'usage'`).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}

	return int(purchased.Int64 - used.Int64), nil
}

// TotalSpent is the money spent on birdie purchases.
func (r *BirdieRepository) TotalSpent() (float64, error) {
	var total sql.NullFloat64
	err := QueryRowDB(`SELECT SUM(cost) FROM birdie_transactions WHERE transaction_type = 'purchase'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum birdie spending: %w", err)
	}
	return total.Float64, nil
}
