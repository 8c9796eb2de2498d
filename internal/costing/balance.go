package costing

import (
	"github.com/shopspring/decimal"

	"bcbackend/internal/data"
)

// =============================================================================
// BALANCE ENGINE
// =============================================================================

// Balances are never cached: every figure here is recomputed from the full
// attendance and payment history on each call, so edits to old sessions,
// categories or payments are reflected immediately.

// TotalCharges sums the category-aware per-session charge over a player's
// attended sessions. A row whose session somehow has zero attendees
// contributes nothing.
func TotalCharges(rows []data.ChargeRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		costPerPlayer := CostPerPlayer(
			decimal.NewFromFloat(row.TotalCost),
			row.AttendeeCount,
			decimal.NewFromFloat(row.BirdieCost),
		)
		total = total.Add(ChargeFor(row.Category, costPerPlayer))
	}
	return total.Round(2)
}

// TotalPayments sums raw payment amounts; refund rows are negative and
// reduce the total.
func TotalPayments(payments []data.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(decimal.NewFromFloat(p.Amount))
	}
	return total.Round(2)
}

// Balance is what the player still owes. Positive means money is owed;
// zero or negative means paid up or in credit.
func Balance(charges, payments decimal.Decimal) decimal.Decimal {
	return charges.Sub(payments).Round(2)
}

// PlayerBalance bundles the three lifetime figures for one player.
type PlayerBalance struct {
	TotalCharges  decimal.Decimal
	TotalPayments decimal.Decimal
	Balance       decimal.Decimal
}

// ComputePlayerBalance derives a player's financial position from their
// charge rows and payment history.
func ComputePlayerBalance(rows []data.ChargeRow, payments []data.Payment) PlayerBalance {
	charges := TotalCharges(rows)
	paid := TotalPayments(payments)
	return PlayerBalance{
		TotalCharges:  charges,
		TotalPayments: paid,
		Balance:       Balance(charges, paid),
	}
}
