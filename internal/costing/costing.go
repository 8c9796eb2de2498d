// Package costing derives all monetary figures for sessions and players:
// session cost splits, per-player charges, balances and dropout refund
// suggestions. Everything here is a pure function over already-loaded rows;
// nothing reads or writes the store. Money is decimal end to end, rounded to
// two places at the point of calculation, and callers must not re-round.
package costing

import (
	"math"

	"github.com/shopspring/decimal"

	"bcbackend/internal/data"
)

// Kids pay a flat rate per attended session regardless of court costs.
var kidFlatRate = decimal.NewFromInt(11)

// Court capacity used for the suggested court count.
const playersPerCourt = 6

// KidFlatRate returns the flat per-session charge for kid players.
func KidFlatRate() decimal.Decimal {
	return kidFlatRate
}

// TotalCost is the sum of a session's court costs.
func TotalCost(courts []data.Court) decimal.Decimal {
	total := decimal.Zero
	for _, c := range courts {
		total = total.Add(decimal.NewFromFloat(c.Cost))
	}
	return total
}

// CourtCostByType sums court costs for one court type (reporting split only;
// the type never affects charges).
func CourtCostByType(courts []data.Court, courtType data.CourtType) decimal.Decimal {
	total := decimal.Zero
	for _, c := range courts {
		if c.CourtType == courtType {
			total = total.Add(decimal.NewFromFloat(c.Cost))
		}
	}
	return total
}

// AttendeeCount counts attendances with status YES.
func AttendeeCount(attendances []data.Attendance) int {
	return countStatus(attendances, data.StatusYes)
}

// DropoutCount counts attendances with status DROPOUT.
func DropoutCount(attendances []data.Attendance) int {
	return countStatus(attendances, data.StatusDropout)
}

// FillinCount counts attendances with status FILLIN.
func FillinCount(attendances []data.Attendance) int {
	return countStatus(attendances, data.StatusFillin)
}

func countStatus(attendances []data.Attendance, status data.AttendanceStatus) int {
	count := 0
	for _, a := range attendances {
		if a.Status == status {
			count++
		}
	}
	return count
}

// CostPerPlayer is the amount charged to every attending non-kid player:
// an even split of the court costs plus the flat birdie cost. A session
// nobody attends costs nobody anything.
func CostPerPlayer(totalCost decimal.Decimal, attendeeCount int, birdieCost decimal.Decimal) decimal.Decimal {
	if attendeeCount == 0 {
		return decimal.Zero
	}
	share := totalCost.Div(decimal.NewFromInt(int64(attendeeCount)))
	return share.Add(birdieCost).Round(2)
}

// ChargeFor is the per-session charge for one attendance given its category
// snapshot: kids pay the flat rate, everyone else pays costPerPlayer.
func ChargeFor(category data.PlayerCategory, costPerPlayer decimal.Decimal) decimal.Decimal {
	if category == data.CategoryKid {
		return kidFlatRate.Round(2)
	}
	return costPerPlayer
}

// SuggestedCourts estimates how many courts a session needs for its current
// attendee count, at six players per court. At least one.
func SuggestedCourts(attendeeCount int) int {
	if attendeeCount == 0 {
		return 1
	}
	return int(math.Ceil(float64(attendeeCount) / playersPerCourt))
}

// =============================================================================
// SESSION BREAKDOWN
// =============================================================================

// Breakdown is the complete money picture for one session.
type Breakdown struct {
	TotalCost       decimal.Decimal
	CostPerPlayer   decimal.Decimal
	BirdieCostTotal decimal.Decimal
	AttendeeCount   int
	DropoutCount    int
	FillinCount     int
	SuggestedCourts int

	// Expected collection, split by category snapshot
	RegularCharges  decimal.Decimal
	AdhocCharges    decimal.Decimal
	KidCharges      decimal.Decimal
	TotalCollection decimal.Decimal

	// Court cost split by court type (reporting only)
	RegularCourtCost decimal.Decimal
	AdhocCourtCost   decimal.Decimal
}

// ComputeBreakdown derives every session-level figure from the session's
// courts and attendance set.
func ComputeBreakdown(s *data.Session) Breakdown {
	birdieCost := decimal.NewFromFloat(s.BirdieCost)
	totalCost := TotalCost(s.Courts)
	attendees := AttendeeCount(s.Attendances)
	costPerPlayer := CostPerPlayer(totalCost, attendees, birdieCost)

	b := Breakdown{
		TotalCost:        totalCost,
		CostPerPlayer:    costPerPlayer,
		BirdieCostTotal:  birdieCost.Mul(decimal.NewFromInt(int64(attendees))).Round(2),
		AttendeeCount:    attendees,
		DropoutCount:     DropoutCount(s.Attendances),
		FillinCount:      FillinCount(s.Attendances),
		SuggestedCourts:  SuggestedCourts(attendees),
		RegularCharges:   decimal.Zero,
		AdhocCharges:     decimal.Zero,
		KidCharges:       decimal.Zero,
		RegularCourtCost: CourtCostByType(s.Courts, data.CourtRegular),
		AdhocCourtCost:   CourtCostByType(s.Courts, data.CourtAdhoc),
	}

	for _, a := range s.Attendances {
		if a.Status != data.StatusYes {
			continue
		}
		switch a.Category {
		case data.CategoryKid:
			b.KidCharges = b.KidCharges.Add(kidFlatRate)
		case data.CategoryAdhoc:
			b.AdhocCharges = b.AdhocCharges.Add(costPerPlayer)
		default:
			b.RegularCharges = b.RegularCharges.Add(costPerPlayer)
		}
	}

	b.RegularCharges = b.RegularCharges.Round(2)
	b.AdhocCharges = b.AdhocCharges.Round(2)
	b.KidCharges = b.KidCharges.Round(2)
	b.TotalCollection = b.RegularCharges.Add(b.AdhocCharges).Add(b.KidCharges).Round(2)

	return b
}

// =============================================================================
// REFUND ADVISOR
// =============================================================================

// SuggestedRefund advises on the refund for a dropout, without applying it.
//
// When at least as many fill-ins as dropouts took over the freed slots (and
// there is at least one), the dropout's whole share is recoverable and the
// full cost per player is suggested. Otherwise only the court-cost share is
// suggested: the birdies were consumed either way and stay a sunk cost.
func SuggestedRefund(s *data.Session) decimal.Decimal {
	attendees := AttendeeCount(s.Attendances)
	dropouts := DropoutCount(s.Attendances)
	fillins := FillinCount(s.Attendances)

	birdieCost := decimal.NewFromFloat(s.BirdieCost)
	totalCost := TotalCost(s.Courts)

	if fillins >= dropouts && fillins > 0 {
		return CostPerPlayer(totalCost, attendees, birdieCost)
	}

	if attendees == 0 {
		return decimal.Zero
	}
	return totalCost.Div(decimal.NewFromInt(int64(attendees))).Round(2)
}
