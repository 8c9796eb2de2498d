package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcbackend/internal/data"
)

func makeSession(birdieCost float64, courts []data.Court, attendances []data.Attendance) *data.Session {
	return &data.Session{
		ID:          1,
		BirdieCost:  birdieCost,
		Courts:      courts,
		Attendances: attendances,
	}
}

func yesAttendance(playerID int64, category data.PlayerCategory) data.Attendance {
	return data.Attendance{PlayerID: playerID, SessionID: 1, Status: data.StatusYes, Category: category}
}

func TestTotalCost(t *testing.T) {
	courts := []data.Court{
		{Cost: 50, CourtType: data.CourtRegular},
		{Cost: 40, CourtType: data.CourtRegular},
	}
	assert.True(t, decimal.NewFromInt(90).Equal(TotalCost(courts)))

	// No courts booked costs nothing
	assert.True(t, decimal.Zero.Equal(TotalCost(nil)))
}

func TestCostPerPlayer(t *testing.T) {
	tests := []struct {
		name      string
		totalCost float64
		attendees int
		birdie    float64
		want      string
	}{
		{"even split", 90, 6, 0, "15"},
		{"split plus birdie", 90, 7, 2, "14.86"},
		{"no attendees", 90, 0, 2, "0"},
		{"no courts, birdie only", 0, 5, 3, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CostPerPlayer(decimal.NewFromFloat(tt.totalCost), tt.attendees, decimal.NewFromFloat(tt.birdie))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"expected %s, got %s", tt.want, got)
		})
	}
}

func TestChargeFor(t *testing.T) {
	costPerPlayer := decimal.RequireFromString("14.86")

	assert.True(t, decimal.NewFromInt(11).Equal(ChargeFor(data.CategoryKid, costPerPlayer)))
	assert.True(t, costPerPlayer.Equal(ChargeFor(data.CategoryRegular, costPerPlayer)))
	assert.True(t, costPerPlayer.Equal(ChargeFor(data.CategoryAdhoc, costPerPlayer)))
}

func TestSuggestedCourts(t *testing.T) {
	assert.Equal(t, 1, SuggestedCourts(0))
	assert.Equal(t, 1, SuggestedCourts(6))
	assert.Equal(t, 2, SuggestedCourts(7))
	assert.Equal(t, 3, SuggestedCourts(14))
}

// The worked example: two courts at $50 and $40, birdie cost $2, six regular
// attendees and one kid.
func TestComputeBreakdownWorkedExample(t *testing.T) {
	courts := []data.Court{
		{Cost: 50, CourtType: data.CourtRegular},
		{Cost: 40, CourtType: data.CourtAdhoc},
	}
	var attendances []data.Attendance
	for i := int64(1); i <= 6; i++ {
		attendances = append(attendances, yesAttendance(i, data.CategoryRegular))
	}
	attendances = append(attendances, yesAttendance(7, data.CategoryKid))

	b := ComputeBreakdown(makeSession(2, courts, attendances))

	assert.Equal(t, 7, b.AttendeeCount)
	assert.True(t, decimal.NewFromInt(90).Equal(b.TotalCost), "total cost: %s", b.TotalCost)
	assert.True(t, decimal.RequireFromString("14.86").Equal(b.CostPerPlayer), "cost per player: %s", b.CostPerPlayer)
	assert.True(t, decimal.RequireFromString("89.16").Equal(b.RegularCharges), "regular charges: %s", b.RegularCharges)
	assert.True(t, decimal.Zero.Equal(b.AdhocCharges))
	assert.True(t, decimal.NewFromInt(11).Equal(b.KidCharges), "kid charges: %s", b.KidCharges)
	assert.True(t, decimal.RequireFromString("100.16").Equal(b.TotalCollection), "total collection: %s", b.TotalCollection)
	assert.True(t, decimal.NewFromInt(14).Equal(b.BirdieCostTotal), "birdie total: %s", b.BirdieCostTotal)
	assert.True(t, decimal.NewFromInt(50).Equal(b.RegularCourtCost))
	assert.True(t, decimal.NewFromInt(40).Equal(b.AdhocCourtCost))
	assert.Equal(t, 2, b.SuggestedCourts)
}

func TestComputeBreakdownNoAttendees(t *testing.T) {
	courts := []data.Court{{Cost: 90, CourtType: data.CourtRegular}}
	attendances := []data.Attendance{
		{PlayerID: 1, SessionID: 1, Status: data.StatusNo, Category: data.CategoryRegular},
		{PlayerID: 2, SessionID: 1, Status: data.StatusTentative, Category: data.CategoryRegular},
	}

	b := ComputeBreakdown(makeSession(2, courts, attendances))

	assert.Equal(t, 0, b.AttendeeCount)
	assert.True(t, decimal.Zero.Equal(b.CostPerPlayer), "cost per player should be zero, got %s", b.CostPerPlayer)
	assert.True(t, decimal.Zero.Equal(b.TotalCollection))
	assert.True(t, decimal.NewFromInt(90).Equal(b.TotalCost))
}

func TestComputeBreakdownZeroCourts(t *testing.T) {
	attendances := []data.Attendance{
		yesAttendance(1, data.CategoryRegular),
		yesAttendance(2, data.CategoryRegular),
	}

	b := ComputeBreakdown(makeSession(3, nil, attendances))

	// With no courts the per-player figure degenerates to the birdie cost
	assert.True(t, decimal.NewFromInt(3).Equal(b.CostPerPlayer), "cost per player: %s", b.CostPerPlayer)
	assert.True(t, decimal.NewFromInt(6).Equal(b.TotalCollection))
}

func TestSuggestedRefundFullWhenFillinsCoverDropouts(t *testing.T) {
	courts := []data.Court{{Cost: 90, CourtType: data.CourtRegular}}
	attendances := []data.Attendance{
		{PlayerID: 1, SessionID: 1, Status: data.StatusDropout, Category: data.CategoryRegular},
		{PlayerID: 2, SessionID: 1, Status: data.StatusFillin, Category: data.CategoryRegular},
		{PlayerID: 3, SessionID: 1, Status: data.StatusFillin, Category: data.CategoryRegular},
	}
	for i := int64(4); i <= 10; i++ {
		attendances = append(attendances, yesAttendance(i, data.CategoryRegular))
	}

	s := makeSession(2, courts, attendances)
	require.Equal(t, 7, AttendeeCount(s.Attendances))

	// fillins(2) >= dropouts(1): the full cost per player is recoverable
	want := CostPerPlayer(decimal.NewFromInt(90), 7, decimal.NewFromInt(2))
	got := SuggestedRefund(s)
	assert.True(t, want.Equal(got), "expected %s, got %s", want, got)
}

func TestSuggestedRefundPartialWithoutFillins(t *testing.T) {
	courts := []data.Court{{Cost: 90, CourtType: data.CourtRegular}}
	attendances := []data.Attendance{
		{PlayerID: 1, SessionID: 1, Status: data.StatusDropout, Category: data.CategoryRegular},
	}
	for i := int64(2); i <= 8; i++ {
		attendances = append(attendances, yesAttendance(i, data.CategoryRegular))
	}

	s := makeSession(2, courts, attendances)

	// No fill-ins: only the court share comes back, the birdie cost is sunk
	want := decimal.NewFromInt(90).Div(decimal.NewFromInt(7)).Round(2)
	got := SuggestedRefund(s)
	assert.True(t, want.Equal(got), "expected %s, got %s", want, got)
}

func TestSuggestedRefundZeroAttendees(t *testing.T) {
	courts := []data.Court{{Cost: 90, CourtType: data.CourtRegular}}
	attendances := []data.Attendance{
		{PlayerID: 1, SessionID: 1, Status: data.StatusDropout, Category: data.CategoryRegular},
	}

	got := SuggestedRefund(makeSession(2, courts, attendances))
	assert.True(t, decimal.Zero.Equal(got), "expected zero, got %s", got)
}
