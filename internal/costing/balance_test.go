package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bcbackend/internal/data"
)

func TestTotalCharges(t *testing.T) {
	rows := []data.ChargeRow{
		{SessionID: 1, Category: data.CategoryRegular, BirdieCost: 2, TotalCost: 90, AttendeeCount: 7},
		{SessionID: 2, Category: data.CategoryKid, BirdieCost: 2, TotalCost: 90, AttendeeCount: 7},
		{SessionID: 3, Category: data.CategoryRegular, BirdieCost: 0, TotalCost: 60, AttendeeCount: 6},
	}

	// 14.86 + 11.00 + 10.00
	got := TotalCharges(rows)
	assert.True(t, decimal.RequireFromString("35.86").Equal(got), "got %s", got)
}

func TestTotalChargesSkipsEmptySessions(t *testing.T) {
	rows := []data.ChargeRow{
		{SessionID: 1, Category: data.CategoryRegular, BirdieCost: 2, TotalCost: 90, AttendeeCount: 0},
	}
	assert.True(t, decimal.Zero.Equal(TotalCharges(rows)))
	assert.True(t, decimal.Zero.Equal(TotalCharges(nil)))
}

func TestTotalPaymentsIncludesRefunds(t *testing.T) {
	payments := []data.Payment{
		{Amount: 20},
		{Amount: 14.86},
		{Amount: -14.86}, // processed refund
	}
	got := TotalPayments(payments)
	assert.True(t, decimal.NewFromInt(20).Equal(got), "got %s", got)
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name     string
		charges  string
		payments string
		want     string
	}{
		{"owes money", "35.86", "20", "15.86"},
		{"paid up", "35.86", "35.86", "0"},
		{"in credit", "20", "35.86", "-15.86"},
		{"no history", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Balance(decimal.RequireFromString(tt.charges), decimal.RequireFromString(tt.payments))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestComputePlayerBalance(t *testing.T) {
	rows := []data.ChargeRow{
		{SessionID: 1, Category: data.CategoryRegular, BirdieCost: 2, TotalCost: 90, AttendeeCount: 7},
		{SessionID: 2, Category: data.CategoryRegular, BirdieCost: 0, TotalCost: 60, AttendeeCount: 6},
	}
	payments := []data.Payment{{Amount: 14.86}}

	pb := ComputePlayerBalance(rows, payments)

	assert.True(t, decimal.RequireFromString("24.86").Equal(pb.TotalCharges), "charges %s", pb.TotalCharges)
	assert.True(t, decimal.RequireFromString("14.86").Equal(pb.TotalPayments))
	assert.True(t, decimal.NewFromInt(10).Equal(pb.Balance), "balance %s", pb.Balance)
}
