package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcbackend/internal/data"
)

func TestPlayerRepository(t *testing.T) {
	suite := NewTestSuite(t)

	p := suite.CreatePlayer(t, "Alice Chen", data.CategoryRegular)
	require.NotZero(t, p.ID)

	t.Run("GetByID", func(t *testing.T) {
		got, err := suite.Players.GetByID(p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice Chen", got.Name)
		assert.Equal(t, data.CategoryRegular, got.Category)
		assert.True(t, got.IsActive)
	})

	t.Run("SearchByName", func(t *testing.T) {
		suite.CreatePlayer(t, "Bob Tan", data.CategoryAdhoc)

		players, err := suite.Players.List("", "alice")
		require.NoError(t, err)
		require.Len(t, players, 1)
		assert.Equal(t, p.ID, players[0].ID)
	})

	t.Run("FilterByCategory", func(t *testing.T) {
		players, err := suite.Players.List(data.CategoryAdhoc, "")
		require.NoError(t, err)
		require.Len(t, players, 1)
		assert.Equal(t, "Bob Tan", players[0].Name)
	})

	t.Run("UpdateCategory", func(t *testing.T) {
		require.NoError(t, suite.Players.UpdateCategory(p.ID, data.CategoryKid))
		got, err := suite.Players.GetByID(p.ID)
		require.NoError(t, err)
		assert.Equal(t, data.CategoryKid, got.Category)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := suite.Players.Delete(99999)
		assert.ErrorIs(t, err, data.ErrNotFound)
	})
}

func TestSessionRepository(t *testing.T) {
	suite := NewTestSuite(t)

	s := suite.CreateSession(t, 2,
		data.Court{Name: "Court 1", Cost: 50, CourtType: data.CourtRegular},
		data.Court{Name: "Court 2", Cost: 40, CourtType: data.CourtAdhoc},
	)
	require.NotZero(t, s.ID)

	t.Run("GetByIDLoadsCourts", func(t *testing.T) {
		got, err := suite.Sessions.GetByID(s.ID)
		require.NoError(t, err)
		require.Len(t, got.Courts, 2)
		assert.Equal(t, 2.0, got.BirdieCost)
	})

	t.Run("ArchiveHidesFromDefaultList", func(t *testing.T) {
		require.NoError(t, suite.Sessions.SetArchived(s.ID, true))

		visible, err := suite.Sessions.List(false)
		require.NoError(t, err)
		assert.Empty(t, visible)

		all, err := suite.Sessions.List(true)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, suite.Sessions.SetArchived(s.ID, false))
	})

	t.Run("DeleteCascadesCourts", func(t *testing.T) {
		require.NoError(t, suite.Sessions.Delete(s.ID))
		courts, err := suite.Sessions.CourtsForSession(s.ID)
		require.NoError(t, err)
		assert.Empty(t, courts)
	})
}

func TestAttendanceUpsert(t *testing.T) {
	suite := NewTestSuite(t)

	kid := suite.CreatePlayer(t, "Kiddo Lim", data.CategoryKid)
	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 90, CourtType: data.CourtRegular})

	t.Run("FirstInsertSnapshotsBaseCategory", func(t *testing.T) {
		a, err := suite.Attendances.Upsert(kid.ID, s.ID, data.StatusYes, "", kid.Category)
		require.NoError(t, err)
		assert.Equal(t, data.CategoryKid, a.Category)
		assert.Equal(t, data.StatusYes, a.Status)
	})

	t.Run("RepeatUpsertKeepsSingleRow", func(t *testing.T) {
		_, err := suite.Attendances.Upsert(kid.ID, s.ID, data.StatusNo, "", kid.Category)
		require.NoError(t, err)

		all, err := suite.Attendances.ForSession(s.ID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, data.StatusNo, all[0].Status)
	})

	t.Run("StatusChangePreservesSnapshot", func(t *testing.T) {
		// The player grows up mid-season; old sign-ups keep the kid rate
		require.NoError(t, suite.Players.UpdateCategory(kid.ID, data.CategoryRegular))

		a, err := suite.Attendances.Upsert(kid.ID, s.ID, data.StatusYes, "", data.CategoryRegular)
		require.NoError(t, err)
		assert.Equal(t, data.CategoryKid, a.Category)
	})

	t.Run("ExplicitCategoryOverrides", func(t *testing.T) {
		a, err := suite.Attendances.Upsert(kid.ID, s.ID, data.StatusYes, data.CategoryRegular, data.CategoryRegular)
		require.NoError(t, err)
		assert.Equal(t, data.CategoryRegular, a.Category)
	})
}

func TestPaymentRepository(t *testing.T) {
	suite := NewTestSuite(t)

	p := suite.CreatePlayer(t, "Carol Wu", data.CategoryRegular)

	pay := &data.Payment{PlayerID: p.ID, Amount: 25.50, Method: "zelle"}
	require.NoError(t, suite.Payments.Insert(pay))
	require.NotZero(t, pay.ID)

	t.Run("SumForPlayer", func(t *testing.T) {
		require.NoError(t, suite.Payments.Insert(&data.Payment{PlayerID: p.ID, Amount: 10, Method: "cash"}))

		sum, err := suite.Payments.SumForPlayer(p.ID)
		require.NoError(t, err)
		assert.InDelta(t, 35.50, sum, 0.001)
	})

	t.Run("DeleteByRefundIDWithoutLink", func(t *testing.T) {
		removed, err := suite.Payments.DeleteByRefundID(12345)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

// Birdie stock is purchases minus usage: [50, 30] bought, [20] used.
func TestBirdieStock(t *testing.T) {
	suite := NewTestSuite(t)

	for _, tx := range []data.BirdieTransaction{
		{Type: data.BirdiePurchase, Quantity: 50, Cost: 120},
		{Type: data.BirdiePurchase, Quantity: 30, Cost: 75},
		{Type: data.BirdieUsage, Quantity: 20},
	} {
		tx := tx
		require.NoError(t, suite.Birdies.Insert(&tx))
	}

	stock, err := suite.Birdies.CurrentStock()
	require.NoError(t, err)
	assert.Equal(t, 60, stock)

	spent, err := suite.Birdies.TotalSpent()
	require.NoError(t, err)
	assert.InDelta(t, 195.0, spent, 0.001)
}

// Query results must stay readable for as long as the caller iterates; the
// timeout is released on Close, not when the query call returns.
func TestQueryRowsOutliveCall(t *testing.T) {
	suite := NewTestSuite(t)

	const total = 300
	for i := 0; i < total; i++ {
		suite.CreatePlayer(t, fmt.Sprintf("Member %03d", i), data.CategoryRegular)
	}

	rows, err := data.QueryDB(`SELECT id FROM players ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	time.Sleep(100 * time.Millisecond)

	var count int
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, total, count)

	players, err := suite.Players.List("", "")
	require.NoError(t, err)
	assert.Len(t, players, total)
}

// Processing writes the payment and flips the status in one transaction: a
// refund that is no longer pending cannot gain a second payment, and
// cancelling removes the ledger row and clears the processed date together.
func TestRefundTransitions(t *testing.T) {
	suite := NewTestSuite(t)

	p := suite.CreatePlayer(t, "Derek Ong", data.CategoryRegular)
	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 60, CourtType: data.CourtRegular})

	ref := &data.DropoutRefund{PlayerID: p.ID, SessionID: s.ID, RefundAmount: 15, SuggestedAmount: 15}
	require.NoError(t, suite.Refunds.Insert(ref))

	pay := &data.Payment{PlayerID: p.ID, Amount: -ref.RefundAmount, Method: "refund", RefundID: &ref.ID}
	require.NoError(t, suite.Refunds.Process(ref, pay, time.Now()))
	require.NotZero(t, pay.ID)

	got, err := suite.Refunds.GetByID(ref.ID)
	require.NoError(t, err)
	assert.Equal(t, data.RefundProcessed, got.Status)
	require.NotNil(t, got.ProcessedDate)

	t.Run("ProcessedRefundRejectsSecondPayment", func(t *testing.T) {
		dup := &data.Payment{PlayerID: p.ID, Amount: -ref.RefundAmount, Method: "refund", RefundID: &ref.ID}
		err := suite.Refunds.Process(ref, dup, time.Now())
		assert.ErrorIs(t, err, data.ErrNotFound)

		payments, err := suite.Payments.ForPlayer(p.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("CancelClearsProcessedDate", func(t *testing.T) {
		removed, err := suite.Refunds.Cancel(ref.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		got, err := suite.Refunds.GetByID(ref.ID)
		require.NoError(t, err)
		assert.Equal(t, data.RefundCancelled, got.Status)
		assert.Nil(t, got.ProcessedDate)

		_, err = suite.Payments.GetByRefundID(ref.ID)
		assert.ErrorIs(t, err, data.ErrNotFound)
	})
}

// Archived sessions do not count as upcoming even when their date is ahead.
func TestCountUpcomingSkipsArchived(t *testing.T) {
	suite := NewTestSuite(t)

	suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 50, CourtType: data.CourtRegular})
	archived := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 50, CourtType: data.CourtRegular})
	require.NoError(t, suite.Sessions.SetArchived(archived.ID, true))

	count, err := suite.Sessions.CountUpcoming(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
