// club_flow_test.go - end-to-end journeys through the live route table
package testing

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcbackend/internal/data"
)

// envelope mirrors the standard API response shape.
type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
}

// Two courts at $50 and $40 with a $2 birdie cost, six regulars and one
// kid attending: every regular owes 14.86, the kid owes the flat 11.00,
// and the whole session collects 100.16.
func TestSessionCostingFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	s := suite.CreateSession(t, 2,
		data.Court{Name: "Court 1", Cost: 50, CourtType: data.CourtRegular},
		data.Court{Name: "Court 2", Cost: 40, CourtType: data.CourtAdhoc},
	)
	for i := 1; i <= 6; i++ {
		p := suite.CreatePlayer(t, fmt.Sprintf("Regular %d", i), data.CategoryRegular)
		suite.SignUp(t, p, s)
	}
	kid := suite.CreatePlayer(t, "Kiddo", data.CategoryKid)
	suite.SignUp(t, kid, s)

	var resp envelope
	httpResp := suite.DoJSON(t, http.MethodGet, fmt.Sprintf("/api/session?id=%d", s.ID), nil, &resp)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.True(t, resp.Success)

	breakdown, ok := resp.Data["breakdown"].(map[string]interface{})
	require.True(t, ok, "session detail should carry a breakdown")

	assert.Equal(t, "90.00", breakdown["total_cost"])
	assert.Equal(t, "14.86", breakdown["cost_per_player"])
	assert.Equal(t, "89.16", breakdown["regular_charges"])
	assert.Equal(t, "11.00", breakdown["kid_charges"])
	assert.Equal(t, "100.16", breakdown["total_collection"])
	assert.Equal(t, float64(7), breakdown["attendee_count"])
}

// A dropout refund is suggested at the full per-player cost, the operator
// overrides the amount, processing writes the negative payment, and
// cancelling removes it again.
func TestRefundLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 90, CourtType: data.CourtRegular})
	for i := 1; i <= 7; i++ {
		p := suite.CreatePlayer(t, fmt.Sprintf("Player %d", i), data.CategoryRegular)
		suite.SignUp(t, p, s)
	}

	dropout := suite.CreatePlayer(t, "Dora Dropout", data.CategoryRegular)
	_, err := suite.Attendances.Upsert(dropout.ID, s.ID, data.StatusDropout, "", dropout.Category)
	require.NoError(t, err)
	fillin := suite.CreatePlayer(t, "Fiona Fillin", data.CategoryRegular)
	_, err = suite.Attendances.Upsert(fillin.ID, s.ID, data.StatusFillin, "", fillin.Category)
	require.NoError(t, err)

	// Create: one fill-in covers the one dropout, so the suggestion is
	// the full cost per player.
	var created struct {
		Success bool               `json:"success"`
		Data    data.DropoutRefund `json:"data"`
	}
	httpResp := suite.DoJSON(t, http.MethodPost, "/api/refunds", map[string]interface{}{
		"player_id":  dropout.ID,
		"session_id": s.ID,
	}, &created)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.True(t, created.Success)
	assert.Equal(t, data.RefundPending, created.Data.Status)
	assert.InDelta(t, 14.86, created.Data.SuggestedAmount, 0.001)

	refundID := created.Data.ID

	// Operator overrides the amount down to 10.00
	httpResp = suite.DoJSON(t, http.MethodPut, fmt.Sprintf("/api/refund?id=%d", refundID),
		map[string]interface{}{"amount": 10.00}, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	// Process: the negative payment appears, linked by refund_id
	httpResp = suite.DoJSON(t, http.MethodPost, fmt.Sprintf("/api/refund/process?id=%d", refundID), nil, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	linked, err := suite.Payments.GetByRefundID(refundID)
	require.NoError(t, err)
	assert.InDelta(t, -10.00, linked.Amount, 0.001)
	assert.Equal(t, dropout.ID, linked.PlayerID)

	ref, err := suite.Refunds.GetByID(refundID)
	require.NoError(t, err)
	assert.Equal(t, data.RefundProcessed, ref.Status)
	require.NotNil(t, ref.ProcessedDate)

	// Processing twice is rejected
	httpResp = suite.DoJSON(t, http.MethodPost, fmt.Sprintf("/api/refund/process?id=%d", refundID), nil, nil)
	assert.Equal(t, http.StatusConflict, httpResp.StatusCode)

	// Editing the amount while processed keeps the ledger row in step
	httpResp = suite.DoJSON(t, http.MethodPut, fmt.Sprintf("/api/refund?id=%d", refundID),
		map[string]interface{}{"amount": 12.00}, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	linked, err = suite.Payments.GetByRefundID(refundID)
	require.NoError(t, err)
	assert.InDelta(t, -12.00, linked.Amount, 0.001)

	// Cancel: payment removed, status terminal
	httpResp = suite.DoJSON(t, http.MethodPost, fmt.Sprintf("/api/refund/cancel?id=%d", refundID), nil, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	_, err = suite.Payments.GetByRefundID(refundID)
	assert.ErrorIs(t, err, data.ErrNotFound)

	ref, err = suite.Refunds.GetByID(refundID)
	require.NoError(t, err)
	assert.Equal(t, data.RefundCancelled, ref.Status)
	assert.Nil(t, ref.ProcessedDate)

	httpResp = suite.DoJSON(t, http.MethodPost, fmt.Sprintf("/api/refund/process?id=%d", refundID), nil, nil)
	assert.Equal(t, http.StatusConflict, httpResp.StatusCode)
}

// A player's balance reflects charges minus payments and tracks refund
// processing immediately.
func TestBalanceReconciliation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 90, CourtType: data.CourtRegular})
	var first *data.Player
	for i := 1; i <= 7; i++ {
		p := suite.CreatePlayer(t, fmt.Sprintf("Player %d", i), data.CategoryRegular)
		suite.SignUp(t, p, s)
		if first == nil {
			first = p
		}
	}

	var detail struct {
		Success bool `json:"success"`
		Data    struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	suite.DoJSON(t, http.MethodGet, fmt.Sprintf("/api/player?id=%d", first.ID), nil, &detail)
	assert.Equal(t, "14.86", detail.Data.Balance)

	// Recording the payment clears the balance on the very next read
	httpResp := suite.DoJSON(t, http.MethodPost, "/api/payments", map[string]interface{}{
		"player_id": first.ID,
		"amount":    14.86,
		"method":    "zelle",
	}, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	suite.DoJSON(t, http.MethodGet, fmt.Sprintf("/api/player?id=%d", first.ID), nil, &detail)
	assert.Equal(t, "0.00", detail.Data.Balance)
}

func TestAttendanceRules(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	p := suite.CreatePlayer(t, "Rule Tester", data.CategoryRegular)
	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 60, CourtType: data.CourtRegular})

	t.Run("UpsertReturnsFreshCost", func(t *testing.T) {
		var resp envelope
		httpResp := suite.DoJSON(t, http.MethodPost, "/api/attendance", map[string]interface{}{
			"player_id":  p.ID,
			"session_id": s.ID,
			"status":     "YES",
		}, &resp)
		require.Equal(t, http.StatusOK, httpResp.StatusCode)
		assert.Equal(t, float64(1), resp.Data["attendee_count"])
		assert.Equal(t, "62.00", resp.Data["cost_per_player"])
	})

	t.Run("InvalidStatusRejected", func(t *testing.T) {
		httpResp := suite.DoJSON(t, http.MethodPost, "/api/attendance", map[string]interface{}{
			"player_id":  p.ID,
			"session_id": s.ID,
			"status":     "MAYBE",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	})

	t.Run("AdminOverridesFrozenVoting", func(t *testing.T) {
		httpResp := suite.DoJSON(t, http.MethodPost, fmt.Sprintf("/api/session/freeze?id=%d", s.ID), nil, nil)
		require.Equal(t, http.StatusOK, httpResp.StatusCode)

		// The suite token is the shared admin, so the freeze does not
		// apply to it.
		httpResp = suite.DoJSON(t, http.MethodPost, "/api/attendance", map[string]interface{}{
			"player_id":  p.ID,
			"session_id": s.ID,
			"status":     "DROPOUT",
		}, nil)
		assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	})
}

func TestAuthRequired(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	resp, err := suite.Client.Get(suite.Server.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Zelle preference only accepts the contact channels we can pay through.
func TestZellePreferenceValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	httpResp := suite.DoJSON(t, http.MethodPost, "/api/players", map[string]interface{}{
		"name":             "Priya Nair",
		"zelle_preference": "carrier_pigeon",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)

	var created struct {
		Success bool        `json:"success"`
		Data    data.Player `json:"data"`
	}
	httpResp = suite.DoJSON(t, http.MethodPost, "/api/players", map[string]interface{}{
		"name":             "Priya Nair",
		"email":            "priya@example.com",
		"zelle_preference": "email",
	}, &created)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Equal(t, data.ZelleByEmail, created.Data.ZellePreference)

	httpResp = suite.DoJSON(t, http.MethodPut, fmt.Sprintf("/api/player?id=%d", created.Data.ID),
		map[string]interface{}{"zelle_preference": "fax"}, nil)
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

// Deactivated players drop out of the outstanding-balance ranking even when
// they still owe money.
func TestOutstandingSkipsInactivePlayers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	s := suite.CreateSession(t, 2, data.Court{Name: "Court 1", Cost: 60, CourtType: data.CourtRegular})
	active := suite.CreatePlayer(t, "Active Al", data.CategoryRegular)
	suite.SignUp(t, active, s)
	inactive := suite.CreatePlayer(t, "Gone Gil", data.CategoryRegular)
	suite.SignUp(t, inactive, s)

	inactive.IsActive = false
	require.NoError(t, suite.Players.Update(inactive))

	var resp envelope
	httpResp := suite.DoJSON(t, http.MethodGet, "/api/payments", nil, &resp)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	outstanding, ok := resp.Data["outstanding"].([]interface{})
	require.True(t, ok, "ledger should carry the outstanding ranking")
	require.Len(t, outstanding, 1)
	row := outstanding[0].(map[string]interface{})
	assert.Equal(t, float64(active.ID), row["player_id"])
	assert.Equal(t, "Active Al", row["name"])
}
