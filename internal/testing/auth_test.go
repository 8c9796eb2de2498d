package testing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcbackend/internal/data"
	"bcbackend/internal/security"
)

func (ts *TestSuite) login(t *testing.T, body map[string]string) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := ts.Client.Post(ts.Server.URL+"/api/login", "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	suite := NewTestSuite(t)

	hash, err := security.HashPassword("s3cret-badminton")
	require.NoError(t, err)
	p := suite.CreatePlayer(t, "Login Tester", data.CategoryRegular)
	p.Email = "login@example.com"
	require.NoError(t, suite.Players.Update(p))
	require.NoError(t, suite.Players.UpdatePassword(p.ID, hash))

	t.Run("AdminPassword", func(t *testing.T) {
		resp := suite.login(t, map[string]string{"password": "test-admin-password"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			AccessToken string `json:"access_token"`
			Role        string `json:"role"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, security.RoleAdmin, body.Role)
		assert.True(t, security.ValidateAccessToken(body.AccessToken))
	})

	t.Run("PlayerCredentials", func(t *testing.T) {
		resp := suite.login(t, map[string]string{
			"email":    "login@example.com",
			"password": "s3cret-badminton",
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Role   string       `json:"role"`
			Player *data.Player `json:"player"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, security.RolePlayer, body.Role)
		require.NotNil(t, body.Player)
		assert.Equal(t, p.ID, body.Player.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		resp := suite.login(t, map[string]string{
			"email":    "login@example.com",
			"password": "nope",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("InactivePlayerRejected", func(t *testing.T) {
		p.IsActive = false
		require.NoError(t, suite.Players.Update(p))

		resp := suite.login(t, map[string]string{
			"email":    "login@example.com",
			"password": "s3cret-badminton",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
