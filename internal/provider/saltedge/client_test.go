package saltedge_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/provider"
	"github.com/finbridge/banklink/internal/provider/saltedge"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *saltedge.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return saltedge.NewClient(config.SaltEdgeConfig{
		BaseURL:     server.URL,
		AppID:       "app-1",
		Secret:      "test-secret",
		ConnTimeout: 5 * time.Second,
	})
}

func TestClient_SignsRequests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "app-1", r.Header.Get("App-Id"))

		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(r.Method + "|" + r.URL.RequestURI() + "|"))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("Signature"))

		w.Write([]byte(`{"data": {"status": "ok"}}`))
	})

	err := client.Authenticate(context.Background())

	require.NoError(t, err)
}

func TestClient_InitiateLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"customer_id": "user-1", "institution_hint": "fake_bank"}`, string(body))

		w.Write([]byte(`{"data": {
			"session_id": "sess-1",
			"status": "pending",
			"connect_url": "https://connect.example/sess-1",
			"expires_at": "2026-09-01T12:00:00Z"
		}}`))
	})

	session, err := client.InitiateLink(context.Background(), "user-1", "fake_bank")

	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.SessionID)
	assert.Equal(t, "https://connect.example/sess-1", session.RedirectURL)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), session.ExpiresAt)
}

func TestClient_GetAccounts_DecimalFidelity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/sess-1/accounts", r.URL.Path)
		w.Write([]byte(`{"data": [
			{
				"id": "acct-1",
				"name": "Main Checking",
				"iban": "DE89370400440532013000",
				"currency_code": "EUR",
				"nature": "account",
				"balance": "12345.67",
				"available_balance": "12000.00"
			},
			{
				"id": "acct-2",
				"name": "Rainy Day",
				"iban": "DE89370400440532013001",
				"currency_code": "EUR",
				"nature": "savings",
				"balance": "-0.10",
				"available_balance": ""
			}
		]}`))
	})

	accounts, err := client.GetAccounts(context.Background(), "sess-1")

	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "acct-1", accounts[0].ProviderAccountID)
	assert.Equal(t, "12345.67", accounts[0].Balance.String())
	require.NotNil(t, accounts[0].AvailableBalance)
	assert.Equal(t, "12000", accounts[0].AvailableBalance.String())

	assert.Equal(t, "-0.1", accounts[1].Balance.String())
	assert.Nil(t, accounts[1].AvailableBalance)
}

func TestClient_GetAccounts_MalformedAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"id": "acct-1", "balance": "12,345.67", "currency_code": "EUR"}]}`))
	})

	_, err := client.GetAccounts(context.Background(), "sess-1")

	require.Error(t, err)
	provErr, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.CodeInvalidPayload, provErr.Code)
}

func TestClient_GetTransactions_Pagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("from_date"))
		assert.Equal(t, "2026-08-31", r.URL.Query().Get("to_date"))

		if r.URL.Query().Get("from_id") == "" {
			w.Write([]byte(`{
				"data": [{
					"id": "tx-1",
					"made_on": "2026-08-10",
					"booked_on": "2026-08-11",
					"amount": "-42.50",
					"currency_code": "EUR",
					"description": "Groceries",
					"payee": "Supermarket",
					"extra": {"category": "food"}
				}],
				"meta": {"next_id": "tx-1"}
			}`))
			return
		}

		assert.Equal(t, "tx-1", r.URL.Query().Get("from_id"))
		w.Write([]byte(`{
			"data": [{
				"id": "tx-2",
				"made_on": "2026-08-12",
				"amount": "1500.00",
				"currency_code": "EUR",
				"description": "Salary"
			}],
			"meta": {"next_id": ""}
		}`))
	})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	txs, err := client.GetTransactions(context.Background(), "sess-1", "acct-1", from, to)

	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "tx-1", txs[0].ProviderTxID)
	assert.Equal(t, "-42.5", txs[0].Amount.String())
	assert.Equal(t, "Supermarket", txs[0].Counterparty)
	require.NotNil(t, txs[0].BookingDate)
	assert.Equal(t, time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC), *txs[0].BookingDate)
	assert.Equal(t, "food", txs[0].Metadata["category"])

	assert.Equal(t, "tx-2", txs[1].ProviderTxID)
	assert.Nil(t, txs[1].BookingDate)
}

func TestClient_GetLinkStatus(t *testing.T) {
	tests := []struct {
		wire string
		want provider.SessionStatus
	}{
		{"pending", provider.SessionPending},
		{"active", provider.SessionActive},
		{"completed", provider.SessionCompleted},
		{"expired", provider.SessionExpired},
		{"revoked", provider.SessionSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data": {"session_id": "sess-1", "status": "` + tt.wire + `"}}`))
			})

			status, err := client.GetLinkStatus(context.Background(), "sess-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestClient_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   string
	}{
		{
			name:       "invalid credentials",
			statusCode: 401,
			body:       `{"error_class": "InvalidCredentials", "message": "bad app id"}`,
			wantCode:   provider.CodeInvalidCredentials,
		},
		{
			name:       "consent revoked",
			statusCode: 403,
			body:       `{"error_class": "ConsentRevoked", "message": "user withdrew consent"}`,
			wantCode:   provider.CodeConsentRevoked,
		},
		{
			name:       "rate limited",
			statusCode: 429,
			body:       `{"error_class": "RateLimitExceeded", "message": "slow down"}`,
			wantCode:   provider.CodeRateLimited,
		},
		{
			name:       "session not found",
			statusCode: 404,
			body:       `{"error_class": "SessionNotFound", "message": "no such session"}`,
			wantCode:   provider.CodeSessionNotFound,
		},
		{
			name:       "server error without envelope",
			statusCode: 502,
			body:       `<html>bad gateway</html>`,
			wantCode:   provider.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetLinkStatus(context.Background(), "sess-1")

			require.Error(t, err)
			provErr, ok := provider.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, tt.statusCode, provErr.StatusCode)
		})
	}
}

func TestClient_RevokeLink_ToleratesMissingSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error_class": "SessionNotFound", "message": "already gone"}`))
	})

	err := client.RevokeLink(context.Background(), "sess-1")

	assert.NoError(t, err)
}
