package nordigen_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/provider"
	"github.com/finbridge/banklink/internal/provider/nordigen"
)

// newTestClient wires a client against a server that answers the token
// exchange and delegates everything else to handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*nordigen.Client, *int64) {
	t.Helper()
	var tokenExchanges int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/token/new/" {
			atomic.AddInt64(&tokenExchanges, 1)
			w.Write([]byte(`{"access": "tok-1", "access_expires": 86400}`))
			return
		}
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := nordigen.NewClient(config.NordigenConfig{
		BaseURL:     server.URL,
		SecretID:    "secret-id",
		SecretKey:   "secret-key",
		ConnTimeout: 5 * time.Second,
	})
	return client, &tokenExchanges
}

func TestClient_TokenIsCachedAcrossCalls(t *testing.T) {
	client, tokenExchanges := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "req-1", "status": "CR", "link": "https://ob.example/start"}`))
	})

	_, err := client.GetLinkStatus(context.Background(), "req-1")
	require.NoError(t, err)
	_, err = client.GetLinkStatus(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(tokenExchanges))
}

func TestClient_GetLinkStatus_StatusCodes(t *testing.T) {
	tests := []struct {
		wire string
		want provider.SessionStatus
	}{
		{"CR", provider.SessionPending},
		{"GC", provider.SessionPending},
		{"UA", provider.SessionPending},
		{"LN", provider.SessionActive},
		{"EX", provider.SessionExpired},
		{"SU", provider.SessionSuspended},
		{"RJ", provider.SessionSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id": "req-1", "status": "` + tt.wire + `"}`))
			})

			status, err := client.GetLinkStatus(context.Background(), "req-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestClient_GetAccounts_ResolvesRequisitionAccounts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/requisitions/req-1/":
			w.Write([]byte(`{"id": "req-1", "status": "LN", "accounts": ["res-1"]}`))
		case "/api/v2/accounts/res-1/":
			w.Write([]byte(`{"account": {
				"resourceId": "res-1",
				"iban": "DE89370400440532013000",
				"name": "",
				"currency": "EUR",
				"cashAccountType": "SVGS"
			}}`))
		case "/api/v2/accounts/res-1/balances/":
			w.Write([]byte(`{"balances": [
				{
					"balanceAmount": {"amount": "980.45", "currency": "EUR"},
					"balanceType": "closingBooked",
					"referenceDate": "2026-08-30"
				},
				{
					"balanceAmount": {"amount": "975.00", "currency": "EUR"},
					"balanceType": "interimAvailable"
				}
			]}`))
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
		}
	})

	accounts, err := client.GetAccounts(context.Background(), "req-1")

	require.NoError(t, err)
	require.Len(t, accounts, 1)

	account := accounts[0]
	assert.Equal(t, "res-1", account.ProviderAccountID)
	assert.Equal(t, "DE89370400440532013000", account.Name, "IBAN substitutes for a missing name")
	assert.Equal(t, "980.45", account.Balance.String())
	require.NotNil(t, account.AvailableBalance)
	assert.Equal(t, "975", account.AvailableBalance.String())
}

func TestClient_GetTransactions_MergesBookedAndPending(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/accounts/res-1/transactions/", r.URL.Path)
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("date_from"))

		w.Write([]byte(`{"transactions": {
			"booked": [{
				"transactionId": "tx-1",
				"bookingDate": "2026-08-11",
				"valueDate": "2026-08-10",
				"transactionAmount": {"amount": "-42.50", "currency": "EUR"},
				"creditorName": "Supermarket",
				"remittanceInformationUnstructured": "Groceries"
			}],
			"pending": [{
				"transactionId": "tx-2",
				"valueDate": "2026-08-12",
				"transactionAmount": {"amount": "-5.00", "currency": "EUR"},
				"creditorName": "Coffee"
			}]
		}}`))
	})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	txs, err := client.GetTransactions(context.Background(), "req-1", "res-1", from, to)

	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "tx-1", txs[0].ProviderTxID)
	assert.Equal(t, "-42.5", txs[0].Amount.String())
	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), txs[0].Date)
	require.NotNil(t, txs[0].BookingDate)
	assert.Equal(t, time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC), *txs[0].BookingDate)

	assert.Equal(t, "tx-2", txs[1].ProviderTxID)
	assert.Nil(t, txs[1].BookingDate, "pending transactions carry no booking date")
}

func TestClient_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   string
	}{
		{
			name:       "consent revoked wins over status code",
			statusCode: 401,
			body:       `{"summary": "EUA was revoked", "detail": "user withdrew consent"}`,
			wantCode:   provider.CodeConsentRevoked,
		},
		{
			name:       "unauthorized",
			statusCode: 401,
			body:       `{"summary": "Invalid token", "detail": "token expired"}`,
			wantCode:   provider.CodeInvalidCredentials,
		},
		{
			name:       "requisition gone",
			statusCode: 404,
			body:       `{"summary": "Not found", "detail": "no such requisition"}`,
			wantCode:   provider.CodeSessionNotFound,
		},
		{
			name:       "rate limited",
			statusCode: 429,
			body:       `{"summary": "Rate limit exceeded", "detail": "try again later"}`,
			wantCode:   provider.CodeRateLimited,
		},
		{
			name:       "server error",
			statusCode: 500,
			body:       `{"summary": "Server error", "detail": "oops"}`,
			wantCode:   provider.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetLinkStatus(context.Background(), "req-1")

			require.Error(t, err)
			provErr, ok := provider.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, provErr.Code)
		})
	}
}

func TestClient_RevokeLink_ToleratesMissingRequisition(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"summary": "Not found", "detail": "already deleted"}`))
	})

	err := client.RevokeLink(context.Background(), "req-1")

	assert.NoError(t, err)
}
