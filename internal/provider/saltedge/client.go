// Package saltedge implements the provider contract against a Salt Edge style
// aggregation API: HMAC-signed REST calls, connect sessions for the link flow,
// and page-token pagination for transactions.
package saltedge

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/provider"
)

const providerName = "saltedge"

type Client struct {
	baseURL    string
	appID      string
	secret     []byte
	httpClient *http.Client
}

func NewClient(cfg config.SaltEdgeConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		appID:   cfg.AppID,
		secret:  []byte(cfg.Secret),
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *Client) Name() string {
	return providerName
}

// Authenticate probes the status endpoint once at startup.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := sendRequest[any, statusPayload](c, ctx, http.MethodGet, "/api/v1/status", nil)
	return err
}

func (c *Client) InitiateLink(ctx context.Context, userID, institutionHint string) (*provider.LinkSession, error) {
	req := createSessionRequest{
		CustomerID:      userID,
		InstitutionHint: institutionHint,
	}
	resp, err := sendRequest[createSessionRequest, sessionPayload](c, ctx, http.MethodPost, "/api/v1/sessions", &req)
	if err != nil {
		return nil, err
	}
	return &provider.LinkSession{
		SessionID:   resp.Data.SessionID,
		RedirectURL: resp.Data.ConnectURL,
		ExpiresAt:   resp.Data.ExpiresAt,
	}, nil
}

func (c *Client) GetLinkStatus(ctx context.Context, sessionID string) (provider.SessionStatus, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s", url.PathEscape(sessionID))
	resp, err := sendRequest[any, sessionPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	return mapSessionStatus(resp.Data.Status)
}

func (c *Client) CompleteLink(ctx context.Context, sessionID string) ([]provider.Account, error) {
	return c.GetAccounts(ctx, sessionID)
}

func (c *Client) GetAccounts(ctx context.Context, sessionID string) ([]provider.Account, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/accounts", url.PathEscape(sessionID))
	resp, err := sendRequest[any, accountListPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	accounts := make([]provider.Account, 0, len(resp.Data))
	for _, a := range resp.Data {
		mapped, err := mapAccount(a)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, mapped)
	}
	return accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, sessionID, accountID string) (*provider.Account, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/accounts/%s", url.PathEscape(sessionID), url.PathEscape(accountID))
	resp, err := sendRequest[any, accountPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	mapped, err := mapAccount(resp.Data)
	if err != nil {
		return nil, err
	}
	return &mapped, nil
}

func (c *Client) GetBalance(ctx context.Context, sessionID, accountID string) (*provider.Balance, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/accounts/%s/balance", url.PathEscape(sessionID), url.PathEscape(accountID))
	resp, err := sendRequest[any, balancePayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return mapBalance(resp.Data)
}

// GetTransactions walks the provider's page-token pagination until the last
// page. Amounts stay decimal strings until mapping.
func (c *Client) GetTransactions(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]provider.Transaction, error) {
	var all []provider.Transaction
	fromID := ""

	for {
		path := fmt.Sprintf(
			"/api/v1/sessions/%s/accounts/%s/transactions?from_date=%s&to_date=%s",
			url.PathEscape(sessionID), url.PathEscape(accountID),
			from.Format("2006-01-02"), to.Format("2006-01-02"),
		)
		if fromID != "" {
			path += "&from_id=" + url.QueryEscape(fromID)
		}

		resp, err := sendRequest[any, transactionListPayload](c, ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		for _, t := range resp.Data {
			mapped, err := mapTransaction(t)
			if err != nil {
				return nil, err
			}
			all = append(all, mapped)
		}

		if resp.Meta.NextID == "" {
			return all, nil
		}
		fromID = resp.Meta.NextID
	}
}

// RevokeLink deletes the session. A session the provider no longer knows
// about counts as revoked.
func (c *Client) RevokeLink(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/v1/sessions/%s", url.PathEscape(sessionID))
	_, err := sendRequest[any, sessionPayload](c, ctx, http.MethodDelete, path, nil)
	if err != nil {
		if provErr, ok := provider.AsError(err); ok && provErr.Code == provider.CodeSessionNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) ListInstitutions(ctx context.Context, country string) ([]provider.Institution, error) {
	path := "/api/v1/institutions"
	if country != "" {
		path += "?country=" + url.QueryEscape(country)
	}
	resp, err := sendRequest[any, institutionListPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	institutions := make([]provider.Institution, 0, len(resp.Data))
	for _, i := range resp.Data {
		institutions = append(institutions, provider.Institution{
			ID:      i.Code,
			Name:    i.Name,
			Country: i.CountryCode,
			LogoURL: i.LogoURL,
		})
	}
	return institutions, nil
}

// sign computes the request signature over method|path|body with the shared
// secret, hex encoded.
func (c *Client) sign(method, path string, body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(method))
	mac.Write([]byte("|"))
	mac.Write([]byte(path))
	mac.Write([]byte("|"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func sendRequest[Req any, Resp any](c *Client, ctx context.Context, method, path string, reqBody *Req) (*Resp, error) {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("App-Id", c.appID)
	httpReq.Header.Set("Signature", c.sign(method, path, bodyBytes))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, translateAPIError(resp.StatusCode, body)
	}

	var payload Resp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &provider.Error{
			Provider:   providerName,
			Code:       provider.CodeInvalidPayload,
			Message:    fmt.Sprintf("malformed response body: %v", err),
			StatusCode: resp.StatusCode,
		}
	}

	return &payload, nil
}

func translateTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &provider.Error{
			Provider: providerName,
			Code:     provider.CodeTimeout,
			Message:  "request to provider timed out",
		}
	}
	return &provider.Error{
		Provider: providerName,
		Code:     provider.CodeUnavailable,
		Message:  err.Error(),
	}
}
