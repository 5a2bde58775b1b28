// Package nordigen implements the provider contract against a
// GoCardless/Nordigen style aggregation API: short-lived bearer tokens issued
// from a secret pair, requisitions for the link flow, and offset pagination.
package nordigen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/provider"
)

const (
	providerName = "nordigen"
	pageSize     = 200
)

type Client struct {
	baseURL    string
	secretID   string
	secretKey  string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.NordigenConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		secretID:  cfg.SecretID,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *Client) Name() string {
	return providerName
}

// Authenticate forces a token exchange, which doubles as the health probe.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}

func (c *Client) InitiateLink(ctx context.Context, userID, institutionHint string) (*provider.LinkSession, error) {
	req := createRequisitionRequest{
		Reference:     userID,
		InstitutionID: institutionHint,
	}
	resp, err := sendRequest[createRequisitionRequest, requisitionPayload](c, ctx, http.MethodPost, "/api/v2/requisitions/", &req)
	if err != nil {
		return nil, err
	}
	return &provider.LinkSession{
		SessionID:   resp.ID,
		RedirectURL: resp.Link,
		ExpiresAt:   resp.ExpiresAt,
	}, nil
}

func (c *Client) GetLinkStatus(ctx context.Context, sessionID string) (provider.SessionStatus, error) {
	resp, err := c.getRequisition(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return mapRequisitionStatus(resp.Status)
}

func (c *Client) CompleteLink(ctx context.Context, sessionID string) ([]provider.Account, error) {
	return c.GetAccounts(ctx, sessionID)
}

// GetAccounts resolves the requisition's account IDs, then fetches account
// detail per ID. The requisition carries only references.
func (c *Client) GetAccounts(ctx context.Context, sessionID string) ([]provider.Account, error) {
	req, err := c.getRequisition(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	accounts := make([]provider.Account, 0, len(req.Accounts))
	for _, accountID := range req.Accounts {
		account, err := c.GetAccount(ctx, sessionID, accountID)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, sessionID, accountID string) (*provider.Account, error) {
	path := fmt.Sprintf("/api/v2/accounts/%s/", url.PathEscape(accountID))
	detail, err := sendRequest[any, accountDetailPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	balance, err := c.GetBalance(ctx, sessionID, accountID)
	if err != nil {
		return nil, err
	}
	return mapAccount(*detail, balance)
}

func (c *Client) GetBalance(ctx context.Context, sessionID, accountID string) (*provider.Balance, error) {
	path := fmt.Sprintf("/api/v2/accounts/%s/balances/", url.PathEscape(accountID))
	resp, err := sendRequest[any, balancesPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return mapBalances(resp.Balances)
}

func (c *Client) GetTransactions(ctx context.Context, sessionID, accountID string, from, to time.Time) ([]provider.Transaction, error) {
	var all []provider.Transaction
	offset := 0

	for {
		path := fmt.Sprintf(
			"/api/v2/accounts/%s/transactions/?date_from=%s&date_to=%s&limit=%d&offset=%d",
			url.PathEscape(accountID),
			from.Format("2006-01-02"), to.Format("2006-01-02"),
			pageSize, offset,
		)

		resp, err := sendRequest[any, transactionsPayload](c, ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		for _, t := range resp.Transactions.Booked {
			mapped, err := mapTransaction(t, true)
			if err != nil {
				return nil, err
			}
			all = append(all, mapped)
		}
		for _, t := range resp.Transactions.Pending {
			mapped, err := mapTransaction(t, false)
			if err != nil {
				return nil, err
			}
			all = append(all, mapped)
		}

		fetched := len(resp.Transactions.Booked) + len(resp.Transactions.Pending)
		if fetched < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

// RevokeLink deletes the requisition; a 404 means it is already gone, which
// satisfies idempotency.
func (c *Client) RevokeLink(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/v2/requisitions/%s/", url.PathEscape(sessionID))
	_, err := sendRequest[any, requisitionPayload](c, ctx, http.MethodDelete, path, nil)
	if err != nil {
		if provErr, ok := provider.AsError(err); ok && provErr.Code == provider.CodeSessionNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) ListInstitutions(ctx context.Context, country string) ([]provider.Institution, error) {
	path := "/api/v2/institutions/"
	if country != "" {
		path += "?country=" + url.QueryEscape(country)
	}
	resp, err := sendRequest[any, institutionsPayload](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	institutions := make([]provider.Institution, 0, len(*resp))
	for _, i := range *resp {
		institutions = append(institutions, provider.Institution{
			ID:      i.ID,
			Name:    i.Name,
			Country: i.Country,
			LogoURL: i.Logo,
		})
	}
	return institutions, nil
}

func (c *Client) getRequisition(ctx context.Context, sessionID string) (*requisitionPayload, error) {
	path := fmt.Sprintf("/api/v2/requisitions/%s/", url.PathEscape(sessionID))
	return sendRequest[any, requisitionPayload](c, ctx, http.MethodGet, path, nil)
}

// token returns a cached access token, exchanging the secret pair for a new
// one when the cached token is within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	body, err := json.Marshal(tokenRequest{SecretID: c.secretID, SecretKey: c.secretKey})
	if err != nil {
		return "", fmt.Errorf("error marshalling json: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/token/new/", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", translateAPIError(resp.StatusCode, respBody)
	}

	var payload tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &provider.Error{
			Provider: providerName,
			Code:     provider.CodeInvalidPayload,
			Message:  fmt.Sprintf("malformed token response: %v", err),
		}
	}

	c.accessToken = payload.Access
	c.tokenExpiry = time.Now().Add(time.Duration(payload.AccessExpires) * time.Second)
	return c.accessToken, nil
}

func sendRequest[Req any, Resp any](c *Client, ctx context.Context, method, path string, reqBody *Req) (*Resp, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

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
