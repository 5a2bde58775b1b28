package saltedge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
)

// Wire payloads. Monetary fields are decimal strings and stay strings until
// parsed into decimal.Decimal; they never pass through float64.

type statusPayload struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

type createSessionRequest struct {
	CustomerID      string `json:"customer_id"`
	InstitutionHint string `json:"institution_hint,omitempty"`
}

type sessionPayload struct {
	Data struct {
		SessionID  string    `json:"session_id"`
		Status     string    `json:"status"`
		ConnectURL string    `json:"connect_url"`
		ExpiresAt  time.Time `json:"expires_at"`
	} `json:"data"`
}

type accountData struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IBAN             string `json:"iban"`
	CurrencyCode     string `json:"currency_code"`
	Nature           string `json:"nature"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
}

type accountPayload struct {
	Data accountData `json:"data"`
}

type accountListPayload struct {
	Data []accountData `json:"data"`
}

type balanceData struct {
	Balance          string    `json:"balance"`
	AvailableBalance string    `json:"available_balance"`
	CurrencyCode     string    `json:"currency_code"`
	AsOf             time.Time `json:"as_of"`
}

type balancePayload struct {
	Data balanceData `json:"data"`
}

type transactionData struct {
	ID          string            `json:"id"`
	MadeOn      string            `json:"made_on"`
	BookedOn    string            `json:"booked_on"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency_code"`
	Description string            `json:"description"`
	Payee       string            `json:"payee"`
	Extra       map[string]string `json:"extra"`
}

type transactionListPayload struct {
	Data []transactionData `json:"data"`
	Meta struct {
		NextID string `json:"next_id"`
	} `json:"meta"`
}

type institutionData struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code"`
	LogoURL     string `json:"logo_url"`
}

type institutionListPayload struct {
	Data []institutionData `json:"data"`
}

type errorPayload struct {
	ErrorClass string `json:"error_class"`
	Message    string `json:"message"`
}

func mapSessionStatus(status string) (provider.SessionStatus, error) {
	switch status {
	case "pending":
		return provider.SessionPending, nil
	case "active":
		return provider.SessionActive, nil
	case "completed":
		return provider.SessionCompleted, nil
	case "expired":
		return provider.SessionExpired, nil
	case "suspended", "revoked":
		return provider.SessionSuspended, nil
	}
	return "", &provider.Error{
		Provider: providerName,
		Code:     provider.CodeInvalidPayload,
		Message:  fmt.Sprintf("unknown session status %q", status),
	}
}

func mapAccountType(nature string) domain.AccountType {
	switch nature {
	case "savings":
		return domain.AccountSavings
	case "credit", "credit_card":
		return domain.AccountCredit
	case "investment":
		return domain.AccountInvestment
	case "loan", "mortgage":
		return domain.AccountLoan
	default:
		return domain.AccountChecking
	}
}

func mapAccount(a accountData) (provider.Account, error) {
	balance, err := parseAmount(a.Balance)
	if err != nil {
		return provider.Account{}, err
	}

	account := provider.Account{
		ProviderAccountID: a.ID,
		Name:              a.Name,
		AccountNumber:     a.IBAN,
		Currency:          a.CurrencyCode,
		Type:              mapAccountType(a.Nature),
		Balance:           balance,
	}

	if a.AvailableBalance != "" {
		available, err := parseAmount(a.AvailableBalance)
		if err != nil {
			return provider.Account{}, err
		}
		account.AvailableBalance = &available
	}
	return account, nil
}

func mapBalance(b balanceData) (*provider.Balance, error) {
	current, err := parseAmount(b.Balance)
	if err != nil {
		return nil, err
	}

	balance := &provider.Balance{
		Current:  current,
		Currency: b.CurrencyCode,
		AsOf:     b.AsOf,
	}
	if b.AvailableBalance != "" {
		available, err := parseAmount(b.AvailableBalance)
		if err != nil {
			return nil, err
		}
		balance.Available = &available
	}
	return balance, nil
}

func mapTransaction(t transactionData) (provider.Transaction, error) {
	amount, err := parseAmount(t.Amount)
	if err != nil {
		return provider.Transaction{}, err
	}

	date, err := time.Parse("2006-01-02", t.MadeOn)
	if err != nil {
		return provider.Transaction{}, &provider.Error{
			Provider: providerName,
			Code:     provider.CodeInvalidPayload,
			Message:  fmt.Sprintf("transaction %s has malformed date %q", t.ID, t.MadeOn),
		}
	}

	tx := provider.Transaction{
		ProviderTxID: t.ID,
		Date:         date,
		Amount:       amount,
		Currency:     t.Currency,
		Description:  t.Description,
		Counterparty: t.Payee,
		Metadata:     t.Extra,
	}

	if t.BookedOn != "" {
		booked, err := time.Parse("2006-01-02", t.BookedOn)
		if err == nil {
			tx.BookingDate = &booked
		}
	}
	return tx, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &provider.Error{
			Provider: providerName,
			Code:     provider.CodeInvalidPayload,
			Message:  fmt.Sprintf("malformed decimal amount %q", s),
		}
	}
	return d, nil
}

// translateAPIError maps the provider's error envelope into the common
// taxonomy. Unrecognized classes on a 4xx are surfaced as invalid payload so
// they are never silently retried.
func translateAPIError(statusCode int, body []byte) error {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ErrorClass == "" {
		code := provider.CodeInvalidPayload
		if statusCode >= 500 {
			code = provider.CodeUnavailable
		}
		return &provider.Error{
			Provider:   providerName,
			Code:       code,
			Message:    fmt.Sprintf("provider returned status %d: %s", statusCode, string(body)),
			StatusCode: statusCode,
		}
	}

	code := provider.CodeInvalidPayload
	switch payload.ErrorClass {
	case "InvalidCredentials", "ApiKeyNotFound", "SignatureMismatch":
		code = provider.CodeInvalidCredentials
	case "ConsentRevoked", "ConnectionLost":
		code = provider.CodeConsentRevoked
	case "RateLimitExceeded", "TooManyRequests":
		code = provider.CodeRateLimited
	case "SessionNotFound", "ConnectionNotFound":
		code = provider.CodeSessionNotFound
	case "InternalServerError", "ProviderUnavailable":
		code = provider.CodeUnavailable
	default:
		if statusCode >= 500 {
			code = provider.CodeUnavailable
		}
	}

	return &provider.Error{
		Provider:   providerName,
		Code:       code,
		Message:    payload.Message,
		StatusCode: statusCode,
	}
}
