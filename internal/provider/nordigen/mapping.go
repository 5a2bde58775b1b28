package nordigen

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbridge/banklink/internal/domain"
	"github.com/finbridge/banklink/internal/provider"
)

type tokenRequest struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

type tokenPayload struct {
	Access        string `json:"access"`
	AccessExpires int    `json:"access_expires"`
}

type createRequisitionRequest struct {
	Reference     string `json:"reference"`
	InstitutionID string `json:"institution_id,omitempty"`
}

type requisitionPayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Link      string    `json:"link"`
	Accounts  []string  `json:"accounts"`
	ExpiresAt time.Time `json:"expires_at"`
}

type accountDetailPayload struct {
	Account struct {
		ResourceID string `json:"resourceId"`
		IBAN       string `json:"iban"`
		Name       string `json:"name"`
		Currency   string `json:"currency"`
		CashType   string `json:"cashAccountType"`
	} `json:"account"`
}

type amountValue struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type balanceEntry struct {
	BalanceAmount amountValue `json:"balanceAmount"`
	BalanceType   string      `json:"balanceType"`
	ReferenceDate string      `json:"referenceDate"`
}

type balancesPayload struct {
	Balances []balanceEntry `json:"balances"`
}

type transactionEntry struct {
	TransactionID     string            `json:"transactionId"`
	BookingDate       string            `json:"bookingDate"`
	ValueDate         string            `json:"valueDate"`
	TransactionAmount amountValue       `json:"transactionAmount"`
	CreditorName      string            `json:"creditorName"`
	DebtorName        string            `json:"debtorName"`
	Remittance        string            `json:"remittanceInformationUnstructured"`
	AdditionalInfo    map[string]string `json:"additionalInformation"`
}

type transactionsPayload struct {
	Transactions struct {
		Booked  []transactionEntry `json:"booked"`
		Pending []transactionEntry `json:"pending"`
	} `json:"transactions"`
}

type institutionEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo"`
}

type institutionsPayload []institutionEntry

type errorPayload struct {
	Summary    string `json:"summary"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

// Requisition statuses follow the provider's two-letter codes.
func mapRequisitionStatus(status string) (provider.SessionStatus, error) {
	switch status {
	case "CR", "GC", "UA": // created, giving consent, undergoing authentication
		return provider.SessionPending, nil
	case "LN": // linked
		return provider.SessionActive, nil
	case "EX":
		return provider.SessionExpired, nil
	case "SU", "RJ": // suspended, rejected
		return provider.SessionSuspended, nil
	}
	return "", &provider.Error{
		Provider: providerName,
		Code:     provider.CodeInvalidPayload,
		Message:  fmt.Sprintf("unknown requisition status %q", status),
	}
}

func mapAccountType(cashType string) domain.AccountType {
	switch cashType {
	case "SVGS":
		return domain.AccountSavings
	case "CARD":
		return domain.AccountCredit
	case "LOAN":
		return domain.AccountLoan
	default:
		return domain.AccountChecking
	}
}

func mapAccount(detail accountDetailPayload, balance *provider.Balance) (*provider.Account, error) {
	name := detail.Account.Name
	if name == "" {
		name = detail.Account.IBAN
	}
	return &provider.Account{
		ProviderAccountID: detail.Account.ResourceID,
		Name:              name,
		AccountNumber:     detail.Account.IBAN,
		Currency:          detail.Account.Currency,
		Type:              mapAccountType(detail.Account.CashType),
		Balance:           balance.Current,
		AvailableBalance:  balance.Available,
	}, nil
}

// mapBalances picks the closing booked balance as current and the interim
// available balance when present.
func mapBalances(entries []balanceEntry) (*provider.Balance, error) {
	if len(entries) == 0 {
		return nil, &provider.Error{
			Provider: providerName,
			Code:     provider.CodeInvalidPayload,
			Message:  "provider returned no balances",
		}
	}

	balance := &provider.Balance{AsOf: time.Now()}
	var haveCurrent bool

	for _, e := range entries {
		amount, err := parseAmount(e.BalanceAmount.Amount)
		if err != nil {
			return nil, err
		}
		switch e.BalanceType {
		case "closingBooked":
			balance.Current = amount
			balance.Currency = e.BalanceAmount.Currency
			haveCurrent = true
			if e.ReferenceDate != "" {
				if asOf, err := time.Parse("2006-01-02", e.ReferenceDate); err == nil {
					balance.AsOf = asOf
				}
			}
		case "interimAvailable":
			available := amount
			balance.Available = &available
		}
	}

	if !haveCurrent {
		amount, err := parseAmount(entries[0].BalanceAmount.Amount)
		if err != nil {
			return nil, err
		}
		balance.Current = amount
		balance.Currency = entries[0].BalanceAmount.Currency
	}
	return balance, nil
}

func mapTransaction(t transactionEntry, booked bool) (provider.Transaction, error) {
	amount, err := parseAmount(t.TransactionAmount.Amount)
	if err != nil {
		return provider.Transaction{}, err
	}

	dateStr := t.ValueDate
	if dateStr == "" {
		dateStr = t.BookingDate
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return provider.Transaction{}, &provider.Error{
			Provider: providerName,
			Code:     provider.CodeInvalidPayload,
			Message:  fmt.Sprintf("transaction %s has malformed date %q", t.TransactionID, dateStr),
		}
	}

	counterparty := t.CreditorName
	if counterparty == "" {
		counterparty = t.DebtorName
	}

	tx := provider.Transaction{
		ProviderTxID: t.TransactionID,
		Date:         date,
		Amount:       amount,
		Currency:     t.TransactionAmount.Currency,
		Description:  t.Remittance,
		Counterparty: counterparty,
		Metadata:     t.AdditionalInfo,
	}

	if booked && t.BookingDate != "" {
		if bookingDate, err := time.Parse("2006-01-02", t.BookingDate); err == nil {
			tx.BookingDate = &bookingDate
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

func translateAPIError(statusCode int, body []byte) error {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Summary == "" {
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

	var code string
	switch {
	case payload.Summary == "EUA was revoked" || payload.Summary == "Consent revoked":
		code = provider.CodeConsentRevoked
	case statusCode == 401 || statusCode == 403:
		code = provider.CodeInvalidCredentials
	case statusCode == 404:
		code = provider.CodeSessionNotFound
	case statusCode == 429:
		code = provider.CodeRateLimited
	case statusCode >= 500:
		code = provider.CodeUnavailable
	default:
		code = provider.CodeInvalidPayload
	}

	return &provider.Error{
		Provider:   providerName,
		Code:       code,
		Message:    fmt.Sprintf("%s: %s", payload.Summary, payload.Detail),
		StatusCode: statusCode,
	}
}
