package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncOutcome is the final status of one synchronization attempt.
type SyncOutcome string

const (
	SyncSucceeded SyncOutcome = "SUCCESS"
	SyncPartial   SyncOutcome = "PARTIAL"
	SyncFailed    SyncOutcome = "FAILED"
)

// SyncLog is the append-only audit record of one sync attempt. It is created
// when the attempt starts and finalized exactly once when it ends; completion
// fields are the only mutation it ever sees.
type SyncLog struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Provider  string

	Status      SyncOutcome
	StartedAt   time.Time
	CompletedAt *time.Time

	AccountsSynced     int
	TransactionsSynced int

	ErrorCode    *string
	ErrorMessage *string
}

func NewSyncLog(accountID uuid.UUID, provider string) *SyncLog {
	return &SyncLog{
		ID:        uuid.New(),
		AccountID: accountID,
		Provider:  provider,
		StartedAt: time.Now(),
	}
}

// Finalize sets the completion fields. Calling it twice is a programming
// error; the second call is ignored to keep the log append-only.
func (l *SyncLog) Finalize(status SyncOutcome, accounts, transactions int, errCode, errMsg string) {
	if l.CompletedAt != nil {
		return
	}
	now := time.Now()
	l.Status = status
	l.CompletedAt = &now
	l.AccountsSynced = accounts
	l.TransactionsSynced = transactions
	if errCode != "" {
		l.ErrorCode = &errCode
	}
	if errMsg != "" {
		l.ErrorMessage = &errMsg
	}
}
