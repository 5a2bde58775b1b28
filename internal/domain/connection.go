// Package domain encodes the entities of the banking integration layer and
// the link-flow state machine that governs a Connection's lifecycle.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// LinkStatus represents the current state of a Connection in its link flow.
type LinkStatus string

const (
	StatusPending   LinkStatus = "PENDING"
	StatusActive    LinkStatus = "ACTIVE"
	StatusCompleted LinkStatus = "COMPLETED"
	StatusExpired   LinkStatus = "EXPIRED"
	StatusRevoked   LinkStatus = "REVOKED"
)

// Connection is one OAuth authorization session between a user and a banking
// provider. It belongs to exactly one user and one provider for its lifetime.
type Connection struct {
	ID                uuid.UUID
	UserID            string
	Provider          string
	ProviderSessionID string
	Status            LinkStatus
	RedirectURL       string

	CreatedAt    time.Time
	ExpiresAt    time.Time
	AuthorizedAt *time.Time
	RevokedAt    *time.Time
}

func NewConnection(userID, provider, sessionID, redirectURL string, expiresAt time.Time) (*Connection, error) {
	if userID == "" {
		return nil, NewMissingRequiredFieldError("user ID")
	}
	if provider == "" {
		return nil, NewMissingRequiredFieldError("provider")
	}
	if sessionID == "" {
		return nil, NewMissingRequiredFieldError("provider session ID")
	}

	return &Connection{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          provider,
		ProviderSessionID: sessionID,
		Status:            StatusPending,
		RedirectURL:       redirectURL,
		CreatedAt:         time.Now(),
		ExpiresAt:         expiresAt,
	}, nil
}

// Authorize records that the provider reported the session as authorized.
// Only legal from PENDING.
func (c *Connection) Authorize(authorizedAt time.Time) error {
	if err := c.transition(StatusActive); err != nil {
		return err
	}
	c.AuthorizedAt = &authorizedAt
	return nil
}

// Complete marks the link flow finished. Only legal from ACTIVE, after the
// discovered accounts have been persisted.
func (c *Connection) Complete() error {
	return c.transition(StatusCompleted)
}

// Expire marks a pending session as timed out. Evaluated lazily against
// ExpiresAt; see IsExpired.
func (c *Connection) Expire() error {
	return c.transition(StatusExpired)
}

// Revoke invalidates the authorization. Legal from any non-terminal state and
// idempotent once revoked: local state is authoritative for the caller even
// when the remote revoke call fails.
func (c *Connection) Revoke(revokedAt time.Time) error {
	if c.Status == StatusRevoked {
		return nil
	}
	if err := c.transition(StatusRevoked); err != nil {
		return err
	}
	c.RevokedAt = &revokedAt
	return nil
}

// IsExpired reports whether a still-pending session has outlived ExpiresAt.
func (c *Connection) IsExpired(now time.Time) bool {
	return c.Status == StatusPending && now.After(c.ExpiresAt)
}

func (c *Connection) IsTerminal() bool {
	switch c.Status {
	case StatusCompleted, StatusExpired, StatusRevoked:
		return true
	default:
		return false
	}
}

func (c *Connection) transition(target LinkStatus) error {
	if err := c.canTransitionTo(target); err != nil {
		return err
	}
	c.Status = target
	return nil
}

// canTransitionTo encodes the legal, strictly forward transitions. Illegal
// attempts fail without mutating the Connection.
func (c *Connection) canTransitionTo(target LinkStatus) error {
	switch c.Status {
	case StatusPending:
		return c.allow(target, StatusActive, StatusExpired, StatusRevoked)
	case StatusActive:
		return c.allow(target, StatusCompleted, StatusRevoked)
	case StatusCompleted, StatusExpired:
		return c.allow(target, StatusRevoked)
	}
	return NewInvalidTransitionError(c.Status, target)
}

func (c *Connection) allow(target LinkStatus, allowed ...LinkStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(c.Status, target)
}

// ReconstituteConnection loads a Connection from storage without running the
// state machine.
func ReconstituteConnection(
	id uuid.UUID, userID, provider, sessionID string,
	status LinkStatus, redirectURL string,
	createdAt, expiresAt time.Time,
	authorizedAt, revokedAt *time.Time,
) *Connection {
	return &Connection{
		ID:                id,
		UserID:            userID,
		Provider:          provider,
		ProviderSessionID: sessionID,
		Status:            status,
		RedirectURL:       redirectURL,
		CreatedAt:         createdAt,
		ExpiresAt:         expiresAt,
		AuthorizedAt:      authorizedAt,
		RevokedAt:         revokedAt,
	}
}
