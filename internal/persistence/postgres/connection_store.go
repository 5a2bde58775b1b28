package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finbridge/banklink/internal/domain"
)

func (s *Store) CreateConnection(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (
			id, user_id, provider, provider_session_id, status, redirect_url,
			created_at, expires_at, authorized_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	m := toConnectionModel(conn)
	_, err := s.pool.Exec(ctx, query,
		m.ID, m.UserID, m.Provider, m.ProviderSessionID, m.Status, m.RedirectURL,
		m.CreatedAt, m.ExpiresAt, m.AuthorizedAt, m.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	query := `
		SELECT id, user_id, provider, provider_session_id, status, redirect_url,
		       created_at, expires_at, authorized_at, revoked_at
		FROM connections WHERE id = $1
	`
	return scanConnection(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) GetConnectionBySession(ctx context.Context, sessionID string) (*domain.Connection, error) {
	query := `
		SELECT id, user_id, provider, provider_session_id, status, redirect_url,
		       created_at, expires_at, authorized_at, revoked_at
		FROM connections WHERE provider_session_id = $1
	`
	return scanConnection(s.pool.QueryRow(ctx, query, sessionID))
}

// UpdateConnection persists the current status and lifecycle timestamps. The
// state machine has already validated the transition.
func (s *Store) UpdateConnection(ctx context.Context, conn *domain.Connection) error {
	query := `
		UPDATE connections
		SET status = $1, authorized_at = $2, revoked_at = $3
		WHERE id = $4
	`

	m := toConnectionModel(conn)
	result, err := s.pool.Exec(ctx, query, m.Status, m.AuthorizedAt, m.RevokedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewConnectionNotFoundError(m.ID.String())
	}
	return nil
}

func (s *Store) ListConnectionsByStatus(ctx context.Context, status domain.LinkStatus, limit int) ([]*domain.Connection, error) {
	query := `
		SELECT id, user_id, provider, provider_session_id, status, redirect_url,
		       created_at, expires_at, authorized_at, revoked_at
		FROM connections
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query connections by status: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Connection, error) {
		var m connectionModel
		err := row.Scan(
			&m.ID, &m.UserID, &m.Provider, &m.ProviderSessionID, &m.Status, &m.RedirectURL,
			&m.CreatedAt, &m.ExpiresAt, &m.AuthorizedAt, &m.RevokedAt,
		)
		return toDomainConnection(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan connections: %w", err)
	}
	return results, nil
}

// ReadQuotaCounters counts slot-holding connections per provider. Used to
// seed the quota monitor at startup. Pending links hold a slot from the
// moment they are initiated, so they count alongside authorized ones.
func (s *Store) ReadQuotaCounters(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT provider, COUNT(*)
		FROM connections
		WHERE status IN ('PENDING', 'ACTIVE', 'COMPLETED')
		GROUP BY provider
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query quota counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int)
	for rows.Next() {
		var provider string
		var count int
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, fmt.Errorf("scan quota counter: %w", err)
		}
		counters[provider] = count
	}
	return counters, rows.Err()
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var m connectionModel
	err := row.Scan(
		&m.ID, &m.UserID, &m.Provider, &m.ProviderSessionID, &m.Status, &m.RedirectURL,
		&m.CreatedAt, &m.ExpiresAt, &m.AuthorizedAt, &m.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewConnectionNotFoundError("")
		}
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}
	return toDomainConnection(m), nil
}
