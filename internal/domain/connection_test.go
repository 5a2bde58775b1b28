package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/banklink/internal/domain"
)

func createTestConnection(t *testing.T) *domain.Connection {
	t.Helper()
	conn, err := domain.NewConnection("user-1", "saltedge", "sess-123", "https://link.example/sess-123", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return conn
}

func TestNewConnection(t *testing.T) {
	t.Run("creates connection successfully", func(t *testing.T) {
		conn := createTestConnection(t)

		assert.Equal(t, "user-1", conn.UserID)
		assert.Equal(t, "saltedge", conn.Provider)
		assert.Equal(t, "sess-123", conn.ProviderSessionID)
		assert.Equal(t, domain.StatusPending, conn.Status)
		assert.NotZero(t, conn.ID)
		assert.NotZero(t, conn.CreatedAt)
		assert.Nil(t, conn.AuthorizedAt)
	})

	t.Run("rejects empty user ID", func(t *testing.T) {
		_, err := domain.NewConnection("", "saltedge", "sess-123", "", time.Now())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "user ID is required")
	})

	t.Run("rejects empty provider", func(t *testing.T) {
		_, err := domain.NewConnection("user-1", "", "sess-123", "", time.Now())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider is required")
	})

	t.Run("rejects empty session ID", func(t *testing.T) {
		_, err := domain.NewConnection("user-1", "saltedge", "", "", time.Now())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider session ID is required")
	})
}

func TestConnection_StateTransitions(t *testing.T) {
	t.Run("PENDING -> ACTIVE transition", func(t *testing.T) {
		conn := createTestConnection(t)

		err := conn.Authorize(time.Now())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, conn.Status)
		assert.NotNil(t, conn.AuthorizedAt)
	})

	t.Run("ACTIVE -> COMPLETED transition", func(t *testing.T) {
		conn := createTestConnection(t)
		require.NoError(t, conn.Authorize(time.Now()))

		err := conn.Complete()

		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, conn.Status)
	})

	t.Run("PENDING -> EXPIRED transition", func(t *testing.T) {
		conn := createTestConnection(t)

		err := conn.Expire()

		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, conn.Status)
	})

	t.Run("revocation is legal from every state", func(t *testing.T) {
		for _, setup := range []func(c *domain.Connection){
			func(c *domain.Connection) {},
			func(c *domain.Connection) { c.Authorize(time.Now()) },
			func(c *domain.Connection) { c.Authorize(time.Now()); c.Complete() },
			func(c *domain.Connection) { c.Expire() },
		} {
			conn := createTestConnection(t)
			setup(conn)

			err := conn.Revoke(time.Now())

			require.NoError(t, err)
			assert.Equal(t, domain.StatusRevoked, conn.Status)
			assert.NotNil(t, conn.RevokedAt)
		}
	})

	t.Run("revocation is idempotent", func(t *testing.T) {
		conn := createTestConnection(t)
		require.NoError(t, conn.Revoke(time.Now()))
		firstRevokedAt := *conn.RevokedAt

		err := conn.Revoke(time.Now().Add(time.Minute))

		require.NoError(t, err)
		assert.Equal(t, domain.StatusRevoked, conn.Status)
		assert.Equal(t, firstRevokedAt, *conn.RevokedAt)
	})
}

func TestConnection_IllegalTransitions(t *testing.T) {
	t.Run("PENDING cannot complete directly", func(t *testing.T) {
		conn := createTestConnection(t)

		err := conn.Complete()

		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))
		assert.Equal(t, domain.StatusPending, conn.Status)
	})

	t.Run("COMPLETED cannot move backward", func(t *testing.T) {
		conn := createTestConnection(t)
		require.NoError(t, conn.Authorize(time.Now()))
		require.NoError(t, conn.Complete())

		assert.Error(t, conn.Authorize(time.Now()))
		assert.Error(t, conn.Expire())
		assert.Equal(t, domain.StatusCompleted, conn.Status)
	})

	t.Run("REVOKED is terminal", func(t *testing.T) {
		conn := createTestConnection(t)
		require.NoError(t, conn.Revoke(time.Now()))

		assert.Error(t, conn.Authorize(time.Now()))
		assert.Error(t, conn.Complete())
		assert.Error(t, conn.Expire())
		assert.Equal(t, domain.StatusRevoked, conn.Status)
	})

	t.Run("illegal transition does not mutate state", func(t *testing.T) {
		conn := createTestConnection(t)
		require.NoError(t, conn.Expire())

		err := conn.Authorize(time.Now())

		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))
		assert.Equal(t, domain.StatusExpired, conn.Status)
		assert.Nil(t, conn.AuthorizedAt)
	})
}

func TestConnection_IsExpired(t *testing.T) {
	conn := createTestConnection(t)
	conn.ExpiresAt = time.Now().Add(-time.Minute)

	assert.True(t, conn.IsExpired(time.Now()))

	require.NoError(t, conn.Authorize(time.Now()))
	assert.False(t, conn.IsExpired(time.Now()), "only pending sessions expire")
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "******************3000", domain.MaskAccountNumber("DE89370400440532013000"))
	assert.Equal(t, "1234", domain.MaskAccountNumber("1234"))
	assert.Equal(t, "", domain.MaskAccountNumber(""))
}
