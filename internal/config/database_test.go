package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "banklink",
		Password:        "secret",
		Name:            "banklink",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

func TestDatabaseConfig_PgxConfig(t *testing.T) {
	t.Run("maps pool settings", func(t *testing.T) {
		c := testDatabaseConfig()
		c.HealthCheckPeriod = time.Minute

		cfg, err := c.PgxConfig()

		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.ConnConfig.Host)
		assert.Equal(t, uint16(5432), cfg.ConnConfig.Port)
		assert.Equal(t, "banklink", cfg.ConnConfig.Database)
		assert.Equal(t, int32(20), cfg.MaxConns)
		assert.Equal(t, int32(5), cfg.MinConns)
		assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
		assert.Equal(t, 10*time.Minute, cfg.MaxConnIdleTime)
		assert.Equal(t, time.Minute, cfg.HealthCheckPeriod)
	})

	t.Run("defaults the health check period", func(t *testing.T) {
		c := testDatabaseConfig()

		cfg, err := c.PgxConfig()

		require.NoError(t, err)
		assert.Equal(t, defaultHealthCheckPeriod, cfg.HealthCheckPeriod)
	})
}
