package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, StoreMySQL, cfg.Store)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 10, cfg.NumberAttempts)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("LEDGER_STORE", "memory")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEDGER_WORKER_COUNT", "8")
	t.Setenv("LEDGER_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 8, cfg.WorkerCount)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestValidate(t *testing.T) {
	valid := Config{Store: StoreMemory, WorkerCount: 1, QueueSize: 1, NumberAttempts: 1, LogLevel: "info"}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("unknown store", func(t *testing.T) {
		c := valid
		c.Store = "postgres"
		assert.Error(t, c.Validate())
	})

	t.Run("mysql without dsn", func(t *testing.T) {
		c := valid
		c.Store = StoreMySQL
		assert.Error(t, c.Validate())
	})

	t.Run("zero workers", func(t *testing.T) {
		c := valid
		c.WorkerCount = 0
		assert.Error(t, c.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		c := valid
		c.LogLevel = "loud"
		assert.Error(t, c.Validate())
	})
}
