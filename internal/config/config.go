package config

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ServiceName = "stock-ledger"
	envPrefix   = "LEDGER"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr       string   `envconfig:"GRPC_ADDR" default:":50051"`
	Store          string   `envconfig:"STORE" default:"mysql"`
	MySQLDSN       string   `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/stockledger?parseTime=true"`
	RedisAddr      string   `envconfig:"REDIS_ADDR"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic     string   `envconfig:"KAFKA_TOPIC" default:"stock-events"`
	WorkerCount    int      `envconfig:"WORKER_COUNT" default:"4"`
	QueueSize      int      `envconfig:"QUEUE_SIZE" default:"1024"`
	NumberAttempts int      `envconfig:"NUMBER_ATTEMPTS" default:"10"`
	TxRetries      int      `envconfig:"TX_RETRIES" default:"3"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	MigrateOnStart bool     `envconfig:"MIGRATE_ON_START" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return errors.New("LEDGER_MYSQL_DSN is required for the mysql store")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	if c.WorkerCount <= 0 {
		return errors.New("LEDGER_WORKER_COUNT must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("LEDGER_QUEUE_SIZE must be positive")
	}
	if c.NumberAttempts <= 0 {
		return errors.New("LEDGER_NUMBER_ATTEMPTS must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "LEDGER_LOG_LEVEL")
	}
	return nil
}

// NewLogger builds the production JSON logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger.With(zap.String("service", ServiceName)), nil
}
