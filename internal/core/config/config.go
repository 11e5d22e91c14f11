package config

import (
	"time"

	redisclient "github.com/vietddude/custody/internal/infra/redis"
	"github.com/vietddude/custody/internal/infra/storage/postgres"
)

// MemoryDatabaseURL selects the in-process store. State is lost on exit.
const MemoryDatabaseURL = "memory://"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Chain    ChainConfig        `yaml:"chain"`
	Engine   EngineConfig       `yaml:"engine"`
	Security SecurityConfig     `yaml:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the ledger the engine watches.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id"`
	TokenContract  string        `yaml:"token_contract"`
	TokenDecimals  int32         `yaml:"token_decimals"`
	GasLimitToken  uint64        `yaml:"gas_limit_token"`
	GasLimitNative uint64        `yaml:"gas_limit_native"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
}

// EngineConfig holds the scan/track/sweep cycle settings.
type EngineConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	BlockBatch            uint64        `yaml:"block_batch"`
	RequiredConfirmations uint64        `yaml:"required_confirmations"`
	MinDeposit            string        `yaml:"min_deposit"` // decimal, in token units
	Workers               int           `yaml:"workers"`
	GasTopUpMultiplier    string        `yaml:"gas_topup_multiplier"`
	FundingTimeout        time.Duration `yaml:"funding_timeout"`
	FundingPoll           time.Duration `yaml:"funding_poll"`
	MaxStoreFailures      int           `yaml:"max_store_failures"`
	CatchUpInterval       time.Duration `yaml:"catch_up_interval"` // negative disables adaptive polling
}

// SecurityConfig holds the deployment secret used to encrypt wallet keys.
type SecurityConfig struct {
	EncryptionSecret string `yaml:"encryption_secret"`
}
