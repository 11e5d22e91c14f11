package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/custody/internal/core/vault"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Chain.TokenDecimals == 0 {
		c.Chain.TokenDecimals = 18
	}
	if c.Chain.GasLimitToken == 0 {
		c.Chain.GasLimitToken = 65000
	}
	if c.Chain.GasLimitNative == 0 {
		c.Chain.GasLimitNative = 21000
	}
	if c.Chain.ReceiptTimeout == 0 {
		c.Chain.ReceiptTimeout = 2 * time.Minute
	}

	e := &c.Engine
	if e.PollInterval == 0 {
		e.PollInterval = 15 * time.Second
	}
	if e.BlockBatch == 0 {
		e.BlockBatch = 500
	}
	if e.RequiredConfirmations == 0 {
		e.RequiredConfirmations = 12
	}
	if e.MinDeposit == "" {
		e.MinDeposit = "0"
	}
	if e.Workers == 0 {
		e.Workers = 4
	}
	if e.GasTopUpMultiplier == "" {
		e.GasTopUpMultiplier = "1.5"
	}
	if e.FundingTimeout == 0 {
		e.FundingTimeout = 60 * time.Second
	}
	if e.FundingPoll == 0 {
		e.FundingPoll = 3 * time.Second
	}
	if e.MaxStoreFailures == 0 {
		e.MaxStoreFailures = 5
	}
	if e.CatchUpInterval == 0 {
		e.CatchUpInterval = time.Second
	}
}

// Validate checks the settings the engine cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required (use memory:// for an in-process store)"))
	}
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpc_url is required"))
	}
	if !common.IsHexAddress(c.Chain.TokenContract) {
		errs = append(errs, fmt.Errorf("chain.token_contract %q is not an address", c.Chain.TokenContract))
	}
	if len(c.Security.EncryptionSecret) < vault.MinSecretLength {
		errs = append(errs, fmt.Errorf("security.encryption_secret must be at least %d characters", vault.MinSecretLength))
	}
	if _, err := c.Engine.MinDepositAmount(); err != nil {
		errs = append(errs, err)
	}
	if m, err := c.Engine.TopUpMultiplier(); err != nil {
		errs = append(errs, err)
	} else if m.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("engine.gas_topup_multiplier must be >= 1, got %s", m))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers))
	}

	return errors.Join(errs...)
}

// MinDepositAmount parses engine.min_deposit.
func (e EngineConfig) MinDepositAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(e.MinDeposit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine.min_deposit: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("engine.min_deposit must not be negative, got %s", d)
	}
	return d, nil
}

// TopUpMultiplier parses engine.gas_topup_multiplier.
func (e EngineConfig) TopUpMultiplier() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(e.GasTopUpMultiplier)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine.gas_topup_multiplier: %w", err)
	}
	return d, nil
}
