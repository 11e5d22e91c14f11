package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vietddude/custody/internal/core/account"
	"github.com/vietddude/custody/internal/core/config"
	"github.com/vietddude/custody/internal/core/cursor"
	"github.com/vietddude/custody/internal/core/vault"
	"github.com/vietddude/custody/internal/core/worker"
	"github.com/vietddude/custody/internal/indexing/filter"
	"github.com/vietddude/custody/internal/indexing/health"
	"github.com/vietddude/custody/internal/indexing/ledger"
	"github.com/vietddude/custody/internal/indexing/scanner"
	"github.com/vietddude/custody/internal/indexing/sweep"
	"github.com/vietddude/custody/internal/indexing/throttle"
	"github.com/vietddude/custody/internal/indexing/tracker"
	"github.com/vietddude/custody/internal/infra/chain/evm"
	redisclient "github.com/vietddude/custody/internal/infra/redis"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/infra/storage/memory"
	"github.com/vietddude/custody/internal/infra/storage/postgres"
)

// App wires every component from configuration.
type App struct {
	cfg config.AppConfig

	db    *postgres.DB
	redis *redisclient.Client
	eth   *ethclient.Client

	Gateway  *evm.Gateway
	Cursor   *cursor.Manager
	Ledger   *ledger.Ledger
	Sweeper  *sweep.Coordinator
	Accounts *account.Service
	Engine   *Engine
	Health   *health.Monitor

	healthServer *health.Server
	log          *slog.Logger
}

type repositories struct {
	wallets     storage.WalletRepository
	deposits    storage.DepositRepository
	cursors     storage.CursorRepository
	hot         storage.HotWalletRepository
	withdrawals storage.WithdrawalRepository
	tx          storage.Transactor
	pinger      storage.Pinger
}

// NewApp connects to the store, redis and the RPC endpoint and builds the
// engine.
func NewApp(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, log: logger}

	repos, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.redis, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		repos.cursors = redisclient.NewCursorRepo(a.redis)
		logger.Info("Using Redis for scan cursor and funding guard")
	}

	keys, err := vault.New(cfg.Security.EncryptionSecret)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gateway, a.eth, err = evm.Dial(ctx, cfg.Chain.RPCURL, evm.Config{
		ChainID:        cfg.Chain.ChainID,
		TokenContract:  cfg.Chain.TokenContract,
		TokenDecimals:  cfg.Chain.TokenDecimals,
		GasLimitToken:  cfg.Chain.GasLimitToken,
		GasLimitNative: cfg.Chain.GasLimitNative,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	minDeposit, err := cfg.Engine.MinDepositAmount()
	if err != nil {
		a.Close()
		return nil, err
	}
	multiplier, err := cfg.Engine.TopUpMultiplier()
	if err != nil {
		a.Close()
		return nil, err
	}

	pool := worker.NewPool("engine", cfg.Engine.Workers, logger)

	a.Cursor = cursor.NewManager(repos.cursors, cursor.DefaultName)
	a.Ledger = ledger.New(repos.wallets, repos.deposits, repos.tx, logger)
	a.Accounts = account.NewService(repos.wallets, repos.hot, keys, evm.GenerateKey, logger)

	sc := scanner.New(a.Gateway, a.Ledger, a.Cursor, filter.NewMemoryFilter(repos.wallets), scanner.Config{
		BlockBatch:            cfg.Engine.BlockBatch,
		RequiredConfirmations: cfg.Engine.RequiredConfirmations,
		MinDeposit:            minDeposit,
	}, logger)
	tr := tracker.New(a.Gateway, a.Ledger, pool, cfg.Engine.RequiredConfirmations, logger)

	deps := sweep.Deps{
		Gateway:     a.Gateway,
		Transactor:  repos.tx,
		Wallets:     repos.wallets,
		Deposits:    repos.deposits,
		HotWallet:   repos.hot,
		Withdrawals: repos.withdrawals,
		Vault:       keys,
		Pool:        pool,
	}
	if a.redis != nil {
		deps.Guard = redisclient.NewFundingGuard(a.redis)
	}
	a.Sweeper = sweep.NewCoordinator(deps, sweep.Config{
		TopUpMultiplier: multiplier,
		FundingTimeout:  cfg.Engine.FundingTimeout,
		ReceiptTimeout:  cfg.Chain.ReceiptTimeout,
		FundingPoll:     cfg.Engine.FundingPoll,
	}, logger)

	a.Engine = NewEngine(repos.pinger, sc, tr, a.Sweeper, EngineConfig{
		PollInterval:     cfg.Engine.PollInterval,
		MaxStoreFailures: cfg.Engine.MaxStoreFailures,
		CatchUpInterval:  cfg.Engine.CatchUpInterval,
	}, logger)

	heads := throttle.NewHeadCache(a.Gateway, throttle.DefaultConfig(cfg.Engine.PollInterval).HeadCacheTTL)
	a.Health = health.NewMonitor(heads, a.Cursor, repos.pinger, a.Ledger, cfg.Engine.RequiredConfirmations)
	a.healthServer = health.NewServer(a.Health, cfg.Server.Port)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (*repositories, error) {
	if a.cfg.Database.URL == config.MemoryDatabaseURL {
		store := memory.NewMemoryStorage()
		a.log.Warn("Using Memory storage, state is lost on exit")
		return &repositories{
			wallets:     memory.NewWalletRepo(store),
			deposits:    memory.NewDepositRepo(store),
			cursors:     memory.NewCursorRepo(store),
			hot:         memory.NewHotWalletRepo(store),
			withdrawals: memory.NewWithdrawalRepo(store),
			tx:          store,
			pinger:      store,
		}, nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	a.db = db
	a.log.Info("Using PostgreSQL storage")

	return &repositories{
		wallets:     postgres.NewWalletRepo(db),
		deposits:    postgres.NewDepositRepo(db),
		cursors:     postgres.NewCursorRepo(db),
		hot:         postgres.NewHotWalletRepo(db),
		withdrawals: postgres.NewWithdrawalRepo(db),
		tx:          db,
		pinger:      db,
	}, nil
}

// Run serves health endpoints and drives the engine until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	err := a.Engine.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := a.healthServer.Stop(stopCtx); stopErr != nil {
		a.log.Warn("Failed to stop health server", "error", stopErr)
	}
	return err
}

// Close releases every connection.
func (a *App) Close() {
	if a.eth != nil {
		a.eth.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
