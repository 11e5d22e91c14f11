package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/metrics"
)

// ERC-20 ABI for balanceOf and transfer functions
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Backend is the subset of ethclient.Client the gateway uses.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Config holds the gateway settings.
type Config struct {
	ChainID        int64
	TokenContract  string
	TokenDecimals  int32
	GasLimitToken  uint64
	GasLimitNative uint64
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	Retry          RetryConfig
}

// Gateway implements chain.Gateway for an ERC-20 token on an EVM chain.
type Gateway struct {
	backend Backend
	cfg     Config
	token   common.Address
	abi     abi.ABI
	chainID *big.Int
	log     *slog.Logger
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string, cfg Config, logger *slog.Logger) (*Gateway, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rpc: %w", err)
	}
	gw, err := NewGateway(client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return gw, client, nil
}

// NewGateway creates a gateway over any backend.
func NewGateway(backend Backend, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("invalid token contract %q", cfg.TokenContract)
	}
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	if cfg.GasLimitToken == 0 {
		cfg.GasLimitToken = 65000
	}
	if cfg.GasLimitNative == 0 {
		cfg.GasLimitNative = 21000
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptPoll == 0 {
		cfg.ReceiptPoll = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryConfig
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		backend: backend,
		cfg:     cfg,
		token:   common.HexToAddress(cfg.TokenContract),
		abi:     parsedABI,
		chainID: big.NewInt(cfg.ChainID),
		log:     logger,
	}, nil
}

func (g *Gateway) record(method string, start time.Time, err error) {
	metrics.GatewayCallsTotal.WithLabelValues(method).Inc()
	metrics.GatewayLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		metrics.GatewayErrorsTotal.WithLabelValues(method).Inc()
	}
}

// CurrentHeight returns the latest block number.
func (g *Gateway) CurrentHeight(ctx context.Context) (uint64, error) {
	return read(ctx, g, "eth_blockNumber", g.backend.BlockNumber)
}

// TransferEvents returns token Transfer logs between from and to, inclusive.
func (g *Gateway) TransferEvents(ctx context.Context, from, to uint64) ([]domain.TransferEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{g.token},
		Topics:    [][]common.Hash{{transferTopic}},
	}
	logs, err := read(ctx, g, "eth_getLogs", func(ctx context.Context) ([]types.Log, error) {
		return g.backend.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, l := range logs {
		ev, ok := g.parseTransfer(l)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (g *Gateway) parseTransfer(l types.Log) (domain.TransferEvent, bool) {
	if l.Removed || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
		return domain.TransferEvent{}, false
	}
	return domain.TransferEvent{
		TxHash:      l.TxHash.Hex(),
		From:        domain.Address(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		To:          domain.Address(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		Amount:      FromBaseUnits(new(big.Int).SetBytes(l.Data), g.cfg.TokenDecimals),
		BlockNumber: l.BlockNumber,
	}, true
}

// ReceiptConfirmations returns height - receiptBlock + 1, or 0 when the
// transaction has no receipt yet.
func (g *Gateway) ReceiptConfirmations(ctx context.Context, txHash string) (uint64, error) {
	receipt, err := g.receipt(ctx, txHash)
	if err != nil || receipt == nil {
		return 0, err
	}

	height, err := g.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}
	return depth(height, receipt.BlockNumber.Uint64()), nil
}

// TransactionOutcome reports the receipt status of a transaction sent by
// this engine.
func (g *Gateway) TransactionOutcome(ctx context.Context, txHash string) (domain.TxOutcome, error) {
	receipt, err := g.receipt(ctx, txHash)
	if err != nil || receipt == nil {
		return domain.TxOutcome{State: domain.TxPending}, err
	}
	out := domain.TxOutcome{State: domain.TxSucceeded, BlockNumber: receipt.BlockNumber.Uint64()}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.State = domain.TxReverted
	}
	return out, nil
}

// receipt returns nil without error when the transaction has no receipt.
func (g *Gateway) receipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	receipt, err := read(ctx, g, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
		return g.backend.TransactionReceipt(ctx, hash)
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

func depth(height, receiptBlock uint64) uint64 {
	if height < receiptBlock {
		return 0
	}
	return height - receiptBlock + 1
}

// NativeBalance returns the gas asset balance.
func (g *Gateway) NativeBalance(ctx context.Context, address domain.Address) (decimal.Decimal, error) {
	account := common.HexToAddress(address.String())
	bal, err := read(ctx, g, "eth_getBalance", func(ctx context.Context) (*big.Int, error) {
		return g.backend.BalanceAt(ctx, account, nil)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return FromBaseUnits(bal, NativeDecimals), nil
}

// TokenBalance returns the token balance via balanceOf.
func (g *Gateway) TokenBalance(ctx context.Context, address domain.Address) (decimal.Decimal, error) {
	data, err := g.abi.Pack("balanceOf", common.HexToAddress(address.String()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	result, err := read(ctx, g, "eth_call", func(ctx context.Context) ([]byte, error) {
		return g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.token, Data: data}, nil)
	})
	if err != nil {
		return decimal.Zero, err
	}

	// Empty result: the address never interacted with the token
	if len(result) == 0 {
		return decimal.Zero, nil
	}

	var balance *big.Int
	if err := g.abi.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack balance: %w", err)
	}
	return FromBaseUnits(balance, g.cfg.TokenDecimals), nil
}

// EstimateTransferGasCost returns gasPrice * token gas limit in native units.
func (g *Gateway) EstimateTransferGasCost(ctx context.Context) (decimal.Decimal, error) {
	gasPrice, err := read(ctx, g, "eth_gasPrice", g.backend.SuggestGasPrice)
	if err != nil {
		return decimal.Zero, err
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(g.cfg.GasLimitToken))
	return FromBaseUnits(cost, NativeDecimals), nil
}

// SendNativeTransfer sends the gas asset and waits for the receipt.
func (g *Gateway) SendNativeTransfer(ctx context.Context, secret string, to domain.Address, amount decimal.Decimal) (string, error) {
	toAddr := common.HexToAddress(to.String())
	return g.send(ctx, secret, &toAddr, ToBaseUnits(amount, NativeDecimals), nil, g.cfg.GasLimitNative)
}

// SendTokenTransfer sends tokens and waits for the receipt.
func (g *Gateway) SendTokenTransfer(ctx context.Context, secret string, to domain.Address, amount decimal.Decimal) (string, error) {
	data, err := g.abi.Pack("transfer", common.HexToAddress(to.String()), ToBaseUnits(amount, g.cfg.TokenDecimals))
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}
	return g.send(ctx, secret, &g.token, big.NewInt(0), data, g.cfg.GasLimitToken)
}

func (g *Gateway) send(ctx context.Context, secret string, to *common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	key, err := parseKey(secret)
	if err != nil {
		return "", err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := read(ctx, g, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return g.backend.PendingNonceAt(ctx, from)
	})
	if err != nil {
		return "", err
	}

	gasPrice, err := read(ctx, g, "eth_gasPrice", g.backend.SuggestGasPrice)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	start := time.Now()
	err = g.backend.SendTransaction(ctx, signed)
	g.record("eth_sendRawTransaction", start, err)
	if err != nil {
		return "", &domain.TransientGatewayError{Op: "eth_sendRawTransaction", Err: err}
	}

	hash := signed.Hash().Hex()
	g.log.Info("transaction sent", "tx", hash, "from", from.Hex(), "to", to.Hex(), "nonce", nonce)

	if err := g.waitMined(ctx, signed.Hash()); err != nil {
		return hash, err
	}
	return hash, nil
}

// waitMined polls for the receipt until it appears or ReceiptTimeout passes.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			g.log.Debug("receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return &domain.TransientGatewayError{
				Op:  "wait_mined",
				Err: fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}
