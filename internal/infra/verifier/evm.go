package verifier

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
)

// transferTopic is the keccak hash of the canonical ERC-20 Transfer event
// signature. Matching logs carry (from, to) as indexed topics 1 and 2 and
// the value as unindexed data.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ethRPC is the slice of the execution-client API the verifier polls.
// *ethclient.Client satisfies it.
type ethRPC interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type tokenAsset struct {
	symbol   string
	decimals int32
}

// EVMVerifier polls one account-based chain over JSON-RPC. It is stateless:
// every Verify re-reads the chain, and transport failures come back as
// not_found verdicts so the caller re-polls the same reference later.
type EVMVerifier struct {
	chainID        string
	rpc            ethRPC
	confirmations  uint64
	timeout        time.Duration
	nativeDecimals int32
	tokens         map[common.Address]tokenAsset
	log            *zerolog.Logger
}

// Compile-time check
var _ adapter.ChainVerifier = (*EVMVerifier)(nil)

// NewEVMVerifier dials the chain's RPC endpoint from its configuration.
func NewEVMVerifier(cfg config.ChainConfig, log *zerolog.Logger) (*EVMVerifier, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc for chain %s: %w", cfg.ID, err)
	}
	return newEVMVerifier(cfg, eth, log), nil
}

func newEVMVerifier(cfg config.ChainConfig, rpc ethRPC, log *zerolog.Logger) *EVMVerifier {
	tokens := make(map[common.Address]tokenAsset, len(cfg.Tokens))
	for symbol, tok := range cfg.Tokens {
		if !common.IsHexAddress(tok.Address) {
			log.Warn().Str("chain_id", cfg.ID).Str("token", symbol).Str("address", tok.Address).
				Msg("skipping token with malformed contract address")
			continue
		}
		tokens[common.HexToAddress(tok.Address)] = tokenAsset{symbol: symbol, decimals: int32(tok.Decimals)}
	}
	return &EVMVerifier{
		chainID:        cfg.ID,
		rpc:            rpc,
		confirmations:  cfg.Confirmations,
		timeout:        cfg.RPCTimeout,
		nativeDecimals: int32(cfg.NativeDecimals),
		tokens:         tokens,
		log:            log,
	}
}

func (v *EVMVerifier) ChainID() string { return v.chainID }

// Verify checks one transaction hash against the expected recipient and
// required display-unit amount. The error return fires only for malformed
// recipient or amount inputs; everything the chain can answer, including a
// reference that never existed, is a verdict.
func (v *EVMVerifier) Verify(ctx context.Context, txRef, recipient, requiredAmount string) (adapter.Verification, error) {
	required, err := model.ParsePositiveAmount(requiredAmount)
	if err != nil {
		return adapter.Verification{}, err
	}
	if !common.IsHexAddress(recipient) {
		return adapter.Verification{}, fmt.Errorf("%w: recipient %q is not a hex address", domain.ErrInvalidArgument, recipient)
	}
	hash, ok := parseEVMTxRef(txRef)
	if !ok {
		// A reference that cannot be a hash will never be found on chain.
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	tx, isPending, err := v.rpc.TransactionByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			v.log.Debug().Err(err).Str("chain_id", v.chainID).Str("tx_hash", txRef).
				Msg("transaction lookup failed, degrading to not_found")
		}
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	if isPending {
		return adapter.Verification{Status: adapter.VerificationPending}, nil
	}

	receipt, err := v.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return adapter.Verification{Status: adapter.VerificationPending}, nil
		}
		v.log.Debug().Err(err).Str("chain_id", v.chainID).Str("tx_hash", txRef).
			Msg("receipt lookup failed, degrading to not_found")
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return adapter.Verification{Status: adapter.VerificationFailed}, nil
	}
	if receipt.BlockNumber == nil {
		return adapter.Verification{Status: adapter.VerificationPending}, nil
	}

	height, err := v.rpc.BlockNumber(ctx)
	if err != nil {
		v.log.Debug().Err(err).Str("chain_id", v.chainID).
			Msg("block height lookup failed, degrading to not_found")
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	mined := receipt.BlockNumber.Uint64()
	if height < mined || height-mined < v.confirmations {
		return adapter.Verification{Status: adapter.VerificationPending}, nil
	}

	actual, from, found := v.receivedBy(tx, receipt, common.HexToAddress(recipient))
	if !found {
		return adapter.Verification{Status: adapter.VerificationNotFound}, nil
	}
	status := adapter.VerificationConfirmed
	if actual.Cmp(required) < 0 {
		status = adapter.VerificationUnderpaid
	}
	return adapter.Verification{Status: status, Amount: actual.String(), FromAddress: from}, nil
}

// receivedBy finds what the recipient actually received: the transaction's
// direct native value when it targets the recipient, otherwise the first
// Transfer log of a configured token contract addressed to the recipient.
// Address comparison goes through common.Address, so hex casing never
// matters.
func (v *EVMVerifier) receivedBy(tx *types.Transaction, receipt *types.Receipt, want common.Address) (decimal.Decimal, string, bool) {
	if to := tx.To(); to != nil && *to == want && tx.Value().Sign() > 0 {
		return decimal.NewFromBigInt(tx.Value(), -v.nativeDecimals), v.sender(tx), true
	}
	for _, entry := range receipt.Logs {
		if len(entry.Topics) != 3 || entry.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(entry.Topics[2].Bytes()) != want {
			continue
		}
		asset, ok := v.tokens[entry.Address]
		if !ok {
			// A transfer in a token this chain is not configured to quote.
			continue
		}
		value := new(big.Int).SetBytes(entry.Data)
		if value.Sign() <= 0 {
			continue
		}
		from := common.BytesToAddress(entry.Topics[1].Bytes())
		return decimal.NewFromBigInt(value, -asset.decimals), strings.ToLower(from.Hex()), true
	}
	return decimal.Decimal{}, "", false
}

func (v *EVMVerifier) sender(tx *types.Transaction) string {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	return strings.ToLower(from.Hex())
}

func parseEVMTxRef(s string) (common.Hash, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}
