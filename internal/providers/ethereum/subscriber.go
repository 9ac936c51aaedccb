package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/messaging"
)

// Config holds the configuration for Ethereum subscription
type Config struct {
	WebSocketURL    string       // WebSocket URL (e.g., wss://mainnet.infura.io/ws/v3/YOUR_PROJECT_ID)
	ChainID         domain.Chain // e.g., "eip155:1" for Ethereum mainnet
	ContractAddress string       // ERC-1155 storefront contract address
}

// Event signatures
var (
	// ERC1155 TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	TransferSingleEventSignature = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))

	// ERC1155 TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	TransferBatchEventSignature = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

// transferBatchDataArguments describes the non-indexed TransferBatch payload
// (uint256[] ids, uint256[] values) for ABI decoding
var transferBatchDataArguments = func() abi.Arguments {
	uint256Array, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(fmt.Sprintf("failed to construct uint256[] ABI type: %v", err))
	}
	return abi.Arguments{
		{Name: "ids", Type: uint256Array},
		{Name: "values", Type: uint256Array},
	}
}()

type ethSubscriber struct {
	client          EthereumClient
	chainID         domain.Chain
	contractAddress common.Address
}

// NewSubscriber creates a new Ethereum event subscriber scoped to a single
// ERC-1155 contract
func NewSubscriber(cfg Config, ethereumClient EthereumClient) messaging.Subscriber {
	return &ethSubscriber{
		client:          ethereumClient,
		chainID:         cfg.ChainID,
		contractAddress: common.HexToAddress(cfg.ContractAddress),
	}
}

// SubscribeEvents subscribes to the contract's TransferSingle and
// TransferBatch events and delivers them to the handler in arrival order. A
// handler error stops the subscription; the caller decides whether to
// resubscribe.
func (s *ethSubscriber) SubscribeEvents(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{s.contractAddress},
		Topics: [][]common.Hash{
			{
				TransferSingleEventSignature,
				TransferBatchEventSignature,
			},
		},
	}

	logs := make(chan types.Log)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrSubscriptionFailed, err)
	}
	defer func() {
		logger.InfoCtx(ctx, "Unsubscribing from ethereum event logs")
		sub.Unsubscribe()
		logger.InfoCtx(ctx, "Unsubscribed from ethereum event logs")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("%w: %s", domain.ErrSubscriptionFailed, err)
		case vLog := <-logs:
			if vLog.Removed {
				logger.WarnCtx(ctx, "Skipping removed log from reorged block",
					zap.Uint64("blockNumber", vLog.BlockNumber),
					zap.Uint("logIndex", vLog.Index))
				continue
			}

			event, err := s.client.ParseTransferLog(ctx, vLog)
			if err != nil {
				return fmt.Errorf("failed to parse transfer log at block %d index %d: %w",
					vLog.BlockNumber, vLog.Index, err)
			}

			if event == nil {
				continue
			}

			if err := handler(event); err != nil {
				return fmt.Errorf("failed to handle event %s: %w", event.EventID, err)
			}
		}
	}
}

// GetLatestBlock returns the latest block number
func (s *ethSubscriber) GetLatestBlock(ctx context.Context) (uint64, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// Close closes the connection
func (s *ethSubscriber) Close() {
	if s.client == nil {
		return
	}

	s.client.Close()
	logger.Info("Ethereum WebSocket connection closed")
}
