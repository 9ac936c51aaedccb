package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/supersocks/indexer/internal/adapter"
	"github.com/supersocks/indexer/internal/domain"
)

// EthereumClient wraps the raw RPC client with the contract-specific
// operations the indexer needs
//
//go:generate mockgen -source=client.go -destination=../../mocks/ethereum_client.go -package=mocks -mock_names=EthereumClient=MockEthereumClient
type EthereumClient interface {
	// ParseTransferLog parses an ERC-1155 transfer log into a normalized
	// transfer event; returns nil for logs the indexer does not handle
	ParseTransferLog(ctx context.Context, vLog types.Log) (*domain.TransferEvent, error)

	// SubscribeFilterLogs subscribes to filter logs
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	// HeaderByNumber returns a header by number
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// ERC1155URI fetches the uri for a token id from the contract
	ERC1155URI(ctx context.Context, tokenID uint64) (string, error)

	// Close closes the connection
	Close()
}

type ethereumClient struct {
	chainID         domain.Chain
	contractAddress common.Address
	client          adapter.EthClient
	clock           adapter.Clock
}

// NewClient creates a new Ethereum client bound to the storefront contract
func NewClient(chainID domain.Chain, contractAddress string, client adapter.EthClient, clock adapter.Clock) EthereumClient {
	return &ethereumClient{
		chainID:         chainID,
		contractAddress: common.HexToAddress(contractAddress),
		client:          client,
		clock:           clock,
	}
}

// SubscribeFilterLogs subscribes to filter logs
func (c *ethereumClient) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.client.SubscribeFilterLogs(ctx, query, ch)
}

// HeaderByNumber returns a header by number
func (c *ethereumClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.client.HeaderByNumber(ctx, number)
}

// ERC1155URI fetches the uri from the contract
func (c *ethereumClient) ERC1155URI(ctx context.Context, tokenID uint64) (string, error) {
	// ERC1155 uri function signature: uri(uint256) returns (string)
	uriABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"id","type":"uint256"}],"name":"uri","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := uriABI.Pack("uri", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contractAddress,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call contract: %w", err)
	}

	var uri string
	if err := uriABI.UnpackIntoInterface(&uri, "uri", result); err != nil {
		return "", fmt.Errorf("failed to unpack result: %w", err)
	}

	return uri, nil
}

// ParseTransferLog parses an ERC-1155 transfer log into a normalized event
func (c *ethereumClient) ParseTransferLog(ctx context.Context, vLog types.Log) (*domain.TransferEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, fmt.Errorf("invalid log: no topics")
	}

	var kind domain.TransferKind
	var ids, amounts []*big.Int

	switch vLog.Topics[0] {
	case TransferSingleEventSignature:
		// TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid TransferSingle event: expected 4 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid TransferSingle event: insufficient data")
		}

		kind = domain.TransferKindSingle
		ids = []*big.Int{new(big.Int).SetBytes(vLog.Data[0:32])}
		amounts = []*big.Int{new(big.Int).SetBytes(vLog.Data[32:64])}

	case TransferBatchEventSignature:
		// TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid TransferBatch event: expected 4 topics, got %d", len(vLog.Topics))
		}

		values, err := transferBatchDataArguments.Unpack(vLog.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack TransferBatch data: %w", err)
		}
		var ok bool
		ids, ok = values[0].([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("invalid TransferBatch event: ids are not uint256[]")
		}
		amounts, ok = values[1].([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("invalid TransferBatch event: values are not uint256[]")
		}

		kind = domain.TransferKindBatch

	default:
		// Not a transfer log, skip
		return nil, nil
	}

	// Get block header to extract the timestamp
	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(vLog.BlockNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to get block header: %w", err)
	}

	return &domain.TransferEvent{
		Kind:        kind,
		EventID:     domain.EventID(vLog.BlockNumber, vLog.Index),
		FromAddress: common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		ToAddress:   common.BytesToAddress(vLog.Topics[3].Bytes()).Hex(),
		IDs:         ids,
		Amounts:     amounts,
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Timestamp:   c.clock.Unix(int64(header.Time), 0), //nolint:gosec,G115 // header.Time is a uint64 from geth which is safe to cast
	}, nil
}

// Close closes the connection
func (c *ethereumClient) Close() {
	c.client.Close()
}
