package store

import (
	"context"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/store/schema"
)

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// ApplyTransfer applies one transfer unit as a single atomic transaction:
	// dedup guard, account rows, balance deltas, token supply on mint, and
	// the transfer-event log row. Re-applying a unit with the same ID is a
	// no-op.
	ApplyTransfer(ctx context.Context, unit domain.TransferUnit) error

	// GetToken retrieves a token by its on-chain id; nil if not indexed
	GetToken(ctx context.Context, tokenID uint64) (*schema.Token, error)
	// ListTokens retrieves tokens ordered by creation time ascending
	ListTokens(ctx context.Context, limit int, offset int) ([]schema.Token, error)
	// GetOwnerBalances retrieves balances held by an owner; onlyPositive
	// filters out zero and negative rows
	GetOwnerBalances(ctx context.Context, owner string, onlyPositive bool) ([]schema.TokenBalance, error)
	// GetTokenBalances retrieves real-account balances for a token ordered by
	// balance descending
	GetTokenBalances(ctx context.Context, tokenID uint64) ([]schema.TokenBalance, error)
	// GetTokenTransfers retrieves the transfer log for a token in applied order
	GetTokenTransfers(ctx context.Context, tokenID uint64, limit int, offset int) ([]schema.TransferEvent, error)

	// GetBlockCursor retrieves the last processed block number for a chain
	GetBlockCursor(ctx context.Context, chain string) (uint64, error)
	// SetBlockCursor stores the last processed block number for a chain
	SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error
}
