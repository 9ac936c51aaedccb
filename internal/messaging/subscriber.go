package messaging

import (
	"context"

	"github.com/supersocks/indexer/internal/domain"
)

// EventHandler is called once per transfer event, in delivery order
type EventHandler func(event *domain.TransferEvent) error

// Subscriber defines the interface for subscribing to the contract's transfer
// event stream
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeEvents subscribes to TransferSingle/TransferBatch events from
	// fromBlock and invokes handler for each, preserving block-then-log order
	SubscribeEvents(ctx context.Context, fromBlock uint64, handler EventHandler) error

	// GetLatestBlock returns the latest block number
	GetLatestBlock(ctx context.Context) (uint64, error)

	// Close closes the connection and cleans up resources
	Close()
}
