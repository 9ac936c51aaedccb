package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/supersocks/indexer/internal/adapter"
	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/messaging"
	"github.com/supersocks/indexer/internal/metadata"
	"github.com/supersocks/indexer/internal/store"
)

// Config holds the configuration for the event ingestor
type Config struct {
	ChainID         domain.Chain
	StartBlock      uint64
	CursorSaveFreq  uint64        // Save cursor every N blocks
	CursorSaveDelay time.Duration // Or save cursor every N seconds
}

// Ingestor drives the subscription-to-projection pipeline
//
//go:generate mockgen -source=ingestor.go -destination=../mocks/ingestor.go -package=mocks -mock_names=Ingestor=MockIngestor
type Ingestor interface {
	// Run starts the ingestion loop and blocks until a fatal error or
	// context cancellation
	Run(ctx context.Context) error
	// Close closes the ingestor and cleans up resources
	Close()
}

type ingestor struct {
	subscriber messaging.Subscriber
	resolver   metadata.Resolver
	store      store.Store
	config     Config
	clock      adapter.Clock

	lastProcessedBlock uint64
	lastSavedBlock     uint64
	lastSaveTime       time.Time
}

// NewIngestor creates a new event ingestor
func NewIngestor(
	sub messaging.Subscriber,
	res metadata.Resolver,
	st store.Store,
	cfg Config,
	clock adapter.Clock,
) Ingestor {
	return &ingestor{
		subscriber: sub,
		resolver:   res,
		store:      st,
		config:     cfg,
		clock:      clock,
	}
}

// Run starts the ingestion loop. Subscription drops are retried with
// exponential backoff, resuming from the last processed block. Storage and
// validation errors are fatal: the projection must never advance past a unit
// it could not apply.
func (i *ingestor) Run(ctx context.Context) error {
	startBlock, err := i.resolveStartBlock(ctx)
	if err != nil {
		return err
	}

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0 // retry subscription drops indefinitely
	retry.MaxInterval = time.Minute

	for {
		subscribedAt := i.clock.Now()
		err := i.subscriber.SubscribeEvents(ctx, startBlock, func(event *domain.TransferEvent) error {
			return i.handleEvent(ctx, event)
		})

		if ctx.Err() != nil {
			i.saveCursor(context.WithoutCancel(ctx))
			return ctx.Err()
		}

		if !errors.Is(err, domain.ErrSubscriptionFailed) {
			return err
		}

		// Subscription reset; resume past the last applied block so
		// redelivered units hit the dedup guard rather than a gap
		if i.lastProcessedBlock > 0 {
			startBlock = i.lastProcessedBlock
		}
		if i.clock.Since(subscribedAt) > retry.MaxInterval {
			// The previous subscription was healthy for a while, start the
			// backoff schedule over
			retry.Reset()
		}
		wait := retry.NextBackOff()
		logger.WarnCtx(ctx, "Subscription dropped, reconnecting",
			zap.Error(err),
			zap.Uint64("fromBlock", startBlock),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// resolveStartBlock picks the first block to subscribe from: the configured
// start block, else the saved cursor, else the chain tip
func (i *ingestor) resolveStartBlock(ctx context.Context) (uint64, error) {
	if i.config.StartBlock > 0 {
		logger.Info("Starting from configured block",
			zap.String("chain", string(i.config.ChainID)),
			zap.Uint64("block", i.config.StartBlock))
		return i.config.StartBlock, nil
	}

	lastBlock, err := i.store.GetBlockCursor(ctx, string(i.config.ChainID))
	if err != nil {
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}
	if lastBlock > 0 {
		logger.Info("Resuming from last processed block",
			zap.String("chain", string(i.config.ChainID)),
			zap.Uint64("block", lastBlock))
		return lastBlock, nil
	}

	latestBlock, err := i.subscriber.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	logger.Info("Starting from latest block",
		zap.String("chain", string(i.config.ChainID)),
		zap.Uint64("block", latestBlock))
	return latestBlock, nil
}

// handleEvent validates one transfer event, expands it into per-token units
// and applies each to the projection in batch order
func (i *ingestor) handleEvent(ctx context.Context, event *domain.TransferEvent) error {
	if !event.Valid() {
		return fmt.Errorf("%w: event %s (tx %s)", domain.ErrMalformedEvent, event.EventID, event.TxHash)
	}

	for idx := range event.IDs {
		unit := domain.TransferUnit{
			ID:          domain.UnitID(event.EventID, idx),
			FromAddress: event.FromAddress,
			ToAddress:   event.ToAddress,
			TokenID:     event.IDs[idx].Uint64(),
			Amount:      event.Amounts[idx].Int64(),
			Timestamp:   event.Timestamp,
		}

		if unit.Mint() {
			unit.Metadata = i.resolver.Resolve(ctx, unit.TokenID)
		}

		if err := i.store.ApplyTransfer(ctx, unit); err != nil {
			return fmt.Errorf("failed to apply transfer %s: %w", unit.ID, err)
		}

		logger.DebugCtx(ctx, "Applied transfer unit",
			zap.String("unit", unit.ID),
			zap.Uint64("tokenID", unit.TokenID),
			zap.Int64("amount", unit.Amount))
	}

	i.lastProcessedBlock = event.BlockNumber

	shouldSave := event.BlockNumber-i.lastSavedBlock >= i.config.CursorSaveFreq ||
		i.clock.Since(i.lastSaveTime) >= i.config.CursorSaveDelay
	if shouldSave {
		i.saveCursor(ctx)
	}

	return nil
}

// saveCursor persists the last processed block. A save failure is logged and
// tolerated: the dedup guard makes replaying from a stale cursor harmless.
func (i *ingestor) saveCursor(ctx context.Context) {
	if i.lastProcessedBlock == 0 {
		return
	}

	if err := i.store.SetBlockCursor(ctx, string(i.config.ChainID), i.lastProcessedBlock); err != nil {
		logger.WarnCtx(ctx, "Failed to save block cursor",
			zap.Error(err),
			zap.Uint64("block", i.lastProcessedBlock))
		return
	}
	i.lastSavedBlock = i.lastProcessedBlock
	i.lastSaveTime = i.clock.Now()
}

// Close closes the ingestor and cleans up resources
func (i *ingestor) Close() {
	i.subscriber.Close()
}
