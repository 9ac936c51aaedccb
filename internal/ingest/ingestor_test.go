package ingest_test

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/ingest"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/messaging"
	"github.com/supersocks/indexer/internal/mocks"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// testIngestorMocks contains all the mocks needed for testing the ingestor
type testIngestorMocks struct {
	ctrl       *gomock.Controller
	subscriber *mocks.MockSubscriber
	resolver   *mocks.MockResolver
	store      *mocks.MockStore
	clock      *mocks.MockClock
}

func setupTestIngestor(t *testing.T, cfg ingest.Config) (*testIngestorMocks, ingest.Ingestor) {
	ctrl := gomock.NewController(t)

	tm := &testIngestorMocks{
		ctrl:       ctrl,
		subscriber: mocks.NewMockSubscriber(ctrl),
		resolver:   mocks.NewMockResolver(ctrl),
		store:      mocks.NewMockStore(ctrl),
		clock:      mocks.NewMockClock(ctrl),
	}

	ingestor := ingest.NewIngestor(tm.subscriber, tm.resolver, tm.store, cfg, tm.clock)
	return tm, ingestor
}

func singleEvent(blockNumber uint64, logIndex uint, from, to string, id, amount int64) *domain.TransferEvent {
	return &domain.TransferEvent{
		Kind:        domain.TransferKindSingle,
		EventID:     domain.EventID(blockNumber, logIndex),
		FromAddress: from,
		ToAddress:   to,
		IDs:         []*big.Int{big.NewInt(id)},
		Amounts:     []*big.Int{big.NewInt(amount)},
		TxHash:      "0xtx",
		BlockNumber: blockNumber,
		Timestamp:   time.Unix(1700000000, 0),
	}
}

func TestIngestor_Run_AppliesSingleTransfer(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	event := singleEvent(1001, 0, "0xfrom", "0xto", 42, 10)

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			require.NoError(t, handler(event))
			cancel()
			return ctx.Err()
		})

	tm.store.
		EXPECT().
		ApplyTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, unit domain.TransferUnit) error {
			assert.Equal(t, "1001-0-0", unit.ID)
			assert.Equal(t, "0xfrom", unit.FromAddress)
			assert.Equal(t, "0xto", unit.ToAddress)
			assert.Equal(t, uint64(42), unit.TokenID)
			assert.Equal(t, int64(10), unit.Amount)
			assert.Nil(t, unit.Metadata)
			return nil
		})

	// Block 1001 crosses the save threshold (1001 - 0 >= 10), plus the
	// shutdown flush
	tm.store.
		EXPECT().
		SetBlockCursor(gomock.Any(), string(domain.ChainEthereumMainnet), uint64(1001)).
		Return(nil).
		AnyTimes()

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestor_Run_ExpandsBatchInOrder(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  1000,
		CursorSaveDelay: time.Hour,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	event := &domain.TransferEvent{
		Kind:        domain.TransferKindBatch,
		EventID:     "1001-4",
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		IDs:         []*big.Int{big.NewInt(5), big.NewInt(7)},
		Amounts:     []*big.Int{big.NewInt(3), big.NewInt(1)},
		TxHash:      "0xtx",
		BlockNumber: 1001,
		Timestamp:   time.Unix(1700000000, 0),
	}

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			require.NoError(t, handler(event))
			cancel()
			return ctx.Err()
		})

	var applied []domain.TransferUnit
	tm.store.
		EXPECT().
		ApplyTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, unit domain.TransferUnit) error {
			applied = append(applied, unit)
			return nil
		}).
		Times(2)
	tm.store.
		EXPECT().
		SetBlockCursor(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil).
		AnyTimes()

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, applied, 2)
	assert.Equal(t, "1001-4-0", applied[0].ID)
	assert.Equal(t, uint64(5), applied[0].TokenID)
	assert.Equal(t, int64(3), applied[0].Amount)
	assert.Equal(t, "1001-4-1", applied[1].ID)
	assert.Equal(t, uint64(7), applied[1].TokenID)
	assert.Equal(t, int64(1), applied[1].Amount)
}

func TestIngestor_Run_ResolvesMetadataOnMint(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  1000,
		CursorSaveDelay: time.Hour,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	event := singleEvent(1001, 0, domain.EthereumZeroAddress, "0xto", 42, 10)
	doc := datatypes.JSON(`{"name":"Sock #42"}`)

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			require.NoError(t, handler(event))
			cancel()
			return ctx.Err()
		})

	tm.resolver.
		EXPECT().
		Resolve(gomock.Any(), uint64(42)).
		Return(doc)

	tm.store.
		EXPECT().
		ApplyTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, unit domain.TransferUnit) error {
			assert.True(t, unit.Mint())
			assert.Equal(t, doc, unit.Metadata)
			return nil
		})
	tm.store.
		EXPECT().
		SetBlockCursor(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil).
		AnyTimes()

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestor_Run_WithLastBlockCursor(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      0, // No start block
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	tm.store.
		EXPECT().
		GetBlockCursor(gomock.Any(), string(domain.ChainEthereumMainnet)).
		Return(uint64(500), nil)

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(500), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			cancel()
			return ctx.Err()
		})

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestor_Run_WithNoLastBlockCursor(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      0, // No start block
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	tm.store.
		EXPECT().
		GetBlockCursor(gomock.Any(), string(domain.ChainEthereumMainnet)).
		Return(uint64(0), nil)

	tm.subscriber.
		EXPECT().
		GetLatestBlock(gomock.Any()).
		Return(uint64(1000), nil)

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			cancel()
			return ctx.Err()
		})

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestor_Run_MalformedEventAborts(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	// Mismatched array lengths
	event := &domain.TransferEvent{
		Kind:        domain.TransferKindBatch,
		EventID:     "1001-0",
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		IDs:         []*big.Int{big.NewInt(5), big.NewInt(7)},
		Amounts:     []*big.Int{big.NewInt(3)},
		BlockNumber: 1001,
		Timestamp:   time.Unix(1700000000, 0),
	}

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			return handler(event)
		})

	err := ingestor.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestIngestor_Run_ApplyTransferErrorHalts(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	event := singleEvent(1001, 0, "0xfrom", "0xto", 42, 10)

	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			return handler(event)
		})

	tm.store.
		EXPECT().
		ApplyTransfer(gomock.Any(), gomock.Any()).
		Return(assert.AnError)

	err := ingestor.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply transfer 1001-0-0")
}

func TestIngestor_Run_GetBlockCursorError(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      0,
		CursorSaveFreq:  10,
		CursorSaveDelay: 5 * time.Second,
	})
	defer tm.ctrl.Finish()

	tm.store.
		EXPECT().
		GetBlockCursor(gomock.Any(), string(domain.ChainEthereumMainnet)).
		Return(uint64(0), assert.AnError)

	err := ingestor.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get block cursor")
}

func TestIngestor_Run_ResubscribesAfterDrop(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{
		ChainID:         domain.ChainEthereumMainnet,
		StartBlock:      1000,
		CursorSaveFreq:  1000,
		CursorSaveDelay: time.Hour,
	})
	defer tm.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Duration(0)).AnyTimes()

	event := singleEvent(1500, 0, "0xfrom", "0xto", 42, 10)

	// First subscription processes one event then drops
	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1000), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			require.NoError(t, handler(event))
			return domain.ErrSubscriptionFailed
		})

	// Resubscription resumes from the last processed block
	tm.subscriber.
		EXPECT().
		SubscribeEvents(gomock.Any(), uint64(1500), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
			cancel()
			return ctx.Err()
		})

	tm.store.
		EXPECT().
		ApplyTransfer(gomock.Any(), gomock.Any()).
		Return(nil)
	tm.store.
		EXPECT().
		SetBlockCursor(gomock.Any(), string(domain.ChainEthereumMainnet), uint64(1500)).
		Return(nil).
		AnyTimes()

	err := ingestor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestor_Close(t *testing.T) {
	tm, ingestor := setupTestIngestor(t, ingest.Config{})
	defer tm.ctrl.Finish()

	tm.subscriber.
		EXPECT().
		Close()

	ingestor.Close()
}
