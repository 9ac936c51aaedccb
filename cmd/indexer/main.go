package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/supersocks/indexer/internal/adapter"
	"github.com/supersocks/indexer/internal/config"
	"github.com/supersocks/indexer/internal/ingest"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/metadata"
	"github.com/supersocks/indexer/internal/providers/ethereum"
	"github.com/supersocks/indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting SuperSocks Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
		cfg.Database.ConnMaxIdleTime,
	); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Run schema migrations
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()

	// Initialize ethereum client
	ethDialer := adapter.NewEthClientDialer()
	adapterEthClient, err := ethDialer.Dial(ctx, cfg.Ethereum.WebSocketURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err))
	}
	defer adapterEthClient.Close()
	ethereumClient := ethereum.NewClient(cfg.Ethereum.ChainID, cfg.Ethereum.ContractAddress, adapterEthClient, clockAdapter)

	// Initialize Ethereum subscriber
	ethSubscriber := ethereum.NewSubscriber(ethereum.Config{
		WebSocketURL:    cfg.Ethereum.WebSocketURL,
		ChainID:         cfg.Ethereum.ChainID,
		ContractAddress: cfg.Ethereum.ContractAddress,
	}, ethereumClient)
	defer ethSubscriber.Close()
	logger.InfoCtx(ctx, "Connected to Ethereum WebSocket")

	// Initialize metadata resolver
	metadataResolver := metadata.NewResolver(ethereumClient, cfg.Ingest.MetadataTimeout)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Create ingestor
	ingestorCfg := ingest.Config{
		ChainID:         cfg.Ethereum.ChainID,
		StartBlock:      cfg.Ethereum.StartBlock,
		CursorSaveFreq:  cfg.Ingest.CursorSaveFreq,
		CursorSaveDelay: cfg.Ingest.CursorSaveDelay,
	}

	ingestor := ingest.NewIngestor(
		ethSubscriber,
		metadataResolver,
		dataStore,
		ingestorCfg,
		clockAdapter,
	)
	defer ingestor.Close()

	// Channel for ingestor errors
	errCh := make(chan error, 1)

	// Start the ingestor
	go func() {
		if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "ingestor"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("SuperSocks Indexer stopped")
}
