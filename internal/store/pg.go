package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the ledger tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Account{},
		&schema.Token{},
		&schema.TokenBalance{},
		&schema.TransferEvent{},
		&schema.KeyValueStore{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// ApplyTransfer applies one transfer unit in a single transaction. The
// transfer_events primary key acts as the deduplication guard: when the row
// already exists the unit was delivered before and nothing else is touched,
// so at-least-once redelivery cannot double-apply balance or supply deltas.
func (s *pgStore) ApplyTransfer(ctx context.Context, unit domain.TransferUnit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Dedup guard + append-only event log
		event := schema.TransferEvent{
			ID:          unit.ID,
			Timestamp:   unit.Timestamp.Unix(),
			FromAddress: unit.FromAddress,
			ToAddress:   unit.ToAddress,
			TokenID:     unit.TokenID,
			Amount:      unit.Amount,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&event)
		if res.Error != nil {
			return fmt.Errorf("failed to create transfer event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Duplicate delivery, already applied
			return nil
		}

		// 2. Ensure account rows exist for both parties
		for _, address := range []string{unit.FromAddress, unit.ToAddress} {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoNothing: true,
			}).Create(&schema.Account{Address: address}).Error; err != nil {
				return fmt.Errorf("failed to create account %s: %w", address, err)
			}
		}

		// 3. Debit sender, credit recipient. The debit is applied uniformly,
		// including the zero address on mints, which therefore accumulates a
		// negative "total ever minted" row per token.
		if err := s.upsertBalance(tx, unit.FromAddress, unit.TokenID, -unit.Amount); err != nil {
			return fmt.Errorf("failed to debit sender balance: %w", err)
		}
		if err := s.upsertBalance(tx, unit.ToAddress, unit.TokenID, unit.Amount); err != nil {
			return fmt.Errorf("failed to credit recipient balance: %w", err)
		}

		// 4. On mint, create or accumulate the token row. COALESCE keeps the
		// previously resolved metadata when the current fetch failed.
		if unit.Mint() {
			token := schema.Token{
				ID:        unit.TokenID,
				CreatedAt: unit.Timestamp.Unix(),
				Creator:   unit.ToAddress,
				Total:     unit.Amount,
				Metadata:  unit.Metadata,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"total":    gorm.Expr("tokens.total + excluded.total"),
					"metadata": gorm.Expr("COALESCE(excluded.metadata, tokens.metadata)"),
				}),
			}).Create(&token).Error; err != nil {
				return fmt.Errorf("failed to upsert token: %w", err)
			}
		}

		return nil
	})
}

// upsertBalance adds a signed delta to a (owner, token) balance, creating the
// row at the delta when absent
func (s *pgStore) upsertBalance(tx *gorm.DB, owner string, tokenID uint64, delta int64) error {
	balance := schema.TokenBalance{
		Owner:   owner,
		TokenID: tokenID,
		Balance: delta,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner"}, {Name: "token_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("token_balances.balance + excluded.balance"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(&balance).Error
}

// GetToken retrieves a token by its on-chain id
func (s *pgStore) GetToken(ctx context.Context, tokenID uint64) (*schema.Token, error) {
	var token schema.Token
	err := s.db.WithContext(ctx).Where("id = ?", tokenID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// ListTokens retrieves tokens ordered by creation time ascending
func (s *pgStore) ListTokens(ctx context.Context, limit int, offset int) ([]schema.Token, error) {
	var tokens []schema.Token
	err := s.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// GetOwnerBalances retrieves balances held by an owner
func (s *pgStore) GetOwnerBalances(ctx context.Context, owner string, onlyPositive bool) ([]schema.TokenBalance, error) {
	query := s.db.WithContext(ctx).Where("owner = ?", owner)
	if onlyPositive {
		query = query.Where("balance > 0")
	}

	var balances []schema.TokenBalance
	if err := query.Order("token_id ASC").Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to get owner balances: %w", err)
	}
	return balances, nil
}

// GetTokenBalances retrieves real-account balances for a token ordered by
// balance descending. The zero address's negative minted counter is excluded.
func (s *pgStore) GetTokenBalances(ctx context.Context, tokenID uint64) ([]schema.TokenBalance, error) {
	var balances []schema.TokenBalance
	err := s.db.WithContext(ctx).
		Where("token_id = ? AND owner <> ?", tokenID, domain.EthereumZeroAddress).
		Order("balance DESC").Order("owner ASC").
		Find(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get token balances: %w", err)
	}
	return balances, nil
}

// GetTokenTransfers retrieves the transfer log for a token in applied order
func (s *pgStore) GetTokenTransfers(ctx context.Context, tokenID uint64, limit int, offset int) ([]schema.TransferEvent, error) {
	var events []schema.TransferEvent
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("timestamp ASC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get token transfers: %w", err)
	}
	return events, nil
}

// GetBlockCursor retrieves the last processed block number for a chain
func (s *pgStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	key := fmt.Sprintf("block_cursor:%s", chain)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last processed block number for a chain
func (s *pgStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   fmt.Sprintf("block_cursor:%s", chain),
		Value: strconv.FormatUint(blockNumber, 10),
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	return nil
}
