package schema

import (
	"gorm.io/datatypes"
)

// Token represents the tokens table - one row per ERC-1155 token id, created
// on the first mint and accumulated on every subsequent mint. There is no
// foreign key from token_balances or transfer_events back to this table:
// within a unit transaction the event log and balance rows are written before
// the token upsert, and a transfer observed mid-stream may reference a token
// whose mint predates the start block.
type Token struct {
	// ID is the on-chain token identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement:false"`
	// CreatedAt is the block timestamp of the first mint, seconds since epoch
	CreatedAt int64 `gorm:"column:created_at;not null;index:idx_tokens_created_at"`
	// Creator is the address that received the first mint
	Creator string `gorm:"column:creator;not null;type:text"`
	// Total is the running total supply; burns are not modeled so it is
	// monotone non-decreasing
	Total int64 `gorm:"column:total;not null"`
	// Metadata is the decoded on-chain metadata document from the contract's
	// uri() at mint time; nil when resolution failed on every mint so far
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
}

// TableName specifies the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}
