package schema

import "time"

// TokenBalance represents the token_balances table - per-owner, per-token
// edition counts accumulated from signed transfer deltas. The zero address
// keeps a negative row per token (total ever minted) as a side effect of the
// uniform debit; downstream queries filter on balance > 0.
type TokenBalance struct {
	// Owner is the owning blockchain address
	Owner string `gorm:"column:owner;not null;type:text;primaryKey"`
	// TokenID references the token being owned
	TokenID uint64 `gorm:"column:token_id;not null;primaryKey;autoIncrement:false;index:idx_token_balances_token_id"`
	// Balance is the signed accumulated delta; expected non-negative at rest
	// for real accounts
	Balance int64 `gorm:"column:balance;not null"`
	// UpdatedAt is the timestamp when this balance was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TokenBalance model
func (TokenBalance) TableName() string {
	return "token_balances"
}
