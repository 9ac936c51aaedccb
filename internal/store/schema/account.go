package schema

import "time"

// Account represents the accounts table - the canonical set of addresses that
// have appeared as sender or recipient in any transfer event. Rows are
// created on first appearance and never deleted.
type Account struct {
	// Address is the blockchain address, primary key
	Address string `gorm:"column:address;primaryKey;type:text"`
	// CreatedAt is the timestamp when this account was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}
