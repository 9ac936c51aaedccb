package schema

// TransferEvent represents the transfer_events table - the append-only log of
// applied transfer units, one row per (event, token-within-batch) tuple. The
// primary key doubles as the ingestion deduplication guard: re-delivered
// events conflict here and the whole unit becomes a no-op.
type TransferEvent struct {
	// ID is the composite event-sequence identifier "{blockNumber}-{logIndex}-{i}"
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Timestamp is the block timestamp, seconds since epoch
	Timestamp int64 `gorm:"column:timestamp;not null"`
	// FromAddress is the sender (zero address for mints)
	FromAddress string `gorm:"column:from_address;not null;type:text"`
	// ToAddress is the recipient
	ToAddress string `gorm:"column:to_address;not null;type:text"`
	// TokenID is the token moved by this unit
	TokenID uint64 `gorm:"column:token_id;not null;index:idx_transfer_events_token_id"`
	// Amount is the number of editions moved
	Amount int64 `gorm:"column:amount;not null"`
}

// TableName specifies the table name for the TransferEvent model
func (TransferEvent) TableName() string {
	return "transfer_events"
}
