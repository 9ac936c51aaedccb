package domain

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/datatypes"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
	ChainOptimism        Chain = "eip155:10"
	ChainAnvil           Chain = "eip155:31337"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia ||
		chain == ChainOptimism ||
		chain == ChainAnvil
}

// TransferKind distinguishes the two ERC-1155 transfer event shapes
type TransferKind string

const (
	TransferKindSingle TransferKind = "single"
	TransferKindBatch  TransferKind = "batch"
)

// TransferEvent represents a normalized ERC-1155 transfer log as delivered by
// the chain subscription, before batch expansion. IDs and Amounts always have
// matching length; a TransferSingle carries exactly one entry of each.
type TransferEvent struct {
	Kind        TransferKind `json:"kind"`
	EventID     string       `json:"event_id"` // "{blockNumber}-{logIndex}"
	FromAddress string       `json:"from_address"`
	ToAddress   string       `json:"to_address"`
	IDs         []*big.Int   `json:"ids"`
	Amounts     []*big.Int   `json:"amounts"`
	TxHash      string       `json:"tx_hash"`
	BlockNumber uint64       `json:"block_number"`
	Timestamp   time.Time    `json:"timestamp"` // block timestamp
}

// Valid checks the substrate delivery contract: matching array lengths and
// non-negative amounts that fit the projection's integer arithmetic. Ids and
// amounts are uint256 on chain but the storefront assigns small sequential
// ids and edition counts, so values outside uint64/int64 are rejected here
// rather than silently truncated downstream.
func (e *TransferEvent) Valid() bool {
	if e.EventID == "" || e.FromAddress == "" || e.ToAddress == "" {
		return false
	}
	if len(e.IDs) == 0 || len(e.IDs) != len(e.Amounts) {
		return false
	}
	for i := range e.IDs {
		if e.IDs[i] == nil || e.Amounts[i] == nil {
			return false
		}
		if !e.IDs[i].IsUint64() {
			return false
		}
		if e.Amounts[i].Sign() < 0 || !e.Amounts[i].IsInt64() {
			return false
		}
	}
	return true
}

// IsMint reports whether the event originates from the zero address
func (e *TransferEvent) IsMint() bool {
	return e.FromAddress == EthereumZeroAddress
}

// TransferUnit is one validated unit of work for the projection writer: a
// single (from, to, tokenId, amount) tuple carved out of a transfer event.
type TransferUnit struct {
	// ID is the globally unique event-sequence identifier: "{eventID}-{i}"
	// where i is the index within the batch (0 for single transfers)
	ID          string
	FromAddress string
	ToAddress   string
	TokenID     uint64
	Amount      int64
	Timestamp   time.Time
	// Metadata is the decoded token metadata document, set only on mint units
	// and nil when resolution failed
	Metadata datatypes.JSON
}

// Mint reports whether this unit creates supply
func (u *TransferUnit) Mint() bool {
	return u.FromAddress == EthereumZeroAddress
}

// EventID composes the substrate event identifier from the log's ordinal
// position in the chain
func EventID(blockNumber uint64, logIndex uint) string {
	return fmt.Sprintf("%d-%d", blockNumber, logIndex)
}

// UnitID composes the transfer-event row identifier from the event identifier
// and the index within the batch
func UnitID(eventID string, index int) string {
	return fmt.Sprintf("%s-%d", eventID, index)
}
