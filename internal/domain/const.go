package domain

const (
	// EthereumZeroAddress is the sentinel "no account" address; a transfer
	// from it is a mint
	EthereumZeroAddress = "0x0000000000000000000000000000000000000000"

	// MetadataURIPrefix is the data-URI prefix the contract's uri() method
	// returns for on-chain JSON metadata
	MetadataURIPrefix = "data:application/json;base64,"
)
