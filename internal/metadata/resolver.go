package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/providers/ethereum"
)

// Resolver fetches and decodes on-chain token metadata
//
//go:generate mockgen -source=resolver.go -destination=../mocks/resolver.go -package=mocks -mock_names=Resolver=MockResolver
type Resolver interface {
	// Resolve fetches the token's uri from the contract and decodes its
	// base64 JSON payload. Returns nil on any failure; resolution is best
	// effort and must never block ingestion.
	Resolve(ctx context.Context, tokenID uint64) datatypes.JSON
}

type resolver struct {
	client  ethereum.EthereumClient
	timeout time.Duration
}

// NewResolver creates a metadata resolver with a per-call timeout. A zero
// timeout falls back to 10 seconds.
func NewResolver(client ethereum.EthereumClient, timeout time.Duration) Resolver {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &resolver{
		client:  client,
		timeout: timeout,
	}
}

// Resolve fetches uri(tokenID) and decodes the embedded JSON document. The
// contract returns metadata as a base64 data URI, so no network fetch beyond
// the eth_call is needed.
func (r *resolver) Resolve(ctx context.Context, tokenID uint64) datatypes.JSON {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	uri, err := r.client.ERC1155URI(callCtx, tokenID)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to fetch token uri",
			zap.Uint64("tokenID", tokenID),
			zap.Error(err))
		return nil
	}

	payload, ok := decodeDataURI(uri)
	if !ok {
		logger.WarnCtx(ctx, "Token uri is not a decodable base64 JSON data uri",
			zap.Uint64("tokenID", tokenID))
		return nil
	}

	return payload
}

// decodeDataURI decodes a "data:application/json;base64," uri into its JSON
// payload, reporting whether the payload is well formed
func decodeDataURI(uri string) (datatypes.JSON, bool) {
	if !strings.HasPrefix(uri, domain.MetadataURIPrefix) {
		return nil, false
	}

	encoded := strings.TrimPrefix(uri, domain.MetadataURIPrefix)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}

	if !json.Valid(decoded) {
		return nil, false
	}

	return datatypes.JSON(decoded), true
}
