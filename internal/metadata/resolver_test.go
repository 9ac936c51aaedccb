package metadata_test

import (
	"context"
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/supersocks/indexer/internal/domain"
	"github.com/supersocks/indexer/internal/logger"
	"github.com/supersocks/indexer/internal/metadata"
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

func dataURI(payload string) string {
	return domain.MetadataURIPrefix + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		uriErr   error
		expected string // expected JSON payload, "" means nil
	}{
		{
			name:     "valid base64 json",
			uri:      dataURI(`{"name":"Sock #42","image":"data:image/svg+xml;base64,abc"}`),
			expected: `{"name":"Sock #42","image":"data:image/svg+xml;base64,abc"}`,
		},
		{
			name:     "fetch error yields nil",
			uriErr:   assert.AnError,
			expected: "",
		},
		{
			name:     "missing data uri prefix yields nil",
			uri:      "https://example.com/metadata/42.json",
			expected: "",
		},
		{
			name:     "invalid base64 yields nil",
			uri:      domain.MetadataURIPrefix + "!!!not-base64!!!",
			expected: "",
		},
		{
			name:     "invalid json payload yields nil",
			uri:      dataURI(`{"name": truncated`),
			expected: "",
		},
		{
			name:     "empty uri yields nil",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			client := mocks.NewMockEthereumClient(ctrl)
			client.EXPECT().
				ERC1155URI(gomock.Any(), uint64(42)).
				Return(tt.uri, tt.uriErr)

			resolver := metadata.NewResolver(client, time.Second)
			result := resolver.Resolve(context.Background(), 42)

			if tt.expected == "" {
				assert.Nil(t, result)
			} else {
				assert.JSONEq(t, tt.expected, string(result))
			}
		})
	}
}

func TestResolver_Resolve_AppliesTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mocks.NewMockEthereumClient(ctrl)
	client.EXPECT().
		ERC1155URI(gomock.Any(), uint64(1)).
		DoAndReturn(func(ctx context.Context, tokenID uint64) (string, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "call context should carry a deadline")
			assert.LessOrEqual(t, time.Until(deadline), 50*time.Millisecond)
			return "", ctx.Err()
		})

	resolver := metadata.NewResolver(client, 50*time.Millisecond)
	assert.Nil(t, resolver.Resolve(context.Background(), 1))
}
