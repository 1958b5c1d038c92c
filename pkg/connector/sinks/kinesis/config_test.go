package kinesis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/statusflow/statusflow/pkg/config"
)

func TestNewSinkConfig_Defaults(t *testing.T) {
	cfg := NewSinkConfig(config.NewParams(nil))

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "destination", cfg.Stream)
}

func TestNewSinkConfig_Explicit(t *testing.T) {
	cfg := NewSinkConfig(config.NewParams(map[string]string{
		"kinesis.region":      "ap-southeast-2",
		"kinesis.sink.stream": "status-counts",
	}))

	assert.Equal(t, "ap-southeast-2", cfg.Region)
	assert.Equal(t, "status-counts", cfg.Stream)
}

func TestPartitionKey_Deterministic(t *testing.T) {
	payload := []byte(`{"status_code":"200", "count":1}`)

	assert.Equal(t, PartitionKey(payload), PartitionKey(payload))

	// A fresh byte slice with the same content must derive the same
	// key: identical payloads are pinned to the same shard.
	clone := append([]byte(nil), payload...)
	assert.Equal(t, PartitionKey(payload), PartitionKey(clone))
}

func TestPartitionKey_IsDecimalString(t *testing.T) {
	key := PartitionKey([]byte(`{"status_code":"404", "count":1}`))

	assert.NotEmpty(t, key)
	for _, r := range key {
		assert.True(t, r >= '0' && r <= '9', "partition key must be a decimal string, got %q", key)
	}
}

func TestPartitionKey_VariesWithContent(t *testing.T) {
	// Not a collision-freedom guarantee, just a sanity check that the
	// key actually depends on the payload.
	a := PartitionKey([]byte(`{"status_code":"200", "count":1}`))
	b := PartitionKey([]byte(`{"status_code":"500", "count":1}`))

	assert.NotEqual(t, a, b)
}
