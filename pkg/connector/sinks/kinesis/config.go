package kinesis

import (
	"hash/fnv"
	"strconv"

	"github.com/statusflow/statusflow/pkg/config"
)

// Parameter keys recognized by the sink factory. Every key is optional
// and falls back to its default.
const (
	KeyRegion     = "kinesis.region"
	KeySinkStream = "kinesis.sink.stream"
)

// Defaults applied when a parameter is absent.
const (
	DefaultRegion     = "eu-west-1"
	DefaultSinkStream = "destination"
)

// SinkConfig is the resolved descriptor for a Kinesis sink connector.
type SinkConfig struct {
	Region string
	Stream string
}

// NewSinkConfig resolves a sink descriptor from the parameter set.
func NewSinkConfig(params *config.Params) SinkConfig {
	return SinkConfig{
		Region: params.Get(KeyRegion, DefaultRegion),
		Stream: params.Get(KeySinkStream, DefaultSinkStream),
	}
}

// PartitionKey derives the partition key for an outgoing record from
// its serialized content: an FNV-1a hash of the payload text in
// decimal string form. Identical payloads always map to the same key,
// pinning them to the same shard and preserving their relative order;
// collisions across distinct payloads are acceptable.
func PartitionKey(data []byte) string {
	h := fnv.New32a()
	h.Write(data)
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}
