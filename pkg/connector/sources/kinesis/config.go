package kinesis

import (
	"github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/errors"
)

// Parameter keys recognized by the source factory. Every key is
// optional and falls back to its default.
const (
	KeyRegion       = "kinesis.region"
	KeySourceStream = "kinesis.source.stream"
	KeySourceType   = "kinesis.source.type"
	KeyEFOConsumer  = "kinesis.source.efoConsumer"
)

// Defaults applied when a parameter is absent.
const (
	DefaultRegion          = "eu-west-1"
	DefaultSourceStream    = "source"
	DefaultEFOConsumerName = "sample-efo-flink-consumer"
)

// ConsumerMode selects how the source consumes the stream.
type ConsumerMode string

const (
	// ModePolling is the shared-throughput consumer using the standard
	// GetRecords API.
	ModePolling ConsumerMode = "POLLING"
	// ModeEFO is the enhanced fan-out consumer: a named registered
	// consumer with dedicated throughput, using SubscribeToShard.
	ModeEFO ConsumerMode = "EFO"
)

// ParseConsumerMode validates a mode string. Anything other than the
// two recognized modes is a fatal configuration error; an unknown mode
// must never silently fall back to polling.
func ParseConsumerMode(s string) (ConsumerMode, error) {
	switch ConsumerMode(s) {
	case ModePolling:
		return ModePolling, nil
	case ModeEFO:
		return ModeEFO, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig,
			"unrecognized consumer mode %q (expected %q or %q)", s, ModePolling, ModeEFO)
	}
}

// SourceConfig is the resolved descriptor for a Kinesis source
// connector. It is consumed once to build the connector.
//
// The starting position is always the oldest retained record
// (TRIM_HORIZON) and is deliberately not configurable, unlike region
// and stream name.
type SourceConfig struct {
	Region string
	Stream string
	Mode   ConsumerMode

	// EFOConsumerName is set only when Mode is ModeEFO; polling mode
	// never carries a consumer identity.
	EFOConsumerName string
}

// NewSourceConfig resolves a source descriptor from the parameter set.
// Region, stream and mode each have defaults; an unrecognized mode
// fails immediately. In EFO mode the consumer name is always attached,
// falling back to its default when unset.
func NewSourceConfig(params *config.Params) (SourceConfig, error) {
	mode, err := ParseConsumerMode(params.Get(KeySourceType, string(ModePolling)))
	if err != nil {
		return SourceConfig{}, err
	}

	cfg := SourceConfig{
		Region: params.Get(KeyRegion, DefaultRegion),
		Stream: params.Get(KeySourceStream, DefaultSourceStream),
		Mode:   mode,
	}

	if mode == ModeEFO {
		cfg.EFOConsumerName = params.Get(KeyEFOConsumer, DefaultEFOConsumerName)
	}

	return cfg, nil
}
