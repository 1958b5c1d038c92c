package kinesis

import (
	"github.com/statusflow/statusflow/pkg/connector/registry"
)

func init() {
	// Register Kinesis source factory
	registry.RegisterSource("kinesis", NewKinesisSource)
}
