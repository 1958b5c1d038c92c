package kinesis

import (
	"github.com/statusflow/statusflow/pkg/connector/registry"
)

func init() {
	// Register Kinesis sink factory
	registry.RegisterSink("kinesis", NewKinesisSink)
}
