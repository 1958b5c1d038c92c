// Package statusflow provides a streaming relay between two Kinesis data
// streams. It consumes web log records from a source stream, extracts the
// HTTP status code carried in each record's "response" field, and publishes
// a per-record status count document to a destination stream.
//
// # Architecture
//
// statusflow is organized around a small connector framework:
//
//  1. Source connectors consume records from an external stream. The Kinesis
//     source supports both shared-throughput polling and enhanced fan-out
//     consumption, one goroutine per shard, preserving per-shard order.
//
//  2. The transform stage parses each record and maps it to its output
//     document. Records that cannot be transformed are logged, counted, and
//     dropped without stopping the pipeline.
//
//  3. Sink connectors publish records to an external stream. The Kinesis
//     sink batches writes, derives a deterministic partition key from each
//     payload, and requeues throttled entries with backoff.
//
// Connectors register themselves by name and are instantiated through
// pkg/connector/registry from the resolved parameter set.
//
// # Configuration
//
// Parameters are resolved exactly once at startup, either from trailing
// key=value process arguments (local execution) or from a runtime property
// group document (managed execution). See pkg/config.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/statusflow/statusflow/internal/pipeline"
//	    "github.com/statusflow/statusflow/pkg/config"
//	    "github.com/statusflow/statusflow/pkg/connector/registry"
//	)
//
//	params, _ := config.DetectProvider(os.Args[1:]).Resolve()
//	source, _ := registry.CreateSource("kinesis", params)
//	sink, _ := registry.CreateSink("kinesis", params)
//
//	p := pipeline.NewStreamPipeline(source, sink, nil, logger)
//	p.AddTransform(myTransform)
//	err := p.Run(context.Background())
//
// # Key Packages
//
//	pkg/connector    - Connector framework for sources and sinks
//	pkg/config       - Startup parameter resolution
//	pkg/transform    - Status code extraction
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus instrumentation
//	internal/pipeline - Pipeline execution engine
package statusflow
