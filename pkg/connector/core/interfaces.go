package core

import (
	"context"

	"github.com/statusflow/statusflow/pkg/models"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource ConnectorType = "source"
	ConnectorTypeSink   ConnectorType = "sink"
)

// RecordStream represents a stream of records
type RecordStream struct {
	Records <-chan *models.Record
	Errors  <-chan error
}

// Source is the interface that all source connectors must implement.
// A source is built fully configured by its factory; Initialize
// establishes clients and validates the target stream, Read starts
// continuous consumption.
type Source interface {
	// Initialize establishes connections and validates the source
	// stream. Called once before Read.
	Initialize(ctx context.Context) error

	// Read starts consuming and returns the record stream. Records
	// from a single shard arrive in shard order. The Records channel
	// closes only when ctx is cancelled or the stream ends.
	Read(ctx context.Context) (*RecordStream, error)

	// Close releases all resources held by the source.
	Close(ctx context.Context) error

	// Health reports whether the source can currently serve records.
	Health(ctx context.Context) error

	// Metrics returns connector-level metrics.
	Metrics() map[string]interface{}
}

// Sink is the interface that all sink connectors must implement.
type Sink interface {
	// Initialize establishes connections and validates the sink
	// stream. Called once before Write.
	Initialize(ctx context.Context) error

	// Write consumes records from the stream until its Records channel
	// closes or ctx is cancelled, publishing each to the sink.
	Write(ctx context.Context, stream *RecordStream) error

	// Close flushes buffered records and releases resources.
	Close(ctx context.Context) error

	// Health reports whether the sink can currently accept records.
	Health(ctx context.Context) error

	// Metrics returns connector-level metrics.
	Metrics() map[string]interface{}
}

// Connector is the base interface for all connectors
type Connector interface {
	Name() string
	Type() ConnectorType

	Initialize(ctx context.Context) error
	Close(ctx context.Context) error

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}
