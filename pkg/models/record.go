// Package models provides the data model for records flowing through
// the statusflow pipeline.
package models

import (
	"time"
)

// Record is an opaque textual payload flowing between source, transform
// and sink. A record has no identity beyond its position in the stream;
// ordering within a single shard is preserved end to end.
type Record struct {
	// Data is the UTF-8 encoded payload.
	Data []byte

	// Metadata carries stream position information for diagnostics.
	// The transform never depends on it.
	Metadata RecordMetadata
}

// RecordMetadata describes where a record came from.
type RecordMetadata struct {
	// Stream is the source stream name.
	Stream string
	// ShardID is the shard the record was read from.
	ShardID string
	// SequenceNumber is the record's position within its shard.
	SequenceNumber string
	// Timestamp is the approximate arrival time reported by the
	// stream service, or the read time when unavailable.
	Timestamp time.Time
}

// NewRecord creates a record for the given payload.
func NewRecord(data []byte) *Record {
	return &Record{Data: data}
}
