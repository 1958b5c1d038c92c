package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/statusflow/statusflow/pkg/connector/core"
	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/models"
)

// memorySource serves a fixed set of records and then closes its
// stream.
type memorySource struct {
	records []*models.Record
	errs    []error
}

func (s *memorySource) Initialize(ctx context.Context) error { return nil }

func (s *memorySource) Read(ctx context.Context) (*core.RecordStream, error) {
	recordChan := make(chan *models.Record, len(s.records))
	errorChan := make(chan error, len(s.errs)+1)
	for _, r := range s.records {
		recordChan <- r
	}
	for _, err := range s.errs {
		errorChan <- err
	}
	close(recordChan)
	return &core.RecordStream{Records: recordChan, Errors: errorChan}, nil
}

func (s *memorySource) Close(ctx context.Context) error  { return nil }
func (s *memorySource) Health(ctx context.Context) error { return nil }
func (s *memorySource) Metrics() map[string]interface{}  { return nil }

// memorySink collects every record it is handed.
type memorySink struct {
	mu      sync.Mutex
	records []*models.Record
	err     error
}

func (s *memorySink) Initialize(ctx context.Context) error { return nil }

func (s *memorySink) Write(ctx context.Context, stream *core.RecordStream) error {
	if s.err != nil {
		return s.err
	}
	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.records = append(s.records, record)
			s.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *memorySink) Close(ctx context.Context) error  { return nil }
func (s *memorySink) Health(ctx context.Context) error { return nil }
func (s *memorySink) Metrics() map[string]interface{}  { return nil }

func (s *memorySink) collected() []*models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Record, len(s.records))
	copy(out, s.records)
	return out
}

func newTestPipeline(source core.Source, sink core.Sink) *StreamPipeline {
	return NewStreamPipeline(source, sink, &Config{WorkerCount: 2, BufferSize: 16}, zap.NewNop())
}

func TestStreamPipeline_PassThrough(t *testing.T) {
	source := &memorySource{records: []*models.Record{
		models.NewRecord([]byte("one")),
		models.NewRecord([]byte("two")),
		models.NewRecord([]byte("three")),
	}}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)
	require.NoError(t, p.Run(context.Background()))

	assert.Len(t, sink.collected(), 3)
	assert.Equal(t, int64(3), p.Metrics()["records_processed"])
	assert.Equal(t, int64(0), p.Metrics()["records_failed"])
}

func TestStreamPipeline_TransformApplied(t *testing.T) {
	source := &memorySource{records: []*models.Record{
		models.NewRecord([]byte("a")),
		models.NewRecord([]byte("b")),
	}}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)
	p.AddTransform(func(ctx context.Context, record *models.Record) (*models.Record, error) {
		out := models.NewRecord(append(record.Data, '!'))
		out.Metadata = record.Metadata
		return out, nil
	})

	require.NoError(t, p.Run(context.Background()))

	got := sink.collected()
	require.Len(t, got, 2)
	for _, record := range got {
		assert.Equal(t, byte('!'), record.Data[len(record.Data)-1])
	}
}

func TestStreamPipeline_FailedRecordsAreDropped(t *testing.T) {
	source := &memorySource{records: []*models.Record{
		models.NewRecord([]byte("good")),
		models.NewRecord([]byte("bad")),
		models.NewRecord([]byte("good")),
	}}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)
	p.AddTransform(func(ctx context.Context, record *models.Record) (*models.Record, error) {
		if string(record.Data) == "bad" {
			return nil, errors.New(errors.ErrorTypeData, "unparsable record")
		}
		return record, nil
	})

	require.NoError(t, p.Run(context.Background()))

	assert.Len(t, sink.collected(), 2)
	assert.Equal(t, int64(2), p.Metrics()["records_processed"])
	assert.Equal(t, int64(1), p.Metrics()["records_failed"])
}

func TestStreamPipeline_NilTransformResultFilters(t *testing.T) {
	source := &memorySource{records: []*models.Record{
		models.NewRecord([]byte("keep")),
		models.NewRecord([]byte("skip")),
	}}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)
	p.AddTransform(func(ctx context.Context, record *models.Record) (*models.Record, error) {
		if string(record.Data) == "skip" {
			return nil, nil
		}
		return record, nil
	})

	require.NoError(t, p.Run(context.Background()))

	got := sink.collected()
	require.Len(t, got, 1)
	assert.Equal(t, "keep", string(got[0].Data))
	assert.Equal(t, int64(0), p.Metrics()["records_failed"])
}

// shardRecord builds a sequence-numbered record pinned to a shard.
func shardRecord(shardID string, seq int) *models.Record {
	r := models.NewRecord([]byte(fmt.Sprintf("%06d", seq)))
	r.Metadata.ShardID = shardID
	r.Metadata.SequenceNumber = fmt.Sprintf("%06d", seq)
	return r
}

func TestStreamPipeline_PerShardOrderPreserved(t *testing.T) {
	// Records from one shard must reach the sink in input order even
	// with multiple transform workers and uneven per-record latency.
	const count = 200
	records := make([]*models.Record, count)
	for i := range records {
		records[i] = shardRecord("shardId-000000000000", i)
	}

	source := &memorySource{records: records}
	sink := &memorySink{}

	p := NewStreamPipeline(source, sink, &Config{WorkerCount: 4, BufferSize: 16}, zap.NewNop())
	p.AddTransform(func(ctx context.Context, record *models.Record) (*models.Record, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return record, nil
	})

	require.NoError(t, p.Run(context.Background()))

	got := sink.collected()
	require.Len(t, got, count)
	for i, record := range got {
		require.Equal(t, fmt.Sprintf("%06d", i), record.Metadata.SequenceNumber,
			"shard order violated at position %d", i)
	}
}

func TestStreamPipeline_PerShardOrderAcrossShards(t *testing.T) {
	// With several shards interleaved, each shard's records must keep
	// their relative order; cross-shard interleaving is unconstrained.
	shards := []string{"shardId-000000000000", "shardId-000000000001", "shardId-000000000002"}
	const perShard = 50

	var records []*models.Record
	for seq := 0; seq < perShard; seq++ {
		for _, shard := range shards {
			records = append(records, shardRecord(shard, seq))
		}
	}

	source := &memorySource{records: records}
	sink := &memorySink{}

	p := NewStreamPipeline(source, sink, &Config{WorkerCount: 4, BufferSize: 8}, zap.NewNop())
	p.AddTransform(func(ctx context.Context, record *models.Record) (*models.Record, error) {
		time.Sleep(time.Duration(rand.Intn(2)) * time.Millisecond)
		return record, nil
	})

	require.NoError(t, p.Run(context.Background()))

	got := sink.collected()
	require.Len(t, got, perShard*len(shards))

	lastSeq := make(map[string]string)
	for _, record := range got {
		shard := record.Metadata.ShardID
		if prev, ok := lastSeq[shard]; ok {
			require.Greater(t, record.Metadata.SequenceNumber, prev,
				"order violated within shard %s", shard)
		}
		lastSeq[shard] = record.Metadata.SequenceNumber
	}
	assert.Len(t, lastSeq, len(shards))
}

func TestStreamPipeline_SourceErrorsDoNotStopRun(t *testing.T) {
	source := &memorySource{
		records: []*models.Record{models.NewRecord([]byte("one"))},
		errs:    []error{errors.New(errors.ErrorTypeConnection, "transient shard error")},
	}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)
	require.NoError(t, p.Run(context.Background()))

	assert.Len(t, sink.collected(), 1)
}

func TestStreamPipeline_SourceErrorSeverity(t *testing.T) {
	// Retryable source errors (throttling, connectivity) are expected
	// during normal operation and log as warnings; anything else logs
	// as an error.
	zapCore, logs := observer.New(zapcore.DebugLevel)

	source := &memorySource{
		records: []*models.Record{models.NewRecord([]byte("one"))},
		errs: []error{
			errors.New(errors.ErrorTypeConnection, "subscription dropped"),
			errors.New(errors.ErrorTypeInternal, "iterator state lost"),
		},
	}
	sink := &memorySink{}

	p := NewStreamPipeline(source, sink, &Config{WorkerCount: 1, BufferSize: 4}, zap.New(zapCore))
	require.NoError(t, p.Run(context.Background()))

	transient := logs.FilterMessage("transient source error").All()
	require.Len(t, transient, 1)
	assert.Equal(t, zapcore.WarnLevel, transient[0].Level)

	fatal := logs.FilterMessage("source error").All()
	require.Len(t, fatal, 1)
	assert.Equal(t, zapcore.ErrorLevel, fatal[0].Level)
}

func TestStreamPipeline_SinkErrorIsFatal(t *testing.T) {
	source := &memorySource{records: []*models.Record{models.NewRecord([]byte("one"))}}
	sink := &memorySink{err: errors.New(errors.ErrorTypeConnection, "stream gone")}

	p := newTestPipeline(source, sink)
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestStreamPipeline_CancelStopsRun(t *testing.T) {
	// A source whose stream never closes; cancellation must still
	// unwind the pipeline.
	recordChan := make(chan *models.Record)
	errorChan := make(chan error)
	source := &blockingSource{stream: &core.RecordStream{Records: recordChan, Errors: errorChan}}
	sink := &memorySink{}

	p := newTestPipeline(source, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		// The sink may observe either the cancellation or the closing
		// record channel first; both are clean stops.
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

type blockingSource struct {
	stream *core.RecordStream
}

func (s *blockingSource) Initialize(ctx context.Context) error { return nil }
func (s *blockingSource) Read(ctx context.Context) (*core.RecordStream, error) {
	return s.stream, nil
}
func (s *blockingSource) Close(ctx context.Context) error  { return nil }
func (s *blockingSource) Health(ctx context.Context) error { return nil }
func (s *blockingSource) Metrics() map[string]interface{}  { return nil }
