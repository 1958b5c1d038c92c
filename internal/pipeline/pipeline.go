// Package pipeline provides the execution engine for statusflow,
// orchestrating the flow of records from a source connector through
// per-record transforms to a sink connector.
//
// The execution flow:
//  1. A source reader streams records from the source connector.
//  2. Transform workers apply the transform stages in parallel.
//  3. The sink connector consumes the transformed stream and handles
//     its own batching.
//
// A record that fails a transform is logged, counted, and dropped; the
// pipeline keeps running. Source errors are surfaced through the error
// handler; only sink failures and context cancellation stop the run.
package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/statusflow/statusflow/pkg/connector/core"
	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/metrics"
	"github.com/statusflow/statusflow/pkg/models"
)

// Transform modifies a record in flight. Returning an error drops the
// record; returning nil without an error filters it silently.
type Transform func(ctx context.Context, record *models.Record) (*models.Record, error)

// Config controls pipeline concurrency and buffering.
type Config struct {
	// WorkerCount is the number of parallel transform workers. Records
	// are partitioned across workers by shard, so a given shard always
	// flows through the same worker and its order is preserved at any
	// worker count.
	WorkerCount int
	// BufferSize is the capacity of the inter-stage channels.
	BufferSize int
}

// DefaultConfig returns a configuration suitable for a single-process
// relay: enough workers to keep up with a multi-shard stream without
// starving the sink.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount: 4,
		BufferSize:  1000,
	}
}

// StreamPipeline connects one source to one sink through a chain of
// transforms. It runs until the source is exhausted, the sink fails,
// or the context is cancelled.
type StreamPipeline struct {
	source     core.Source
	sink       core.Sink
	transforms []Transform

	workerCount int
	bufferSize  int

	recordsProcessed int64
	recordsFailed    int64
	startTime        time.Time

	log *zap.Logger
}

// NewStreamPipeline creates a pipeline with the given source, sink, and
// configuration. The pipeline is inert until Run is called.
func NewStreamPipeline(source core.Source, sink core.Sink, config *Config, log *zap.Logger) *StreamPipeline {
	if config == nil {
		config = DefaultConfig()
	}
	return &StreamPipeline{
		source:      source,
		sink:        sink,
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		log:         log,
	}
}

// AddTransform appends a transform stage. Stages run sequentially per
// record, in the order they were added.
func (p *StreamPipeline) AddTransform(transform Transform) {
	p.transforms = append(p.transforms, transform)
}

// Run executes the pipeline and blocks until it stops. A nil error
// means the source stream ended and all in-flight records were handed
// to the sink.
func (p *StreamPipeline) Run(ctx context.Context) error {
	p.startTime = time.Now()
	p.log.Info("starting pipeline",
		zap.Int("worker_count", p.workerCount),
		zap.Int("transforms", len(p.transforms)))

	stream, err := p.source.Read(ctx)
	if err != nil {
		return err
	}

	transformedChan := make(chan *models.Record, p.bufferSize)
	errorChan := make(chan error, 100)

	// One input channel per worker. The dispatcher routes records by
	// shard, so each shard flows through exactly one worker and its
	// order survives the parallelism end to end.
	workerInputs := make([]chan *models.Record, p.workerCount)
	for i := range workerInputs {
		workerInputs[i] = make(chan *models.Record, p.bufferSize)
	}

	var workerWg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		workerWg.Add(1)
		go func(id int) {
			defer workerWg.Done()
			p.transformWorker(ctx, id, workerInputs[id], transformedChan)
		}(i)
	}

	go func() {
		defer func() {
			for _, ch := range workerInputs {
				close(ch)
			}
		}()
		p.dispatch(ctx, stream.Records, workerInputs)
	}()

	go func() {
		workerWg.Wait()
		close(transformedChan)
	}()

	// Forward source errors to the shared handler for the lifetime of
	// the run.
	handlerCtx, stopHandler := context.WithCancel(context.Background())
	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		p.errorHandler(handlerCtx, stream.Errors, errorChan)
	}()

	writeErr := p.sink.Write(ctx, &core.RecordStream{
		Records: transformedChan,
		Errors:  errorChan,
	})

	stopHandler()
	<-handlerDone

	duration := time.Since(p.startTime)
	processed := atomic.LoadInt64(&p.recordsProcessed)
	p.log.Info("pipeline stopped",
		zap.Int64("records_processed", processed),
		zap.Int64("records_failed", atomic.LoadInt64(&p.recordsFailed)),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", float64(processed)/duration.Seconds()))

	return writeErr
}

// dispatch routes source records to transform workers by shard.
func (p *StreamPipeline) dispatch(ctx context.Context, in <-chan *models.Record, workers []chan *models.Record) {
	for {
		select {
		case record, ok := <-in:
			if !ok {
				return
			}
			target := workers[p.workerFor(record.Metadata.ShardID)]
			select {
			case target <- record:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// workerFor maps a shard to its transform worker.
func (p *StreamPipeline) workerFor(shardID string) int {
	if p.workerCount <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(shardID))
	return int(h.Sum32() % uint32(p.workerCount))
}

// transformWorker pulls records from its input channel, applies the
// transform chain, and forwards survivors to the sink stream. Transform
// failures drop the record and keep the worker running.
func (p *StreamPipeline) transformWorker(ctx context.Context, id int, in <-chan *models.Record, out chan<- *models.Record) {
	log := p.log.With(zap.Int("worker", id))

	for {
		select {
		case record, ok := <-in:
			if !ok {
				return
			}

			transformed := record
			var failed bool
			for _, transform := range p.transforms {
				result, err := transform(ctx, transformed)
				if err != nil {
					atomic.AddInt64(&p.recordsFailed, 1)
					metrics.TransformFailures.WithLabelValues("transform_error").Inc()
					log.Warn("dropping record, transform failed",
						zap.String("shard", record.Metadata.ShardID),
						zap.String("sequence", record.Metadata.SequenceNumber),
						zap.Error(err))
					failed = true
					break
				}
				transformed = result
				if transformed == nil {
					break
				}
			}
			if failed || transformed == nil {
				continue
			}

			select {
			case out <- transformed:
				atomic.AddInt64(&p.recordsProcessed, 1)
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// errorHandler drains source errors for the lifetime of the run. On
// stop it flushes whatever is still buffered so no reported error goes
// unlogged.
func (p *StreamPipeline) errorHandler(ctx context.Context, in <-chan error, out chan<- error) {
	for {
		select {
		case err, ok := <-in:
			if !ok {
				return
			}
			p.logSourceError(err, out)

		case <-ctx.Done():
			for {
				select {
				case err, ok := <-in:
					if !ok {
						return
					}
					p.logSourceError(err, out)
				default:
					return
				}
			}
		}
	}
}

// logSourceError logs a source error at a severity matching its
// retryability and forwards it to the sink stream's error channel when
// there is room. Transient errors (throttling, connectivity, timeouts)
// are expected during normal operation and log as warnings.
func (p *StreamPipeline) logSourceError(err error, out chan<- error) {
	if err == nil {
		return
	}
	if errors.IsRetryable(err) {
		p.log.Warn("transient source error", zap.Error(err))
	} else {
		p.log.Error("source error", zap.Error(err))
	}
	select {
	case out <- err:
	default:
	}
}

// Metrics returns a snapshot of pipeline counters.
func (p *StreamPipeline) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"records_processed": atomic.LoadInt64(&p.recordsProcessed),
		"records_failed":    atomic.LoadInt64(&p.recordsFailed),
	}
}
