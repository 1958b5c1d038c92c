package kinesis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	appconfig "github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/connector/core"
	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/logger"
	"github.com/statusflow/statusflow/pkg/metrics"
	"github.com/statusflow/statusflow/pkg/models"
)

const (
	// maxBatchRecords is the PutRecords entry cap.
	maxBatchRecords = 500

	// maxRecordBytes is the Kinesis per-record payload limit.
	maxRecordBytes = 1 << 20

	// flushInterval bounds how long a partial batch may wait before
	// being published.
	flushInterval = time.Second

	// streamExistsTimeout bounds the startup wait for the sink stream.
	streamExistsTimeout = time.Minute
)

// KinesisSink publishes records to a Kinesis data stream. Each record
// carries a partition key derived deterministically from its payload,
// so identical payloads always route to the same shard. Writes are
// batched into PutRecords calls; throttled entries are requeued in
// order with exponential backoff.
type KinesisSink struct {
	cfg    SinkConfig
	client *kinesis.Client
	log    *zap.Logger

	streamARN string

	recordsWritten int64
	bytesWritten   int64
	recordsFailed  int64
}

// NewKinesisSink creates a Kinesis sink from the resolved parameter
// set.
func NewKinesisSink(params *appconfig.Params) (core.Sink, error) {
	cfg := NewSinkConfig(params)

	return &KinesisSink{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("connector", "kinesis_sink"),
			zap.String("stream", cfg.Stream),
		),
	}, nil
}

// Initialize establishes the Kinesis client and waits for the sink
// stream to exist, surfacing a misconfigured stream name at startup
// rather than on the first write.
func (k *KinesisSink) Initialize(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(k.cfg.Region))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	k.client = kinesis.NewFromConfig(awsCfg)

	waiter := kinesis.NewStreamExistsWaiter(k.client)
	out, err := waiter.WaitForOutput(ctx, &kinesis.DescribeStreamInput{
		StreamName: aws.String(k.cfg.Stream),
	}, streamExistsTimeout)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("sink stream %s not available", k.cfg.Stream))
	}
	k.streamARN = aws.ToString(out.StreamDescription.StreamARN)

	k.log.Info("sink initialized", zap.String("stream_arn", k.streamARN))
	return nil
}

// Write consumes records from the stream until its Records channel
// closes or ctx is cancelled. Records are batched up to the PutRecords
// limit and flushed on size or interval; a final flush publishes any
// partial batch before returning.
func (k *KinesisSink) Write(ctx context.Context, stream *core.RecordStream) error {
	if k.client == nil {
		return errors.New(errors.ErrorTypeInternal, "sink not initialized")
	}

	batch := make([]types.PutRecordsRequestEntry, 0, maxBatchRecords)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := k.putRecords(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return flush()
			}

			if len(record.Data) > maxRecordBytes {
				atomic.AddInt64(&k.recordsFailed, 1)
				metrics.RecordsDropped.WithLabelValues("oversized").Inc()
				k.log.Error("record exceeds the maximum Kinesis payload limit of 1 MiB",
					zap.Int("size", len(record.Data)))
				continue
			}

			batch = append(batch, k.toEntry(record))
			if len(batch) >= maxBatchRecords {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}

		case <-ctx.Done():
			// Best-effort final flush with a short grace period.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := k.putRecords(flushCtx, batch); err != nil {
				k.log.Warn("failed to flush final batch", zap.Error(err))
			}
			return ctx.Err()
		}
	}
}

// toEntry converts a record into a PutRecords entry with its derived
// partition key.
func (k *KinesisSink) toEntry(record *models.Record) types.PutRecordsRequestEntry {
	return types.PutRecordsRequestEntry{
		Data:         record.Data,
		PartitionKey: aws.String(PartitionKey(record.Data)),
	}
}

// putRecords publishes one batch, requeueing throttled entries in
// their original order with exponential backoff. Non-throttling entry
// failures are fatal to the write.
func (k *KinesisSink) putRecords(ctx context.Context, entries []types.PutRecordsRequestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 200 * time.Millisecond
	boff.MaxInterval = 5 * time.Second
	boff.MaxElapsedTime = time.Minute

	timer := metrics.NewTimer()
	defer func() {
		metrics.FlushLatency.WithLabelValues(k.cfg.Stream).Observe(timer.Stop().Seconds())
	}()

	pending := entries
	for len(pending) > 0 {
		out, err := k.client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamARN: aws.String(k.streamARN),
			Records:   pending,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var throttled *types.ProvisionedThroughputExceededException
			if !stderrors.As(err, &throttled) {
				return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish records")
			}
			wait := boff.NextBackOff()
			if wait == backoff.Stop {
				return errors.Wrap(err, errors.ErrorTypeRateLimit, "publish retries exhausted")
			}
			k.log.Warn("publish throttled, retrying", zap.Duration("wait", wait))
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		// Requeue individual entries that failed with a retryable code,
		// preserving their relative order.
		var failed []types.PutRecordsRequestEntry
		for i, result := range out.Records {
			if result.ErrorCode == nil {
				atomic.AddInt64(&k.recordsWritten, 1)
				atomic.AddInt64(&k.bytesWritten, int64(len(pending[i].Data)))
				metrics.RecordsPublished.WithLabelValues(k.cfg.Stream).Inc()
				continue
			}
			switch code := aws.ToString(result.ErrorCode); code {
			case "ProvisionedThroughputExceededException", "InternalFailure":
				metrics.DeliveryRetries.WithLabelValues(code).Inc()
				failed = append(failed, pending[i])
			default:
				atomic.AddInt64(&k.recordsFailed, 1)
				return errors.Newf(errors.ErrorTypeConnection,
					"record failed with code %s: %s",
					aws.ToString(result.ErrorCode), aws.ToString(result.ErrorMessage))
			}
		}

		if len(failed) > 0 {
			wait := boff.NextBackOff()
			if wait == backoff.Stop {
				return errors.New(errors.ErrorTypeRateLimit, "publish retries exhausted")
			}
			k.log.Warn("requeueing throttled records",
				zap.Int("count", len(failed)), zap.Duration("wait", wait))
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
		}
		pending = failed
	}

	return nil
}

// Close releases the sink.
func (k *KinesisSink) Close(ctx context.Context) error {
	k.client = nil
	return nil
}

// Health verifies the sink stream is still reachable.
func (k *KinesisSink) Health(ctx context.Context) error {
	if k.client == nil {
		return errors.New(errors.ErrorTypeInternal, "sink not initialized")
	}
	_, err := k.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamARN: aws.String(k.streamARN),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "sink stream unreachable")
	}
	return nil
}

// Metrics returns current sink metrics.
func (k *KinesisSink) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"records_written": atomic.LoadInt64(&k.recordsWritten),
		"bytes_written":   atomic.LoadInt64(&k.bytesWritten),
		"records_failed":  atomic.LoadInt64(&k.recordsFailed),
		"stream":          k.cfg.Stream,
	}
}

// sleepCtx sleeps for d or until ctx is cancelled; reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
