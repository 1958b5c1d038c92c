package kinesis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
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
	// getRecordsLimit is the per-call record cap for the polling
	// consumer.
	getRecordsLimit = int32(10e3)

	// streamExistsTimeout bounds the startup wait for the source
	// stream to become available.
	streamExistsTimeout = time.Minute

	// shardRefreshInterval is how often the shard list is re-checked
	// so child shards created by a reshard get picked up.
	shardRefreshInterval = 30 * time.Second
)

// streamClient is the subset of the Kinesis API the source uses.
// *kinesis.Client satisfies it.
type streamClient interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
	RegisterStreamConsumer(ctx context.Context, params *kinesis.RegisterStreamConsumerInput, optFns ...func(*kinesis.Options)) (*kinesis.RegisterStreamConsumerOutput, error)
	DescribeStreamConsumer(ctx context.Context, params *kinesis.DescribeStreamConsumerInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamConsumerOutput, error)
	SubscribeToShard(ctx context.Context, params *kinesis.SubscribeToShardInput, optFns ...func(*kinesis.Options)) (*kinesis.SubscribeToShardOutput, error)
}

// KinesisSource consumes records from a Kinesis data stream, either by
// shared-throughput polling or as a registered enhanced fan-out
// consumer. All shards of the stream are consumed by this process,
// each by its own goroutine, preserving per-shard record order.
type KinesisSource struct {
	cfg    SourceConfig
	client streamClient
	log    *zap.Logger

	streamARN   string
	consumerARN string // set only in EFO mode

	refreshInterval time.Duration

	recordsRead int64
	bytesRead   int64
}

// NewKinesisSource creates a Kinesis source from the resolved
// parameter set. Configuration errors (such as an unknown consumer
// mode) surface here, before the pipeline starts.
func NewKinesisSource(params *appconfig.Params) (core.Source, error) {
	cfg, err := NewSourceConfig(params)
	if err != nil {
		return nil, err
	}

	return &KinesisSource{
		cfg:             cfg,
		refreshInterval: shardRefreshInterval,
		log: logger.Get().With(
			zap.String("connector", "kinesis_source"),
			zap.String("stream", cfg.Stream),
			zap.String("mode", string(cfg.Mode)),
		),
	}, nil
}

// Initialize establishes the Kinesis client, waits for the source
// stream to exist, and in EFO mode registers (or adopts) the named
// stream consumer and waits for it to become active.
func (s *KinesisSource) Initialize(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	client := kinesis.NewFromConfig(awsCfg)
	s.client = client

	waiter := kinesis.NewStreamExistsWaiter(client)
	out, err := waiter.WaitForOutput(ctx, &kinesis.DescribeStreamInput{
		StreamName: aws.String(s.cfg.Stream),
	}, streamExistsTimeout)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("source stream %s not available", s.cfg.Stream))
	}
	s.streamARN = aws.ToString(out.StreamDescription.StreamARN)

	if s.cfg.Mode == ModeEFO {
		if err := s.ensureConsumer(ctx); err != nil {
			return err
		}
	}

	s.log.Info("source initialized", zap.String("stream_arn", s.streamARN))
	return nil
}

// Read lists the stream's shards and starts one consumer goroutine per
// shard, always beginning from the oldest retained record. The shard
// list is re-checked periodically so child shards created by a reshard
// are picked up while running. The returned stream's Records channel
// closes when ctx is cancelled and all shard consumers have stopped.
func (s *KinesisSource) Read(ctx context.Context) (*core.RecordStream, error) {
	if s.client == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "source not initialized")
	}

	shardIDs, err := s.listShards(ctx)
	if err != nil {
		return nil, err
	}
	if len(shardIDs) == 0 {
		return nil, errors.Newf(errors.ErrorTypeConnection, "stream %s has no shards", s.cfg.Stream)
	}

	recordChan := make(chan *models.Record, 1000)
	errorChan := make(chan error, 100)

	activeShards := metrics.ActiveShards.WithLabelValues(s.cfg.Stream, string(s.cfg.Mode))

	var wg sync.WaitGroup
	known := make(map[string]struct{}, len(shardIDs))

	startShard := func(shardID string) {
		known[shardID] = struct{}{}
		wg.Add(1)
		activeShards.Inc()
		go func() {
			defer wg.Done()
			defer activeShards.Dec()
			if s.cfg.Mode == ModeEFO {
				s.subscribeShard(ctx, shardID, recordChan, errorChan)
			} else {
				s.pollShard(ctx, shardID, recordChan, errorChan)
			}
		}()
	}

	for _, shardID := range shardIDs {
		startShard(shardID)
	}

	// Shard discovery keeps running until shutdown; it owns the known
	// map after the initial synchronous start.
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchShards(ctx, known, startShard, errorChan)
	}()

	go func() {
		wg.Wait()
		close(recordChan)
	}()

	s.log.Info("consuming stream", zap.Int("shards", len(shardIDs)))

	return &core.RecordStream{
		Records: recordChan,
		Errors:  errorChan,
	}, nil
}

// watchShards re-lists the stream's shards on an interval and starts a
// consumer for every shard not seen before, so a reshard's child
// shards begin draining without a restart.
func (s *KinesisSource) watchShards(ctx context.Context, known map[string]struct{}, start func(string), errs chan<- error) {
	interval := s.refreshInterval
	if interval <= 0 {
		interval = shardRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			shardIDs, err := s.listShards(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.reportErr(ctx, errs, err)
				}
				continue
			}
			for _, shardID := range shardIDs {
				if _, ok := known[shardID]; ok {
					continue
				}
				s.log.Info("discovered new shard", zap.String("shard", shardID))
				start(shardID)
			}
		}
	}
}

// listShards returns all shard IDs of the source stream.
func (s *KinesisSource) listShards(ctx context.Context) ([]string, error) {
	var shardIDs []string
	var nextToken *string

	for {
		input := &kinesis.ListShardsInput{}
		if nextToken != nil {
			input.NextToken = nextToken
		} else {
			input.StreamARN = aws.String(s.streamARN)
		}

		out, err := s.client.ListShards(ctx, input)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list shards")
		}

		for _, shard := range out.Shards {
			shardIDs = append(shardIDs, aws.ToString(shard.ShardId))
		}

		if out.NextToken == nil {
			return shardIDs, nil
		}
		nextToken = out.NextToken
	}
}

// pollShard consumes a single shard with the shared-throughput
// GetRecords API, starting from the oldest retained record. Empty
// polls and throttling back off exponentially; an expired iterator is
// refreshed after the last delivered sequence number so no record is
// skipped or reordered.
func (s *KinesisSource) pollShard(ctx context.Context, shardID string, out chan<- *models.Record, errs chan<- error) {
	log := s.log.With(zap.String("shard", shardID))

	iter, err := s.shardIterator(ctx, shardID, "")
	if err != nil {
		s.reportErr(ctx, errs, err)
		return
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 300 * time.Millisecond
	boff.MaxInterval = 5 * time.Second
	boff.MaxElapsedTime = 0

	var lastSeq string

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := s.client.GetRecords(ctx, &kinesis.GetRecordsInput{
			ShardIterator: aws.String(iter),
			Limit:         aws.Int32(getRecordsLimit),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			var expired *types.ExpiredIteratorException
			if stderrors.As(err, &expired) {
				log.Warn("shard iterator expired, refreshing")
				if iter, err = s.shardIterator(ctx, shardID, lastSeq); err != nil {
					s.reportErr(ctx, errs, err)
					return
				}
				continue
			}

			s.reportErr(ctx, errs, errors.Wrap(err, errors.ErrorTypeConnection, "failed to pull records"))
			if !sleepCtx(ctx, boff.NextBackOff()) {
				return
			}
			continue
		}

		for _, rec := range res.Records {
			lastSeq = aws.ToString(rec.SequenceNumber)
			if !s.emit(ctx, out, shardID, rec) {
				return
			}
		}

		if len(res.Records) > 0 {
			boff.Reset()
		} else if !sleepCtx(ctx, boff.NextBackOff()) {
			return
		}

		// A nil next iterator means the shard is closed and fully
		// consumed.
		if res.NextShardIterator == nil {
			log.Info("shard closed, consumer finished")
			return
		}
		iter = aws.ToString(res.NextShardIterator)
	}
}

// shardIterator obtains an iterator for the shard: TRIM_HORIZON when
// no records have been delivered yet, AFTER_SEQUENCE_NUMBER of the
// last delivered record otherwise.
func (s *KinesisSource) shardIterator(ctx context.Context, shardID, afterSeq string) (string, error) {
	input := &kinesis.GetShardIteratorInput{
		StreamARN:         aws.String(s.streamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
	}
	if afterSeq != "" {
		input.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		input.StartingSequenceNumber = aws.String(afterSeq)
	}

	res, err := s.client.GetShardIterator(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to obtain shard iterator")
	}
	if res.ShardIterator == nil {
		return "", errors.Newf(errors.ErrorTypeConnection, "no shard iterator for shard %s", shardID)
	}
	return aws.ToString(res.ShardIterator), nil
}

// emit converts a stream record and delivers it downstream. Returns
// false when the context was cancelled.
func (s *KinesisSource) emit(ctx context.Context, out chan<- *models.Record, shardID string, rec types.Record) bool {
	record := models.NewRecord(rec.Data)
	record.Metadata = models.RecordMetadata{
		Stream:         s.cfg.Stream,
		ShardID:        shardID,
		SequenceNumber: aws.ToString(rec.SequenceNumber),
	}
	if rec.ApproximateArrivalTimestamp != nil {
		record.Metadata.Timestamp = *rec.ApproximateArrivalTimestamp
	} else {
		record.Metadata.Timestamp = time.Now()
	}

	select {
	case out <- record:
		atomic.AddInt64(&s.recordsRead, 1)
		atomic.AddInt64(&s.bytesRead, int64(len(rec.Data)))
		metrics.RecordsConsumed.WithLabelValues(s.cfg.Stream).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// reportErr forwards an error without blocking shutdown.
func (s *KinesisSource) reportErr(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-ctx.Done():
	default:
		s.log.Error("dropping source error, error channel full", zap.Error(err))
	}
}

// Close releases the source. In EFO mode the registered consumer is
// left in place so a restart can adopt it without re-registration.
func (s *KinesisSource) Close(ctx context.Context) error {
	s.client = nil
	return nil
}

// Health verifies the source stream is still reachable.
func (s *KinesisSource) Health(ctx context.Context) error {
	if s.client == nil {
		return errors.New(errors.ErrorTypeInternal, "source not initialized")
	}
	_, err := s.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamARN: aws.String(s.streamARN),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "source stream unreachable")
	}
	return nil
}

// Metrics returns current source metrics.
func (s *KinesisSource) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"records_read": atomic.LoadInt64(&s.recordsRead),
		"bytes_read":   atomic.LoadInt64(&s.bytesRead),
		"stream":       s.cfg.Stream,
		"mode":         string(s.cfg.Mode),
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
