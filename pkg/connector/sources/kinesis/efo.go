package kinesis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/models"
)

// consumerActivePollInterval is how often a freshly registered
// enhanced fan-out consumer is re-checked until it becomes active.
const consumerActivePollInterval = time.Second

// ensureConsumer registers the named enhanced fan-out consumer on the
// source stream, adopting it when a previous run already registered
// it, and waits until it is active.
func (s *KinesisSource) ensureConsumer(ctx context.Context) error {
	out, err := s.client.RegisterStreamConsumer(ctx, &kinesis.RegisterStreamConsumerInput{
		StreamARN:    aws.String(s.streamARN),
		ConsumerName: aws.String(s.cfg.EFOConsumerName),
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !stderrors.As(err, &inUse) {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to register enhanced fan-out consumer")
		}
		// Already registered, adopt it below.
	} else if out.Consumer.ConsumerStatus == types.ConsumerStatusActive {
		s.consumerARN = aws.ToString(out.Consumer.ConsumerARN)
		return nil
	}

	for {
		desc, err := s.client.DescribeStreamConsumer(ctx, &kinesis.DescribeStreamConsumerInput{
			StreamARN:    aws.String(s.streamARN),
			ConsumerName: aws.String(s.cfg.EFOConsumerName),
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to describe enhanced fan-out consumer")
		}

		if desc.ConsumerDescription.ConsumerStatus == types.ConsumerStatusActive {
			s.consumerARN = aws.ToString(desc.ConsumerDescription.ConsumerARN)
			s.log.Info("enhanced fan-out consumer active",
				zap.String("consumer", s.cfg.EFOConsumerName),
				zap.String("consumer_arn", s.consumerARN))
			return nil
		}

		if !sleepCtx(ctx, consumerActivePollInterval) {
			return ctx.Err()
		}
	}
}

// subscribeShard consumes a single shard over a dedicated enhanced
// fan-out subscription, starting from the oldest retained record. A
// subscription expires after roughly five minutes; the loop
// resubscribes at the continuation sequence number reported by the
// last event so per-shard order is preserved across subscription
// boundaries.
func (s *KinesisSource) subscribeShard(ctx context.Context, shardID string, out chan<- *models.Record, errs chan<- error) {
	log := s.log.With(zap.String("shard", shardID))

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 300 * time.Millisecond
	boff.MaxInterval = 5 * time.Second
	boff.MaxElapsedTime = 0

	var continuation string

	for {
		if ctx.Err() != nil {
			return
		}

		position := &types.StartingPosition{Type: types.ShardIteratorTypeTrimHorizon}
		if continuation != "" {
			position = &types.StartingPosition{
				Type:           types.ShardIteratorTypeAtSequenceNumber,
				SequenceNumber: aws.String(continuation),
			}
		}

		sub, err := s.client.SubscribeToShard(ctx, &kinesis.SubscribeToShardInput{
			ConsumerARN:      aws.String(s.consumerARN),
			ShardId:          aws.String(shardID),
			StartingPosition: position,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.reportErr(ctx, errs, errors.Wrap(err, errors.ErrorTypeConnection, "failed to subscribe to shard"))
			if !sleepCtx(ctx, boff.NextBackOff()) {
				return
			}
			continue
		}
		boff.Reset()

		stream := sub.GetStream()
		finished := false
		for event := range stream.Events() {
			ev, ok := event.(*types.SubscribeToShardEventStreamMemberSubscribeToShardEvent)
			if !ok {
				continue
			}

			for _, rec := range ev.Value.Records {
				if !s.emit(ctx, out, shardID, rec) {
					stream.Close()
					return
				}
			}
			if ev.Value.ContinuationSequenceNumber == nil {
				// Shard closed and fully consumed.
				finished = true
				break
			}
			continuation = aws.ToString(ev.Value.ContinuationSequenceNumber)
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.reportErr(ctx, errs, errors.Wrap(err, errors.ErrorTypeConnection, "shard subscription failed"))
		}
		stream.Close()

		if finished {
			log.Info("shard closed, consumer finished")
			return
		}
		// Subscription expired, renew from the last position.
	}
}
