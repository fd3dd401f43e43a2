package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/email-gateway/internal/kafka"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxRelay moves outbox rows to Kafka. Rows are deleted only after the broker acked them.
type OutboxRelay struct {
	Outbox    repository.OutboxRepository
	Publisher Publisher
	Log       *zap.Logger

	BatchSize int
	Interval  time.Duration
}

func NewOutboxRelay(outbox repository.OutboxRepository, pub Publisher, log *zap.Logger) *OutboxRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxRelay{Outbox: outbox, Publisher: pub, Log: log, BatchSize: 500, Interval: 200 * time.Millisecond}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 500
	}
	if r.Interval <= 0 {
		r.Interval = 200 * time.Millisecond
	}
	tick := time.NewTicker(r.Interval)
	defer tick.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.Log.Warn("outbox relay failed", zap.Error(err))
		}
		// drain without waiting while full batches keep coming
		if n == r.BatchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were relayed.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.Outbox.FetchBatch(ctx, r.BatchSize)
	if err != nil || len(events) == 0 {
		return 0, err
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		msgs = append(msgs, kafka.Message{
			Topic: ev.Topic,
			Key:   []byte(ev.AggregateID),
			Value: ev.Payload,
		})
		ids = append(ids, ev.ID)
	}

	if err := r.Publisher.Publish(ctx, msgs...); err != nil {
		if ierr := r.Outbox.IncrementAttempts(context.WithoutCancel(ctx), ids); ierr != nil {
			r.Log.Error("outbox attempts update failed", zap.Error(ierr))
		}
		return 0, err
	}
	if err := r.Outbox.Delete(context.WithoutCancel(ctx), ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
