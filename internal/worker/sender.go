package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/email-gateway/internal/kafka"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Source is the consumer side of the email topic.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// SenderKafka:
// - fetches envelopes from Kafka,
// - resolves the SMTP profile by id and delivers through the mailer,
// - batches email log status updates in one transaction per flush.
type SenderKafka struct {
	// Dependencies
	DB        *sqlx.DB // optional; nil flushes without an explicit transaction
	Source    Source
	Logs      repository.EmailLogsRepository
	Profiles  repository.SMTPProfilesRepository
	Deliverer *Deliverer
	Log       *zap.Logger

	// Behavior
	Workers   int           // number of goroutines processing envelopes
	BatchSize int           // max buffered updates per flush (items)
	BatchWait time.Duration // max time to wait before flush
}

// NewSenderKafka builds a worker with sane defaults.
func NewSenderKafka(
	db *sqlx.DB,
	src Source,
	logs repository.EmailLogsRepository,
	profiles repository.SMTPProfilesRepository,
	d *Deliverer,
	log *zap.Logger,
) *SenderKafka {
	if log == nil {
		log = zap.NewNop()
	}
	return &SenderKafka{
		DB:        db,
		Source:    src,
		Logs:      logs,
		Profiles:  profiles,
		Deliverer: d,
		Log:       log,
		Workers:   16,
		BatchSize: 200,
		BatchWait: 300 * time.Millisecond,
	}
}

type updateItem struct {
	id     string
	status model.EmailStatus // Success | Failed
}

// Run starts the worker and blocks until ctx is cancelled and pending updates are flushed.
func (w *SenderKafka) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}

	updates := make(chan updateItem, w.BatchSize*2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runBatchWriter(updates)
	}()

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	processors := make(chan struct{}, w.Workers)
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { processors <- struct{}{} }()
			for m := range msgCh {
				w.processOne(ctx, m, updates)
			}
		}()
	}
	for i := 0; i < w.Workers; i++ {
		<-processors
	}
	close(updates)
	<-done
	return nil
}

func (w *SenderKafka) processOne(ctx context.Context, m kafka.Message, out chan<- updateItem) {
	// left uncommitted so the next consumer in the group picks it up
	if ctx.Err() != nil {
		return
	}
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
		// poison: commit and skip
		_ = w.Source.Commit(ctx, m)
		w.Log.Error("bad envelope", zap.ByteString("key", m.Key), zap.Error(err))
		return
	}

	status := model.StatusFailed
	profile, err := w.Profiles.GetByID(ctx, env.CompanyID, env.ProfileID)
	switch {
	case err != nil:
		w.Log.Error("load smtp profile failed",
			zap.String("message_id", env.ID),
			zap.Int64("company_id", env.CompanyID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	case profile == nil:
		w.Log.Warn("smtp profile gone",
			zap.String("message_id", env.ID),
			zap.Int64("company_id", env.CompanyID),
			zap.String("status", string(status)),
			zap.Int64("smtp_profile_id", env.ProfileID),
		)
	default:
		status = w.Deliverer.Attempt(ctx, env.ID, env.CompanyID, *profile, env.Mail)
	}
	out <- updateItem{id: env.ID, status: status}

	// at-least-once; the conditional status update makes redelivery harmless
	if err := w.Source.Commit(context.WithoutCancel(ctx), m); err != nil {
		w.Log.Warn("kafka commit failed", zap.String("message_id", env.ID), zap.Error(err))
	}
}

// runBatchWriter does size/time-based flush of status updates until in is closed.
func (w *SenderKafka) runBatchWriter(in <-chan updateItem) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	var success, failed []string

	flush := func() {
		if len(success) == 0 && len(failed) == 0 {
			return
		}
		ctx := context.Background()
		if err := w.flush(ctx, success, failed); err != nil {
			w.Log.Error("status flush failed", zap.Int("success", len(success)), zap.Int("failed", len(failed)), zap.Error(err))
		} else {
			w.Log.Info("status flushed", zap.Int("success", len(success)), zap.Int("failed", len(failed)))
		}
		success = success[:0]
		failed = failed[:0]
	}

	for {
		select {
		case u, ok := <-in:
			if !ok {
				flush()
				return
			}
			if u.status == model.StatusSuccess {
				success = append(success, u.id)
			} else {
				failed = append(failed, u.id)
			}
			if len(success)+len(failed) >= w.BatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		}
	}
}

func (w *SenderKafka) flush(ctx context.Context, success, failed []string) error {
	var tx *sqlx.Tx
	if w.DB != nil {
		var err error
		tx, err = w.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
	}
	if len(success) > 0 {
		if err := w.Logs.BatchMarkTerminal(ctx, tx, success, model.StatusSuccess); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		if err := w.Logs.BatchMarkTerminal(ctx, tx, failed, model.StatusFailed); err != nil {
			return err
		}
	}
	if tx != nil {
		return tx.Commit()
	}
	return nil
}
