package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/util"
	"go.uber.org/zap"
)

const TopicEmailSend = "email.send"

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoContent        = errors.New("no html or text body")
	ErrQueueFull        = errors.New("dispatch queue is full")
)

// Message is an inbound send request after HTTP decoding.
type Message struct {
	From       string
	To         string
	Subject    string
	HTML       string
	Text       string
	TemplateID *int64
}

// Task is one background delivery: transport call plus status reconciliation of LogID.
type Task struct {
	LogID     string
	CompanyID int64
	Profile   model.SMTPProfile
	Mail      model.Mail
}

// Queue hands tasks to whatever runs deliveries in the background.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

type Result struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Dispatcher logs an authorized send as Queued and schedules its delivery. It never waits
// for the transport; the outcome only reaches the log row.
type Dispatcher struct {
	templates repository.TemplatesRepository
	logs      repository.EmailLogsRepository
	queue     Queue
	log       *zap.Logger
}

func New(templates repository.TemplatesRepository, logs repository.EmailLogsRepository, q Queue, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{templates: templates, logs: logs, queue: q, log: log}
}

func (d *Dispatcher) resolve(ctx context.Context, companyID int64, msg Message) (model.Mail, error) {
	mail := model.Mail{From: msg.From, To: msg.To}

	if msg.TemplateID != nil {
		tpl, err := d.templates.GetByID(ctx, companyID, *msg.TemplateID)
		if err != nil {
			return mail, fmt.Errorf("load template: %w", err)
		}
		if tpl == nil {
			return mail, ErrTemplateNotFound
		}
		mail.Subject = tpl.Subject
		mail.Body = tpl.Content
		mail.IsHTML = true
		return mail, nil
	}

	mail.Subject = msg.Subject
	switch {
	case strings.TrimSpace(msg.HTML) != "":
		mail.Body = msg.HTML
		mail.IsHTML = true
	case strings.TrimSpace(msg.Text) != "":
		mail.Body = msg.Text
	default:
		return mail, ErrNoContent
	}
	return mail, nil
}

// Dispatch resolves content, creates the Queued log row and enqueues delivery.
// The log row always exists before the task is visible to any worker.
func (d *Dispatcher) Dispatch(ctx context.Context, sc authorizer.SendContext, msg Message) (Result, error) {
	mail, err := d.resolve(ctx, sc.CompanyID, msg)
	if err != nil {
		return Result{}, err
	}

	id := util.NewMessageID()
	row := model.EmailLog{
		ID:        id,
		CompanyID: sc.CompanyID,
		From:      mail.From,
		To:        mail.To,
		Subject:   mail.Subject,
		Body:      mail.Body,
		IsHTML:    mail.IsHTML,
		Status:    model.StatusQueued,
	}
	if err := d.logs.InsertQueued(ctx, nil, row); err != nil {
		return Result{}, fmt.Errorf("insert email log: %w", err)
	}
	metrics.EmailsTotal.WithLabelValues("queued").Inc()

	task := Task{LogID: id, CompanyID: sc.CompanyID, Profile: sc.Profile, Mail: mail}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		metrics.EmailsTotal.WithLabelValues("rejected").Inc()
		// never leave a row Queued that no worker will pick up
		if _, merr := d.logs.MarkTerminal(context.WithoutCancel(ctx), id, model.StatusFailed); merr != nil {
			d.log.Error("mark unqueued email failed", zap.String("message_id", id), zap.Error(merr))
		}
		return Result{}, fmt.Errorf("enqueue %s: %w", id, err)
	}

	return Result{MessageID: id, Status: "queued"}, nil
}

// OutboxQueue writes tasks to the outbox table; the relay publishes them to Kafka.
// Only the SMTP profile id is serialized.
type OutboxQueue struct {
	outbox repository.OutboxRepository
}

func NewOutboxQueue(outbox repository.OutboxRepository) *OutboxQueue {
	return &OutboxQueue{outbox: outbox}
}

var _ Queue = (*OutboxQueue)(nil)

func (q *OutboxQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := json.Marshal(model.Envelope{
		ID:        t.LogID,
		CompanyID: t.CompanyID,
		ProfileID: t.Profile.ID,
		Mail:      t.Mail,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.outbox.Insert(ctx, nil, "email", t.LogID, TopicEmailSend, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
