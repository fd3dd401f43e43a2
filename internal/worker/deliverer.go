package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/email-gateway/internal/mailer"
	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"go.uber.org/zap"
)

// Deliverer performs one transport call and reconciles the email log with its outcome.
type Deliverer struct {
	transport mailer.Transport
	logs      repository.EmailLogsRepository
	timeout   time.Duration
	log       *zap.Logger
}

func NewDeliverer(t mailer.Transport, logs repository.EmailLogsRepository, timeout time.Duration, log *zap.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Deliverer{transport: t, logs: logs, timeout: timeout, log: log}
}

// Attempt submits the mail and maps the result onto a terminal status.
// Every outcome is logged once with message_id, company_id and status.
func (d *Deliverer) Attempt(ctx context.Context, id string, companyID int64, p model.SMTPProfile, m model.Mail) model.EmailStatus {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.transport.Send(ctx, p, m); err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		d.log.Warn("email delivery failed",
			zap.String("message_id", id),
			zap.Int64("company_id", companyID),
			zap.String("status", string(model.StatusFailed)),
			zap.Int64("smtp_profile_id", p.ID),
			zap.Error(err),
		)
		return model.StatusFailed
	}
	metrics.EmailsTotal.WithLabelValues("success").Inc()
	d.log.Info("email delivered",
		zap.String("message_id", id),
		zap.Int64("company_id", companyID),
		zap.String("status", string(model.StatusSuccess)),
	)
	return model.StatusSuccess
}

// Deliver runs Attempt and writes the terminal status. The status write is not bound
// to ctx cancellation so a shutdown never strands a row in Queued after the relay answered.
func (d *Deliverer) Deliver(ctx context.Context, t dispatch.Task) {
	status := d.Attempt(ctx, t.LogID, t.CompanyID, t.Profile, t.Mail)

	ok, err := d.logs.MarkTerminal(context.WithoutCancel(ctx), t.LogID, status)
	if err != nil {
		d.log.Error("email status update failed",
			zap.String("message_id", t.LogID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	if !ok {
		d.log.Warn("email already terminal", zap.String("message_id", t.LogID))
	}
}
