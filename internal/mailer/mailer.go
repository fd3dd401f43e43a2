package mailer

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
)

var ErrBreakerOpen = errors.New("smtp relay circuit open")

// Transport is the mail-submission collaborator.
type Transport interface {
	Send(ctx context.Context, p model.SMTPProfile, m model.Mail) error
}

type Config struct {
	MaxAttempts   int
	FailThreshold int
	OpenFor       time.Duration
}

// Mailer wraps a Transport with a circuit breaker per SMTP profile and a bounded number of
// attempts. Only relay faults count against a breaker, and a send is never retried once the
// message body may have been accepted.
type Mailer struct {
	transport   Transport
	maxAttempts int
	threshold   int
	openFor     time.Duration

	mu       sync.Mutex
	breakers map[string]*MicroBreaker
}

func New(t Transport, cfg Config) *Mailer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 15 * time.Second
	}
	return &Mailer{
		transport:   t,
		maxAttempts: cfg.MaxAttempts,
		threshold:   cfg.FailThreshold,
		openFor:     cfg.OpenFor,
		breakers:    make(map[string]*MicroBreaker),
	}
}

var _ Transport = (*Mailer)(nil)

// breakerKey scopes a breaker to one set of credentials on one relay, so a tenant with a bad
// login cannot open the circuit for other tenants sharing the host.
func breakerKey(p model.SMTPProfile) string {
	return strconv.FormatInt(p.ID, 10) + "|" + p.Username + "@" + net.JoinHostPort(p.Server, strconv.Itoa(p.Port))
}

func (m *Mailer) breaker(p model.SMTPProfile) *MicroBreaker {
	key := breakerKey(p)

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[key]
	if !ok {
		b = NewMicroBreaker(m.threshold, m.openFor)
		m.breakers[key] = b
	}
	return b
}

func (m *Mailer) Send(ctx context.Context, p model.SMTPProfile, mail model.Mail) error {
	br := m.breaker(p)

	var last error
	for i := 0; i < m.maxAttempts; i++ {
		if !br.TryAcquire() {
			if last == nil {
				last = ErrBreakerOpen
			}
			break
		}

		err := m.transport.Send(ctx, p, mail)
		if err == nil {
			br.OnSuccess()
			return nil
		}
		last = err

		oc := classify(err)
		if oc.relayFault {
			br.OnFailure()
		} else {
			// the relay answered
			br.OnSuccess()
		}
		if !oc.retryable || ctx.Err() != nil {
			break
		}
	}

	return last
}
