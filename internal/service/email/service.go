package email

import (
	"context"
	"errors"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"go.uber.org/zap"
)

type Authorizer interface {
	Authorize(ctx context.Context, apiKey string) (authorizer.SendContext, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, sc authorizer.SendContext, msg dispatch.Message) (dispatch.Result, error)
}

type Refunder interface {
	Refund(ctx context.Context, acc model.MeteringAccount) error
}

// Service runs a public send: authorize (consuming a credit), then dispatch. A credit is
// only kept when a Queued log row exists for it; any synchronous dispatch failure refunds it.
type Service struct {
	auth     Authorizer
	dispatch Dispatcher
	refunder Refunder
	log      *zap.Logger
}

func New(auth Authorizer, d Dispatcher, r Refunder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{auth: auth, dispatch: d, refunder: r, log: log}
}

func (s *Service) Send(ctx context.Context, apiKey string, msg dispatch.Message) (dispatch.Result, error) {
	sc, err := s.auth.Authorize(ctx, apiKey)
	if err != nil {
		return dispatch.Result{}, err
	}

	res, err := s.dispatch.Dispatch(ctx, sc, msg)
	if err != nil {
		if rerr := s.refunder.Refund(context.WithoutCancel(ctx), sc.Account); rerr != nil {
			s.log.Error("credit refund failed",
				zap.Int64("company_id", sc.CompanyID),
				zap.NamedError("dispatch_error", err),
				zap.Error(rerr),
			)
		}
		return dispatch.Result{}, err
	}
	return res, nil
}

// IsClientError reports whether err is a typed rejection rather than an internal failure.
func IsClientError(err error) bool {
	for _, target := range []error{
		authorizer.ErrInvalidKey,
		authorizer.ErrInactiveKey,
		authorizer.ErrInsufficientCredits,
		authorizer.ErrNoTransportConfigured,
		dispatch.ErrTemplateNotFound,
		dispatch.ErrNoContent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
