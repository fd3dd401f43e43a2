package authorizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrInvalidKey            = errors.New("invalid api key")
	ErrInactiveKey           = errors.New("api key is inactive")
	ErrInsufficientCredits   = ledger.ErrInsufficientCredits
	ErrNoTransportConfigured = errors.New("no default smtp profile configured")
)

// Ledger is the slice of the credit ledger the authorizer drives.
type Ledger interface {
	HasCredits(ctx context.Context, companyID int64) (bool, error)
	Deduct(ctx context.Context, companyID int64) (model.MeteringAccount, error)
}

// SendContext is what a successful authorization hands to the dispatcher.
type SendContext struct {
	CompanyID int64
	APIKeyID  int64
	Profile   model.SMTPProfile
	Account   model.MeteringAccount
}

// Authorizer gates public send requests on an active API key, available credit and a
// default SMTP profile, in that order. A caller with a bad key learns nothing about credits.
type Authorizer struct {
	keys     repository.APIKeysRepository
	profiles repository.SMTPProfilesRepository
	ledger   Ledger
	log      *zap.Logger

	Now func() time.Time
}

func New(keys repository.APIKeysRepository, profiles repository.SMTPProfilesRepository, l Ledger, log *zap.Logger) *Authorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authorizer{keys: keys, profiles: profiles, ledger: l, log: log, Now: time.Now}
}

// Identify resolves an active key without touching credits.
func (a *Authorizer) Identify(ctx context.Context, apiKey string) (*model.APIKey, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrInvalidKey
	}

	k, err := a.keys.GetByKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if k == nil {
		return nil, ErrInvalidKey
	}
	if !k.IsActive || k.Expired(a.Now()) {
		return nil, ErrInactiveKey
	}
	return k, nil
}

// Authorize validates the key, checks credit, resolves the default SMTP profile and then
// consumes exactly one credit. The deduction is an atomic decrement-with-floor, so two
// requests racing for the last credit cannot both pass.
func (a *Authorizer) Authorize(ctx context.Context, apiKey string) (SendContext, error) {
	sc, err := a.authorize(ctx, apiKey)
	metrics.AuthorizeTotal.WithLabelValues(resultLabel(err)).Inc()
	return sc, err
}

func (a *Authorizer) authorize(ctx context.Context, apiKey string) (SendContext, error) {
	k, err := a.Identify(ctx, apiKey)
	if err != nil {
		return SendContext{}, err
	}

	ok, err := a.ledger.HasCredits(ctx, k.CompanyID)
	if err != nil {
		return SendContext{}, fmt.Errorf("check credits: %w", err)
	}
	if !ok {
		return SendContext{}, ErrInsufficientCredits
	}

	p, err := a.profiles.GetDefault(ctx, k.CompanyID)
	if err != nil {
		return SendContext{}, fmt.Errorf("lookup smtp profile: %w", err)
	}
	if p == nil {
		return SendContext{}, ErrNoTransportConfigured
	}

	acc, err := a.ledger.Deduct(ctx, k.CompanyID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			return SendContext{}, ErrInsufficientCredits
		}
		return SendContext{}, err
	}

	a.log.Debug("send authorized",
		zap.Int64("company_id", k.CompanyID),
		zap.Int64("api_key_id", k.ID),
		zap.Int64("balance", acc.Balance),
	)

	return SendContext{
		CompanyID: k.CompanyID,
		APIKeyID:  k.ID,
		Profile:   *p,
		Account:   acc,
	}, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInactiveKey):
		return "inactive_key"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrNoTransportConfigured):
		return "no_transport"
	default:
		return "error"
	}
}
