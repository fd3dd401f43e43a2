package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/model"
	"go.uber.org/zap"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// Store is the persistence the ledger needs. Every mutation is a single conditional
// statement so concurrent requests (and concurrent processes) cannot overdraw or double-reset.
type Store interface {
	GetAccount(ctx context.Context, companyID int64) (model.MeteringAccount, error)
	// ResetCredits sets balance and reset_at only while reset_at still equals prevResetAt.
	ResetCredits(ctx context.Context, companyID, credits int64, prevResetAt, nextResetAt time.Time) (bool, error)
	// DeductCredit decrements by one only when balance > 0. It returns the balance and
	// reset_at as they stood right after the decrement.
	DeductCredit(ctx context.Context, companyID int64) (acc model.MeteringAccount, ok bool, err error)
	// RefundCredit increments by one only while reset_at still equals resetAt.
	RefundCredit(ctx context.Context, companyID int64, resetAt time.Time) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]model.MeteringAccount, error)
}

// Ledger owns the tier/balance/reset_at invariant of company metering accounts.
type Ledger struct {
	store   Store
	pricing Pricing
	log     *zap.Logger

	Now func() time.Time
}

func New(store Store, pricing Pricing, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		pricing: pricing,
		log:     log,
		Now:     time.Now,
	}
}

func (l *Ledger) Pricing() Pricing { return l.pricing }

// CheckAndResetIfDue restores the tier allotment when the stored reset boundary has passed
// and advances reset_at to the next month boundary. Calling it again in the same month is a no-op.
func (l *Ledger) CheckAndResetIfDue(ctx context.Context, companyID int64) (model.MeteringAccount, error) {
	acc, err := l.store.GetAccount(ctx, companyID)
	if err != nil {
		return model.MeteringAccount{}, fmt.Errorf("load account: %w", err)
	}

	now := l.Now()
	if !ResetDue(acc, now) {
		return acc, nil
	}

	return l.reset(ctx, acc, now)
}

func (l *Ledger) reset(ctx context.Context, acc model.MeteringAccount, now time.Time) (model.MeteringAccount, error) {
	credits := l.pricing.MonthlyCredits(acc.Tier)
	next := NextResetBoundary(now)

	ok, err := l.store.ResetCredits(ctx, acc.CompanyID, credits, acc.ResetAt, next)
	if err != nil {
		return model.MeteringAccount{}, fmt.Errorf("reset credits: %w", err)
	}
	if !ok {
		// someone else reset first; their state wins
		fresh, err := l.store.GetAccount(ctx, acc.CompanyID)
		if err != nil {
			return model.MeteringAccount{}, fmt.Errorf("reload account: %w", err)
		}
		return fresh, nil
	}

	metrics.CreditsTotal.WithLabelValues("reset").Inc()
	l.log.Info("credits reset",
		zap.Int64("company_id", acc.CompanyID),
		zap.String("tier", acc.Tier.String()),
		zap.Int64("credits", credits),
		zap.Time("next_reset_at", next),
	)

	acc.Balance = credits
	acc.ResetAt = next
	return acc, nil
}

// HasCredits runs the lazy reset and reports whether a send may be authorized.
func (l *Ledger) HasCredits(ctx context.Context, companyID int64) (bool, error) {
	acc, err := l.CheckAndResetIfDue(ctx, companyID)
	if err != nil {
		return false, err
	}
	return acc.Tier.Unlimited() || acc.Balance > 0, nil
}

// Deduct consumes one credit. It never drives a metered balance below zero: when the balance
// is exhausted it returns ErrInsufficientCredits and leaves the account untouched.
// Enterprise accounts are returned unchanged.
func (l *Ledger) Deduct(ctx context.Context, companyID int64) (model.MeteringAccount, error) {
	acc, err := l.store.GetAccount(ctx, companyID)
	if err != nil {
		return model.MeteringAccount{}, fmt.Errorf("load account: %w", err)
	}
	if acc.Tier.Unlimited() {
		return acc, nil
	}

	after, ok, err := l.store.DeductCredit(ctx, companyID)
	if err != nil {
		return model.MeteringAccount{}, fmt.Errorf("deduct credit: %w", err)
	}
	if !ok {
		return acc, ErrInsufficientCredits
	}

	metrics.CreditsTotal.WithLabelValues("deduct").Inc()
	acc.Balance = after.Balance
	acc.ResetAt = after.ResetAt
	return acc, nil
}

// Refund gives back a credit consumed by a send that was rejected synchronously. acc must be
// the account returned by Deduct: when a reset has landed since, the allotment already covers
// the lost credit and nothing is added.
func (l *Ledger) Refund(ctx context.Context, acc model.MeteringAccount) error {
	if acc.Tier.Unlimited() {
		return nil
	}
	ok, err := l.store.RefundCredit(ctx, acc.CompanyID, acc.ResetAt)
	if err != nil {
		return fmt.Errorf("refund credit: %w", err)
	}
	if !ok {
		l.log.Info("credit refund skipped after reset",
			zap.Int64("company_id", acc.CompanyID),
			zap.Time("deducted_in_period", acc.ResetAt),
		)
		return nil
	}
	metrics.CreditsTotal.WithLabelValues("refund").Inc()
	return nil
}

// SweepDue resets every due account. It is the scheduled counterpart of the lazy reset
// and is safe to run alongside it.
func (l *Ledger) SweepDue(ctx context.Context) (int, error) {
	now := l.Now()
	due, err := l.store.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due accounts: %w", err)
	}

	n := 0
	for _, acc := range due {
		if !ResetDue(acc, now) {
			continue
		}
		before := acc.ResetAt
		after, err := l.reset(ctx, acc, now)
		if err != nil {
			return n, err
		}
		if !after.ResetAt.Equal(before) {
			n++
		}
	}
	return n, nil
}
