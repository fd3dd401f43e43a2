package ledger

import (
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
)

// Pricing holds the monthly allotment of the metered tiers. Enterprise is always unlimited.
type Pricing struct {
	Free      int64
	Developer int64
}

var DefaultPricing = Pricing{Free: 1_000, Developer: 10_000}

// MonthlyCredits returns the allotment restored at every reset boundary.
func (p Pricing) MonthlyCredits(t model.Tier) int64 {
	switch t {
	case model.TierEnterprise:
		return model.UnlimitedCredits
	case model.TierDeveloper:
		return p.Developer
	default:
		return p.Free
	}
}

// NewAccount builds the metering state of a freshly onboarded company.
func (p Pricing) NewAccount(t model.Tier, now time.Time) model.MeteringAccount {
	return model.MeteringAccount{
		Tier:    t,
		Balance: p.MonthlyCredits(t),
		ResetAt: NextResetBoundary(now),
	}
}
