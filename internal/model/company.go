package model

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierDeveloper  Tier = "developer"
	TierEnterprise Tier = "enterprise"
)

// UnlimitedCredits is the balance sentinel carried by Enterprise accounts.
const UnlimitedCredits int64 = -1

func (t Tier) String() string { return string(t) }

// ParseTier normalizes input; unknown values fall back to free.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "developer":
		return TierDeveloper
	case "enterprise":
		return TierEnterprise
	default:
		return TierFree
	}
}

func (t Tier) Valid() bool {
	return t == TierFree || t == TierDeveloper || t == TierEnterprise
}

func (t Tier) Unlimited() bool { return t == TierEnterprise }

// MeteringAccount is the credit state embedded in a company row.
type MeteringAccount struct {
	CompanyID int64     `db:"id"`
	Tier      Tier      `db:"pricing_tier"`
	Balance   int64     `db:"api_credits"`
	ResetAt   time.Time `db:"credits_reset_at"`
}

type Company struct {
	ID               int64     `db:"id"`
	Name             string    `db:"name"`
	DefaultFromEmail *string   `db:"default_from_email"`
	Tier             Tier      `db:"pricing_tier"`
	Balance          int64     `db:"api_credits"`
	ResetAt          time.Time `db:"credits_reset_at"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (c Company) Account() MeteringAccount {
	return MeteringAccount{CompanyID: c.ID, Tier: c.Tier, Balance: c.Balance, ResetAt: c.ResetAt}
}
