package authorizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var march = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	companies *mocks.Companies
	keys      *mocks.APIKeys
	profiles  *mocks.SMTPProfiles
	ledger    *ledger.Ledger
	auth      *Authorizer
}

func newFixture(t *testing.T, now time.Time, company model.Company) *fixture {
	t.Helper()

	f := &fixture{
		companies: mocks.NewCompanies(company),
		keys: mocks.NewAPIKeys(
			model.APIKey{ID: 1, Key: "live-key", CompanyID: company.ID, IsActive: true},
			model.APIKey{ID: 2, Key: "dead-key", CompanyID: company.ID, IsActive: false},
		),
		profiles: &mocks.SMTPProfiles{Profiles: []model.SMTPProfile{
			{ID: 10, CompanyID: company.ID, Server: "smtp.example.com", Port: 587, IsDefault: true},
		}},
	}
	f.ledger = ledger.New(f.companies, ledger.DefaultPricing, nil)
	f.ledger.Now = func() time.Time { return now }
	f.auth = New(f.keys, f.profiles, f.ledger, nil)
	f.auth.Now = func() time.Time { return now }
	return f
}

func (f *fixture) balance(t *testing.T, id int64) int64 {
	t.Helper()
	acc, err := f.companies.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestAuthorizeMonthlyScenario(t *testing.T) {
	t.Parallel()

	company := model.Company{ID: 1, Tier: model.TierFree, Balance: 1, ResetAt: march}
	now := time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, now, company)
	ctx := context.Background()

	sc, err := f.auth.Authorize(ctx, "live-key")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sc.CompanyID)
	assert.Equal(t, int64(10), sc.Profile.ID)
	assert.Equal(t, int64(0), f.balance(t, 1))

	_, err = f.auth.Authorize(ctx, "live-key")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, int64(0), f.balance(t, 1))

	later := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	f.ledger.Now = func() time.Time { return later }
	f.auth.Now = func() time.Time { return later }

	sc, err = f.auth.Authorize(ctx, "live-key")
	require.NoError(t, err)
	assert.Equal(t, int64(999), sc.Account.Balance)

	acc, err := f.companies.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(999), acc.Balance)
	assert.True(t, acc.ResetAt.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAuthorizeCheckOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		key     string
		company model.Company
		noSMTP  bool
		wantErr error
	}{
		{
			name:    "unknown key with exhausted credits",
			key:     "nope",
			company: model.Company{ID: 1, Tier: model.TierFree, Balance: 0, ResetAt: march},
			wantErr: ErrInvalidKey,
		},
		{
			name:    "empty key",
			key:     "  ",
			company: model.Company{ID: 1, Tier: model.TierFree, Balance: 5, ResetAt: march},
			wantErr: ErrInvalidKey,
		},
		{
			name:    "inactive key with exhausted credits",
			key:     "dead-key",
			company: model.Company{ID: 1, Tier: model.TierFree, Balance: 0, ResetAt: march},
			wantErr: ErrInactiveKey,
		},
		{
			name:    "credits checked before transport",
			key:     "live-key",
			company: model.Company{ID: 1, Tier: model.TierFree, Balance: 0, ResetAt: march},
			noSMTP:  true,
			wantErr: ErrInsufficientCredits,
		},
		{
			name:    "no default transport",
			key:     "live-key",
			company: model.Company{ID: 1, Tier: model.TierFree, Balance: 5, ResetAt: march},
			noSMTP:  true,
			wantErr: ErrNoTransportConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, now, tt.company)
			if tt.noSMTP {
				f.profiles.Profiles = nil
			}

			_, err := f.auth.Authorize(context.Background(), tt.key)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.company.Balance, f.balance(t, 1), "rejections never consume credit")
		})
	}
}

func TestAuthorizeExpiredKeyIsInactive(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, now, model.Company{ID: 1, Tier: model.TierFree, Balance: 5, ResetAt: march})
	expired := now.Add(-time.Hour)
	f.keys.Keys["old-key"] = model.APIKey{ID: 3, Key: "old-key", CompanyID: 1, IsActive: true, ExpiresAt: &expired}

	_, err := f.auth.Authorize(context.Background(), "old-key")
	assert.ErrorIs(t, err, ErrInactiveKey)
}

func TestAuthorizeEnterpriseUnlimited(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, now, model.Company{ID: 1, Tier: model.TierEnterprise, Balance: model.UnlimitedCredits, ResetAt: march})

	for i := 0; i < 5; i++ {
		_, err := f.auth.Authorize(context.Background(), "live-key")
		require.NoError(t, err)
	}
	assert.Equal(t, model.UnlimitedCredits, f.balance(t, 1))
}

func TestAuthorizeStorageErrorIsNotTyped(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, now, model.Company{ID: 1, Tier: model.TierFree, Balance: 5, ResetAt: march})
	dbErr := errors.New("connection reset")
	f.keys.Err = dbErr

	_, err := f.auth.Authorize(context.Background(), "live-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrInvalidKey)
}
