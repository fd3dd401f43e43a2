package ledger

import (
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
)

// MonthStart truncates t to 00:00:00 UTC on the first day of its month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextResetBoundary is the first instant of the calendar month after now (UTC).
// December rolls over to January of the following year.
func NextResetBoundary(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// ResetDue reports whether the account's reset boundary has been reached.
// Enterprise accounts never reset.
func ResetDue(acc model.MeteringAccount, now time.Time) bool {
	if acc.Tier.Unlimited() {
		return false
	}
	return !now.UTC().Before(MonthStart(acc.ResetAt))
}
