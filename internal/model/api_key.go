package model

import "time"

type APIKey struct {
	ID        int64      `db:"id"       json:"id"`
	Name      string     `db:"name"     json:"name"`
	Key       string     `db:"api_key"  json:"-"`
	CompanyID int64      `db:"company_id" json:"company_id"`
	IsActive  bool       `db:"is_active"  json:"is_active"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Expired reports whether the key carries an expiry that has passed.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
