package model

import "time"

type EmailStatus string

const (
	StatusQueued  EmailStatus = "Queued"
	StatusSuccess EmailStatus = "Success"
	StatusFailed  EmailStatus = "Failed"
)

func (s EmailStatus) String() string {
	return string(s)
}

func (s EmailStatus) Valid() bool {
	return s == StatusQueued || s == StatusSuccess || s == StatusFailed
}

// Terminal reports whether no further transition is allowed.
func (s EmailStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// EmailLog is the DB entity persisted in email_logs table, one row per send attempt.
type EmailLog struct {
	ID        string      `db:"id"         json:"message_id"`
	CompanyID int64       `db:"company_id" json:"company_id"`
	From      string      `db:"from_email" json:"from"`
	To        string      `db:"to_email"   json:"to"`
	Subject   string      `db:"subject"    json:"subject"`
	Body      string      `db:"body"       json:"-"`
	IsHTML    bool        `db:"is_html"    json:"is_html"`
	Status    EmailStatus `db:"status"     json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
