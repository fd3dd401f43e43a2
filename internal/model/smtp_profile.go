package model

import "time"

// SMTPProfile is a company's outbound transport configuration.
type SMTPProfile struct {
	ID        int64     `db:"id"`
	CompanyID int64     `db:"company_id"`
	Name      string    `db:"name"`
	Server    string    `db:"smtp_server"`
	Port      int       `db:"smtp_port"`
	Username  string    `db:"smtp_username"`
	Password  string    `db:"smtp_password"`
	IsDefault bool      `db:"is_default"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
