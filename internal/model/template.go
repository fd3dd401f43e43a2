package model

import "time"

type Template struct {
	ID        int64     `db:"id"`
	CompanyID int64     `db:"company_id"`
	Name      string    `db:"name"`
	Subject   string    `db:"subject"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
