package model

// Envelope is the payload published to Kafka (via the outbox relay).
// It carries the SMTP profile id only; workers re-read credentials from MySQL.
type Envelope struct {
	ID        string `json:"id"` // email log id
	CompanyID int64  `json:"company_id"`
	ProfileID int64  `json:"smtp_profile_id"`
	Mail      Mail   `json:"mail"`
}

// Mail is a fully resolved message ready for submission.
type Mail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	IsHTML  bool   `json:"is_html"`
}
