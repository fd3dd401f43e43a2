// Package mocks holds in-memory repository implementations for tests.
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Companies mirrors the conditional statements of the MySQL companies repository.
type Companies struct {
	mu      sync.Mutex
	rows    map[int64]model.Company
	nextID  int64
	Deducts int
	Refunds int
	GetErr  error
}

func NewCompanies(cs ...model.Company) *Companies {
	m := &Companies{rows: make(map[int64]model.Company)}
	for _, c := range cs {
		m.rows[c.ID] = c
		if c.ID > m.nextID {
			m.nextID = c.ID
		}
	}
	return m
}

var _ repository.CompaniesRepository = (*Companies)(nil)

func (m *Companies) Create(_ context.Context, c *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.rows[c.ID] = *c
	return nil
}

func (m *Companies) GetByID(_ context.Context, id int64) (*model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *Companies) GetAccount(ctx context.Context, id int64) (model.MeteringAccount, error) {
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return model.MeteringAccount{}, err
	}
	return c.Account(), nil
}

func (m *Companies) ResetCredits(_ context.Context, id, credits int64, prev, next time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || !c.ResetAt.Equal(prev) || c.Tier == model.TierEnterprise {
		return false, nil
	}
	c.Balance = credits
	c.ResetAt = next
	m.rows[id] = c
	return true, nil
}

func (m *Companies) DeductCredit(_ context.Context, id int64) (model.MeteringAccount, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.Tier == model.TierEnterprise || c.Balance <= 0 {
		return c.Account(), false, nil
	}
	c.Balance--
	m.rows[id] = c
	m.Deducts++
	return c.Account(), true, nil
}

func (m *Companies) RefundCredit(_ context.Context, id int64, resetAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.Tier == model.TierEnterprise || !c.ResetAt.Equal(resetAt) {
		return false, nil
	}
	c.Balance++
	m.rows[id] = c
	m.Refunds++
	return true, nil
}

func (m *Companies) ListDue(_ context.Context, now time.Time) ([]model.MeteringAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MeteringAccount
	for _, c := range m.rows {
		if c.Tier != model.TierEnterprise && !c.ResetAt.After(now) {
			out = append(out, c.Account())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

type APIKeys struct {
	mu    sync.Mutex
	Keys  map[string]model.APIKey
	Err   error
	Calls int
}

func NewAPIKeys(ks ...model.APIKey) *APIKeys {
	m := &APIKeys{Keys: make(map[string]model.APIKey)}
	for _, k := range ks {
		m.Keys[k.Key] = k
	}
	return m
}

func (m *APIKeys) GetByKey(_ context.Context, key string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	k, ok := m.Keys[key]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

type SMTPProfiles struct {
	mu       sync.Mutex
	Profiles []model.SMTPProfile
	Err      error
}

func (m *SMTPProfiles) GetDefault(_ context.Context, companyID int64) (*model.SMTPProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, p := range m.Profiles {
		if p.CompanyID == companyID && p.IsDefault {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *SMTPProfiles) GetByID(_ context.Context, companyID, id int64) (*model.SMTPProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, p := range m.Profiles {
		if p.CompanyID == companyID && p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

type Templates struct {
	mu        sync.Mutex
	Templates []model.Template
	Err       error
}

func (m *Templates) GetByID(_ context.Context, companyID, id int64) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, t := range m.Templates {
		if t.ID == id && t.CompanyID == companyID {
			return &t, nil
		}
	}
	return nil, nil
}

// EmailLogs records every write so tests can assert ordering and terminal transitions.
type EmailLogs struct {
	mu          sync.Mutex
	rows        map[string]model.EmailLog
	order       []string
	Transitions map[string][]model.EmailStatus
	InsertErr   error
	MarkErr     error
}

func NewEmailLogs() *EmailLogs {
	return &EmailLogs{
		rows:        make(map[string]model.EmailLog),
		Transitions: make(map[string][]model.EmailStatus),
	}
}

var _ repository.EmailLogsRepository = (*EmailLogs)(nil)

func (m *EmailLogs) InsertQueued(_ context.Context, _ *sqlx.Tx, l model.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	l.Status = model.StatusQueued
	l.CreatedAt = time.Now()
	m.rows[l.ID] = l
	m.order = append(m.order, l.ID)
	m.Transitions[l.ID] = []model.EmailStatus{model.StatusQueued}
	return nil
}

func (m *EmailLogs) MarkTerminal(_ context.Context, id string, status model.EmailStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return false, m.MarkErr
	}
	return m.mark(id, status), nil
}

func (m *EmailLogs) mark(id string, status model.EmailStatus) bool {
	l, ok := m.rows[id]
	if !ok || l.Status != model.StatusQueued {
		return false
	}
	l.Status = status
	m.rows[id] = l
	m.Transitions[id] = append(m.Transitions[id], status)
	return true
}

func (m *EmailLogs) BatchMarkTerminal(_ context.Context, _ *sqlx.Tx, ids []string, status model.EmailStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	for _, id := range ids {
		m.mark(id, status)
	}
	return nil
}

func (m *EmailLogs) CountByStatus(_ context.Context, companyID int64) (map[model.EmailStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.EmailStatus]int64)
	for _, l := range m.rows {
		if l.CompanyID == companyID {
			out[l.Status]++
		}
	}
	return out, nil
}

func (m *EmailLogs) ListByCompany(_ context.Context, companyID int64, f repository.LogFilter) ([]model.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailLog
	for i := len(m.order) - 1; i >= 0; i-- {
		l := m.rows[m.order[i]]
		if l.CompanyID != companyID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.To != "" && l.To != f.To {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *EmailLogs) Get(id string) (model.EmailLog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	return l, ok
}

func (m *EmailLogs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *EmailLogs) History(id string) []model.EmailStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EmailStatus(nil), m.Transitions[id]...)
}

type Outbox struct {
	mu        sync.Mutex
	Events    []model.OutboxEvent
	InsertErr error
	nextID    int64
}

var _ repository.OutboxRepository = (*Outbox)(nil)

func (m *Outbox) Insert(_ context.Context, _ *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.nextID++
	m.Events = append(m.Events, model.OutboxEvent{
		ID: m.nextID, Aggregate: aggregate, AggregateID: aggregateID, Topic: topic, Payload: payload,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	return nil
}

func (m *Outbox) FetchBatch(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.Events) {
		limit = len(m.Events)
	}
	return append([]model.OutboxEvent(nil), m.Events[:limit]...), nil
}

func (m *Outbox) Delete(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.Events[:0]
	for _, e := range m.Events {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	m.Events = kept
	return nil
}

func (m *Outbox) IncrementAttempts(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Events {
		for _, id := range ids {
			if m.Events[i].ID == id {
				m.Events[i].Attempts++
			}
		}
	}
	return nil
}

func (m *Outbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}
