package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository/mocks"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentifier struct{}

func (stubIdentifier) Identify(_ context.Context, key string) (*model.APIKey, error) {
	switch key {
	case "live":
		return &model.APIKey{ID: 1, CompanyID: 1, IsActive: true}, nil
	case "dead":
		return nil, authorizer.ErrInactiveKey
	case "boom":
		return nil, errors.New("db down")
	default:
		return nil, authorizer.ErrInvalidKey
	}
}

type stubSender struct {
	err  error
	last dispatch.Message
}

func (s *stubSender) Send(_ context.Context, _ string, msg dispatch.Message) (dispatch.Result, error) {
	s.last = msg
	if s.err != nil {
		return dispatch.Result{}, s.err
	}
	return dispatch.Result{MessageID: "msg_01", Status: "queued"}, nil
}

type stubAccounts struct{ acc model.MeteringAccount }

func (s stubAccounts) CheckAndResetIfDue(context.Context, int64) (model.MeteringAccount, error) {
	return s.acc, nil
}

func newTestServer(sender *stubSender, logs *mocks.EmailLogs, acc model.MeteringAccount, rps int) *Server {
	return newServerWithAccounts(sender, logs, stubAccounts{acc: acc}, rps)
}

func newServerWithAccounts(sender *stubSender, logs *mocks.EmailLogs, accounts Accounts, rps int) *Server {
	return NewServer(Options{RateRPS: rps}, Deps{
		Sender:     sender,
		Identifier: stubIdentifier{},
		Accounts:   accounts,
		Counter:    logs,
		Logs:       logs,
	})
}

func do(t *testing.T, s *Server, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const validBody = `{"from":"Acme <noreply@acme.io>","to":" user@example.com ","subject":"hi","text":"hello"}`

func TestSendEmail(t *testing.T) {
	sender := &stubSender{}
	s := newTestServer(sender, mocks.NewEmailLogs(), model.MeteringAccount{}, 0)

	rec := do(t, s, http.MethodPost, "/v1/email/send", "live", validBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "msg_01", res.MessageID)
	assert.Equal(t, "queued", res.Status)
	assert.Equal(t, "user@example.com", sender.last.To)
	assert.Equal(t, "Acme <noreply@acme.io>", sender.last.From)
}

func TestSendEmailErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		key  string
		body string
		err  error
		code int
		tag  string
	}{
		{"missing key", "", validBody, nil, http.StatusUnauthorized, "invalid_key"},
		{"inactive key", "dead", validBody, nil, http.StatusForbidden, "inactive_key"},
		{"lookup failure", "boom", validBody, nil, http.StatusInternalServerError, "auth error"},
		{"bad json", "live", `{"to":`, nil, http.StatusBadRequest, "bad_request"},
		{"bad recipient", "live", `{"from":"a@b.io","to":"nope","text":"x"}`, nil, http.StatusBadRequest, "bad_request"},
		{"credits", "live", validBody, authorizer.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{"no transport", "live", validBody, authorizer.ErrNoTransportConfigured, http.StatusUnprocessableEntity, "no_transport_configured"},
		{"template", "live", validBody, dispatch.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
		{"no content", "live", validBody, dispatch.ErrNoContent, http.StatusBadRequest, "no_content"},
		{"queue full", "live", validBody, dispatch.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
		{"internal", "live", validBody, errors.New("insert email log: broken pipe"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubSender{err: tt.err}, mocks.NewEmailLogs(), model.MeteringAccount{}, 0)
			rec := do(t, s, http.MethodPost, "/v1/email/send", tt.key, tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.tag, body["error"])
			assert.NotContains(t, rec.Body.String(), "broken pipe")
		})
	}
}

func TestDashboardStats(t *testing.T) {
	logs := mocks.NewEmailLogs()
	ctx := context.Background()
	require.NoError(t, logs.InsertQueued(ctx, nil, model.EmailLog{ID: "msg_a", CompanyID: 1}))
	require.NoError(t, logs.InsertQueued(ctx, nil, model.EmailLog{ID: "msg_b", CompanyID: 1}))
	require.NoError(t, logs.InsertQueued(ctx, nil, model.EmailLog{ID: "msg_c", CompanyID: 2}))
	_, err := logs.MarkTerminal(ctx, "msg_b", model.StatusSuccess)
	require.NoError(t, err)

	acc := model.MeteringAccount{
		CompanyID: 1, Tier: model.TierFree, Balance: 998,
		ResetAt: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	s := newTestServer(&stubSender{}, logs, acc, 0)

	rec := do(t, s, http.MethodGet, "/v1/dashboard/stats", "live", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tier    string           `json:"tier"`
		Credits any              `json:"api_credits"`
		ResetAt string           `json:"credits_reset_at"`
		Emails  map[string]int64 `json:"emails"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "free", body.Tier)
	assert.EqualValues(t, 998, body.Credits)
	assert.Equal(t, "2025-04-01", body.ResetAt)
	assert.Equal(t, int64(2), body.Emails["total"])
	assert.Equal(t, int64(1), body.Emails["queued"])
	assert.Equal(t, int64(1), body.Emails["success"])
}

func TestDashboardStatsResetsDueAccount(t *testing.T) {
	companies := mocks.NewCompanies(model.Company{
		ID: 1, Name: "Acme", Tier: model.TierFree, Balance: 3,
		ResetAt: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	l := ledger.New(companies, ledger.DefaultPricing, nil)
	l.Now = func() time.Time { return time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC) }

	s := newServerWithAccounts(&stubSender{}, mocks.NewEmailLogs(), l, 0)

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/v1/dashboard/stats", "live", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Credits int64  `json:"api_credits"`
			ResetAt string `json:"credits_reset_at"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(1_000), body.Credits)
		assert.Equal(t, "2025-04-01", body.ResetAt)
	}

	stored, err := companies.GetAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), stored.Balance)
	assert.True(t, stored.ResetAt.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)))
}

func TestListLogsIsCompanyScoped(t *testing.T) {
	logs := mocks.NewEmailLogs()
	ctx := context.Background()
	require.NoError(t, logs.InsertQueued(ctx, nil, model.EmailLog{ID: "msg_a", CompanyID: 1, To: "x@example.com"}))
	require.NoError(t, logs.InsertQueued(ctx, nil, model.EmailLog{ID: "msg_b", CompanyID: 2, To: "x@example.com"}))
	s := newTestServer(&stubSender{}, logs, model.MeteringAccount{}, 0)

	rec := do(t, s, http.MethodGet, "/v1/logs?to=x@example.com&status=Queued", "live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "msg_a")
	assert.NotContains(t, rec.Body.String(), "msg_b")

	rec = do(t, s, http.MethodGet, "/v1/logs?status=Sent", "live", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocalRateLimit(t *testing.T) {
	s := newTestServer(&stubSender{}, mocks.NewEmailLogs(), model.MeteringAccount{}, 1)

	first := do(t, s, http.MethodGet, "/v1/logs", "live", "")
	second := do(t, s, http.MethodGet, "/v1/logs", "live", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&stubSender{}, mocks.NewEmailLogs(), model.MeteringAccount{}, 0)
	rec := do(t, s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
