package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository/mocks"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingQueue checks that the log row exists at the moment a task becomes visible.
type recordingQueue struct {
	logs    *mocks.EmailLogs
	err     error
	tasks   []Task
	visible []bool
}

func (q *recordingQueue) Enqueue(_ context.Context, t Task) error {
	_, ok := q.logs.Get(t.LogID)
	q.visible = append(q.visible, ok)
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func sendContext() authorizer.SendContext {
	return authorizer.SendContext{
		CompanyID: 1,
		APIKeyID:  7,
		Profile:   model.SMTPProfile{ID: 10, CompanyID: 1, Server: "smtp.example.com", Port: 587, IsDefault: true},
	}
}

func newDispatcher(q *recordingQueue, logs *mocks.EmailLogs) *Dispatcher {
	tpls := &mocks.Templates{Templates: []model.Template{
		{ID: 5, CompanyID: 1, Name: "welcome", Subject: "Welcome!", Content: "<h1>Hello</h1>"},
		{ID: 6, CompanyID: 2, Name: "other tenant", Subject: "x", Content: "x"},
	}}
	return New(tpls, logs, q, nil)
}

func TestDispatchQueuesLogBeforeTask(t *testing.T) {
	logs := mocks.NewEmailLogs()
	q := &recordingQueue{logs: logs}
	d := newDispatcher(q, logs)

	res, err := d.Dispatch(context.Background(), sendContext(), Message{
		From: "a@example.com", To: "b@example.com", Subject: "hi", HTML: "<p>x</p>", Text: "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "queued", res.Status)
	assert.True(t, strings.HasPrefix(res.MessageID, "msg_"))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, []bool{true}, q.visible)

	l, ok := logs.Get(res.MessageID)
	require.True(t, ok)
	assert.Equal(t, model.StatusQueued, l.Status)
	assert.Equal(t, "<p>x</p>", l.Body)
	assert.True(t, l.IsHTML)
	assert.Equal(t, int64(10), q.tasks[0].Profile.ID)
}

func TestDispatchContentResolution(t *testing.T) {
	tplID := int64(5)
	foreignTpl := int64(6)
	missingTpl := int64(404)

	tests := []struct {
		name     string
		msg      Message
		wantErr  error
		wantSubj string
		wantBody string
		wantHTML bool
	}{
		{
			name:     "template overrides subject and body",
			msg:      Message{To: "b@example.com", Subject: "ignored", Text: "ignored", TemplateID: &tplID},
			wantSubj: "Welcome!", wantBody: "<h1>Hello</h1>", wantHTML: true,
		},
		{
			name:     "text only",
			msg:      Message{To: "b@example.com", Subject: "s", Text: "plain"},
			wantSubj: "s", wantBody: "plain", wantHTML: false,
		},
		{name: "no content", msg: Message{To: "b@example.com", Subject: "s"}, wantErr: ErrNoContent},
		{name: "missing template", msg: Message{To: "b@example.com", TemplateID: &missingTpl}, wantErr: ErrTemplateNotFound},
		{name: "other tenant's template", msg: Message{To: "b@example.com", TemplateID: &foreignTpl}, wantErr: ErrTemplateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := mocks.NewEmailLogs()
			q := &recordingQueue{logs: logs}
			res, err := newDispatcher(q, logs).Dispatch(context.Background(), sendContext(), tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, logs.Len())
				assert.Empty(t, q.tasks)
				return
			}
			require.NoError(t, err)
			l, _ := logs.Get(res.MessageID)
			assert.Equal(t, tt.wantSubj, l.Subject)
			assert.Equal(t, tt.wantBody, l.Body)
			assert.Equal(t, tt.wantHTML, l.IsHTML)
		})
	}
}

func TestDispatchLogInsertFailure(t *testing.T) {
	logs := mocks.NewEmailLogs()
	logs.InsertErr = errors.New("disk full")
	q := &recordingQueue{logs: logs}

	_, err := newDispatcher(q, logs).Dispatch(context.Background(), sendContext(), Message{To: "b@example.com", Text: "x"})
	assert.Error(t, err)
	assert.Empty(t, q.tasks)
}

func TestDispatchQueueFullMarksFailed(t *testing.T) {
	logs := mocks.NewEmailLogs()
	q := &recordingQueue{logs: logs, err: ErrQueueFull}

	_, err := newDispatcher(q, logs).Dispatch(context.Background(), sendContext(), Message{To: "b@example.com", Text: "x"})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 1, logs.Len())

	for id := range logs.Transitions {
		assert.Equal(t, []model.EmailStatus{model.StatusQueued, model.StatusFailed}, logs.History(id))
	}
}

func TestOutboxQueueCarriesProfileIDOnly(t *testing.T) {
	outbox := &mocks.Outbox{}
	q := NewOutboxQueue(outbox)
	task := Task{
		LogID:     "msg_1",
		CompanyID: 1,
		Profile:   model.SMTPProfile{ID: 10, Password: "hunter2"},
		Mail:      model.Mail{From: "a@example.com", To: "b@example.com", Body: "x"},
	}
	require.NoError(t, q.Enqueue(context.Background(), task))

	require.Equal(t, 1, outbox.Len())
	ev := outbox.Events[0]
	assert.Equal(t, TopicEmailSend, ev.Topic)
	assert.Equal(t, "msg_1", ev.AggregateID)
	assert.NotContains(t, string(ev.Payload), "hunter2")

	var env model.Envelope
	require.NoError(t, json.Unmarshal(ev.Payload, &env))
	assert.Equal(t, int64(10), env.ProfileID)
	assert.Equal(t, "b@example.com", env.Mail.To)
}
