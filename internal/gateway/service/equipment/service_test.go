package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/records"
	llmclient "hydrodiag/internal/llmClient"
)

const (
	questionReply = `{"stage":"in-progress","next_question":"Is the pump's power light on?"}`
	completeReply = `Here is my conclusion:
{"stage":"complete","diagnosis":{"device":"Circulation pump","cause":"No power to the pump",` +
		`"confidence":80,"alternative_causes":["Tripped breaker"],"urgency":"high"},` +
		`"remediation":{"immediate":"Check the outlet","temporary":"Run a backup pump",` +
		`"permanent":"Replace the power supply","consult_expert":true},"preventive_advice":"Inspect wiring monthly"}`
)

var member = entity.User{ID: "u1", Role: entity.RoleUser}

func newService(t *testing.T, llm llmclient.LLMClient, store records.SessionStore, opts Options) *Service {
	t.Helper()
	if opts.Now == nil {
		clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
		var mu sync.Mutex
		opts.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}
	}
	return New(llm, store, opts)
}

func requireInvariants(t *testing.T, s entity.EquipmentSession) {
	t.Helper()
	assert.Equal(t, s.FinalDiagnosis != nil, s.Status == entity.SessionCompleted,
		"finalDiagnosis=%v status=%s", s.FinalDiagnosis, s.Status)
	assert.Equal(t, 0, len(s.ConversationHistory)%2)
	for i, turn := range s.ConversationHistory {
		want := entity.TurnRoleUser
		if i%2 == 1 {
			want = entity.TurnRoleModel
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
}

func TestContinue_PumpScenario(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(
		llmclient.FakeReply{Text: questionReply},
		llmclient.FakeReply{Text: completeReply},
	)
	svc := newService(t, llm, store, Options{})

	first, err := svc.Continue(ctx, member, NewRequest("", "pump is not running", nil))
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StageInProgress, first.Stage)
	assert.Equal(t, "Is the pump's power light on?", first.NextQuestion)
	assert.Nil(t, first.Diagnosis)

	stored, err := store.GetEquipmentSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionOngoing, stored.Status)
	assert.Equal(t, entity.UserID("u1"), stored.UserID)
	require.Len(t, stored.ConversationHistory, 2)
	assert.Equal(t, "pump is not running", stored.ConversationHistory[0].Text())
	assert.Equal(t, questionReply, stored.ConversationHistory[1].Text())
	requireInvariants(t, stored)

	second, err := svc.Continue(ctx, member, NewRequest(first.SessionID, "yes, the power light is off", nil))
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, diagnosis.StageComplete, second.Stage)
	require.NotNil(t, second.Diagnosis)
	require.NotNil(t, second.Remediation)
	assert.True(t, second.Remediation.ConsultExpert)
	assert.Equal(t, "Inspect wiring monthly", second.PreventiveAdvice)

	stored, err = store.GetEquipmentSession(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, stored.ConversationHistory, 4)
	assert.Equal(t, entity.SessionCompleted, stored.Status)
	require.NotNil(t, stored.FinalDiagnosis)
	assert.Equal(t, entity.UrgencyHigh, stored.FinalDiagnosis.Urgency)
	assert.Equal(t, completeReply, stored.ConversationHistory[3].Text())
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))
	requireInvariants(t, stored)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, diagnosis.EquipmentSystemPrompt, reqs[1].System)
	assert.True(t, reqs[1].JSON)
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, llmclient.RoleUser, reqs[1].Messages[0].Role)
	assert.Equal(t, llmclient.RoleModel, reqs[1].Messages[1].Role)
	assert.Equal(t, "yes, the power light is off", reqs[1].Messages[2].Text)
}

func TestContinue_HistoryGrowsMonotonically(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	svc := newService(t, llmclient.NewFakeClient(), store, Options{})

	res, err := svc.Continue(ctx, member, StartSession{Message: "EC reading jumps around"})
	require.NoError(t, err)

	prev := res.Session.ConversationHistory
	for i := 0; i < 5 && res.Stage != diagnosis.StageComplete; i++ {
		res, err = svc.Continue(ctx, member, ContinueSession{SessionID: res.SessionID, Message: fmt.Sprintf("answer %d", i)})
		require.NoError(t, err)
		cur := res.Session.ConversationHistory
		require.Greater(t, len(cur), len(prev))
		assert.Equal(t, prev, cur[:len(prev)], "history was rewritten")
		requireInvariants(t, res.Session)
		prev = cur
	}
	assert.Equal(t, diagnosis.StageComplete, res.Stage)
}

func TestContinue_NewSessionsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, llmclient.NewFakeClient(), records.NewMemoryStore(), Options{})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
		require.NoError(t, err)
		assert.False(t, seen[res.SessionID], "duplicate id %s", res.SessionID)
		seen[res.SessionID] = true
	}
}

func TestContinue_MalformedReplyMutatesNothing(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(
		llmclient.FakeReply{Text: questionReply},
		llmclient.FakeReply{Text: "Sorry, I cannot help with that."},
		llmclient.FakeReply{Text: "no json here either"},
	)
	svc := newService(t, llm, store, Options{NewID: func() string { return "fixed" }})

	first, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.NoError(t, err)
	before, err := store.GetEquipmentSession(ctx, first.SessionID)
	require.NoError(t, err)

	_, err = svc.Continue(ctx, member, ContinueSession{SessionID: first.SessionID, Message: "it hums"})
	require.ErrorIs(t, err, diagnosis.ErrMalformedResponse)

	after, err := store.GetEquipmentSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// A malformed first reply must not create a session either.
	fresh := newService(t, llm, records.NewMemoryStore(), Options{NewID: func() string { return "other" }})
	_, err = fresh.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.ErrorIs(t, err, diagnosis.ErrMalformedResponse)
	_, err = fresh.store.GetEquipmentSession(ctx, "other")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestContinue_SchemaViolationIsMalformed(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(llmclient.FakeReply{Text: `{"stage":"complete","diagnosis":null}`})
	svc := newService(t, llm, store, Options{NewID: func() string { return "s" }})

	_, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.ErrorIs(t, err, diagnosis.ErrMalformedResponse)
	_, err = store.GetEquipmentSession(ctx, "s")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestContinue_CompletedSessionRejectsTurns(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(llmclient.FakeReply{Text: completeReply})
	svc := newService(t, llm, store, Options{})

	res, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running and the breaker tripped"})
	require.NoError(t, err)
	require.Equal(t, diagnosis.StageComplete, res.Stage)

	_, err = svc.Continue(ctx, member, ContinueSession{SessionID: res.SessionID, Message: "anything else?"})
	require.ErrorIs(t, err, diagnosis.ErrSessionCompleted)
	assert.Len(t, llm.Requests(), 1)

	stored, err := store.GetEquipmentSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, stored.ConversationHistory, 2)
	requireInvariants(t, stored)
}

func TestContinue_Validation(t *testing.T) {
	ctx := context.Background()
	llm := llmclient.NewFakeClient()
	svc := newService(t, llm, records.NewMemoryStore(), Options{})

	_, err := svc.Continue(ctx, member, StartSession{Message: "   "})
	assert.ErrorIs(t, err, diagnosis.ErrValidation)
	_, err = svc.Continue(ctx, member, nil)
	assert.ErrorIs(t, err, diagnosis.ErrValidation)
	_, err = svc.Continue(ctx, member, ContinueSession{Message: "hi"})
	assert.ErrorIs(t, err, diagnosis.ErrValidation)
	assert.Empty(t, llm.Requests())
}

func TestContinue_UnknownSession(t *testing.T) {
	llm := llmclient.NewFakeClient()
	svc := newService(t, llm, records.NewMemoryStore(), Options{})

	_, err := svc.Continue(context.Background(), member, ContinueSession{SessionID: "nope", Message: "hi"})
	assert.ErrorIs(t, err, diagnosis.ErrSessionNotFound)
	assert.Empty(t, llm.Requests())
}

func TestContinue_BackendFailure(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(llmclient.FakeReply{Err: errors.New("connection reset")})
	svc := newService(t, llm, store, Options{NewID: func() string { return "s" }})

	_, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.ErrorIs(t, err, diagnosis.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
	_, err = store.GetEquipmentSession(ctx, "s")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestContinue_ImageSentButNotStored(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(llmclient.FakeReply{Text: questionReply})
	svc := newService(t, llm, store, Options{})

	img := &llmclient.Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}
	res, err := svc.Continue(ctx, member, StartSession{Message: "see the photo", Image: img})
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	require.Len(t, reqs[0].Messages[0].Images, 1)
	assert.Equal(t, "image/jpeg", reqs[0].Messages[0].Images[0].MIMEType)

	stored, err := store.GetEquipmentSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "see the photo", stored.ConversationHistory[0].Text())
}

func TestContinue_QuestionCapAddsReminder(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	llm := llmclient.NewFakeClient(
		llmclient.FakeReply{Text: questionReply},
		llmclient.FakeReply{Text: questionReply},
		llmclient.FakeReply{Text: completeReply},
	)
	svc := newService(t, llm, store, Options{MaxQuestions: 2})

	res, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.NoError(t, err)
	res, err = svc.Continue(ctx, member, ContinueSession{SessionID: res.SessionID, Message: "no"})
	require.NoError(t, err)
	res, err = svc.Continue(ctx, member, ContinueSession{SessionID: res.SessionID, Message: "still no"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StageComplete, res.Stage)

	reqs := llm.Requests()
	require.Len(t, reqs, 3)
	assert.NotContains(t, last(reqs[1].Messages).Text, diagnosis.QuestionCapReminder)
	assert.True(t, strings.HasSuffix(last(reqs[2].Messages).Text, diagnosis.QuestionCapReminder))

	stored, err := store.GetEquipmentSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "still no", stored.ConversationHistory[4].Text())
}

func last(msgs []llmclient.Message) llmclient.Message {
	return msgs[len(msgs)-1]
}

type blockingLLM struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLLM) Name() string { return "blocking" }
func (b *blockingLLM) Close() error { return nil }

func (b *blockingLLM) Generate(ctx context.Context, _ llmclient.Request) (string, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return questionReply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestContinue_ConcurrentTurnIsBusy(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	seed := entity.EquipmentSession{
		ID:                  "s1",
		UserID:              "u1",
		ConversationHistory: []entity.Turn{},
		Status:              entity.SessionOngoing,
	}
	require.NoError(t, store.CreateEquipmentSession(ctx, seed))

	llm := &blockingLLM{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newService(t, llm, store, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Continue(ctx, member, ContinueSession{SessionID: "s1", Message: "first"})
		done <- err
	}()
	<-llm.entered

	_, err := svc.Continue(ctx, member, ContinueSession{SessionID: "s1", Message: "second"})
	assert.ErrorIs(t, err, diagnosis.ErrSessionBusy)

	close(llm.release)
	require.NoError(t, <-done)

	stored, err := store.GetEquipmentSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, stored.ConversationHistory, 2)
}

func TestContinue_StoreUnavailableDegrades(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, llmclient.NewFakeClient(), records.Unavailable{}, Options{})

	res, err := svc.Continue(ctx, member, StartSession{Message: "pump is not running"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Len(t, res.Session.ConversationHistory, 2)

	res, err = svc.Continue(ctx, member, ContinueSession{SessionID: res.SessionID, Message: "no"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StageInProgress, res.Stage)

	list, err := svc.ListForUser(ctx, member)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	got, err := svc.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	svc := newService(t, llmclient.NewFakeClient(), store, Options{})

	a, err := svc.Continue(ctx, member, StartSession{Message: "pump"})
	require.NoError(t, err)
	b, err := svc.Continue(ctx, member, StartSession{Message: "sensor"})
	require.NoError(t, err)
	_, err = svc.Continue(ctx, member, ContinueSession{SessionID: a.SessionID, Message: "more"})
	require.NoError(t, err)
	_, err = svc.Continue(ctx, entity.AnonymousUser(), StartSession{Message: "anon"})
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, member)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.SessionID, list[0].ID)
	assert.Equal(t, b.SessionID, list[1].ID)

	anon, err := svc.ListForUser(ctx, entity.AnonymousUser())
	require.NoError(t, err)
	assert.Empty(t, anon)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	svc := newService(t, llmclient.NewFakeClient(), store, Options{})

	res, err := svc.Continue(ctx, entity.AnonymousUser(), StartSession{Message: "pump"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.AnonymousUserID, got.UserID)

	missing, err := svc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
