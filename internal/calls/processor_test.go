package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/telephony"
)

func token(t *testing.T, c ClientState) string {
	t.Helper()
	raw, err := EncodeClientState(c)
	require.NoError(t, err)
	return raw
}

func agentFirstState() ClientState {
	return ClientState{
		Flow:        FlowAgentFirst,
		CallID:      "call-1",
		UserID:      "u1",
		ContactID:   "k1",
		AgentNumber: "+16155550199",
		LeadNumber:  "+16155550142",
		FromNumber:  "+16155550100",
	}
}

func leadFirstState() ClientState {
	st := agentFirstState()
	st.Flow = FlowLeadFirst
	st.Record = true
	st.RingbackURL = "https://cdn.example/ringback.mp3"
	return st
}

func newTestProcessor() (*Processor, *MemoryStore, *fakeProvider) {
	store := NewMemoryStore()
	prov := newFakeProvider()
	return NewProcessor(store, prov, 0, nil), store, prov
}

func event(typ telephony.EventType, leg, clientState string) telephony.Event {
	return telephony.Event{Type: typ, LegID: leg, ClientState: clientState, Direction: "outgoing"}
}

func only(t *testing.T, store *MemoryStore) Session {
	t.Helper()
	list, err := store.ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestProcessor_RingingTwiceCreatesOneRow(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	tok := token(t, agentFirstState())

	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", tok)))
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", tok)))

	s := only(t, store)
	assert.Equal(t, "call-1", s.ID)
	assert.Equal(t, StatusRinging, s.Status)
	assert.Equal(t, "k1", s.ContactID)
}

func TestProcessor_UndecodableTokenIsAcknowledged(t *testing.T) {
	p, store, prov := newTestProcessor()
	ctx := context.Background()

	for _, typ := range []telephony.EventType{
		telephony.EventCallRinging, telephony.EventCallAnswered, telephony.EventCallBridged,
		telephony.EventCallHangup, telephony.EventRecordingSaved, "call.speak.ended",
	} {
		ev := event(typ, "leg-a", "%%% garbage")
		ev.RecordingURLs = []string{"https://r/1.mp3"}
		assert.NoError(t, p.Handle(ctx, ev), "type %s", typ)
	}

	list, _ := store.ListByUser(ctx, "u1", 0)
	assert.Empty(t, list)
	assert.Zero(t, prov.dialCount())
}

func TestProcessor_AgentFirstAnswerDialsLead(t *testing.T) {
	p, store, prov := newTestProcessor()
	ctx := context.Background()
	tok := token(t, agentFirstState())

	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", tok)))
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", tok)))

	require.Equal(t, 1, prov.dialCount())
	dial := prov.dials[0]
	assert.Equal(t, "leg-a", dial.LegID)
	assert.Equal(t, "+16155550142", dial.To)
	assert.Equal(t, "+16155550100", dial.From)
	assert.Equal(t, 45, dial.TimeoutSeconds)

	next, err := DecodeClientState(dial.ClientState)
	require.NoError(t, err)
	assert.Equal(t, "leg-a", next.LegAID)
	assert.Equal(t, StatusAnswered, only(t, store).Status)
}

func TestProcessor_LeadFirstAnswerDialsAgentWithRecording(t *testing.T) {
	p, _, prov := newTestProcessor()
	ctx := context.Background()
	tok := token(t, leadFirstState())

	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", tok)))

	require.Equal(t, 1, prov.dialCount())
	assert.Equal(t, "+16155550199", prov.dials[0].To)
	assert.True(t, prov.dials[0].Record)
	assert.Equal(t, "https://cdn.example/ringback.mp3", prov.dials[0].RingbackURL)
}

func TestProcessor_DuplicateAnswerDialsOnce(t *testing.T) {
	p, _, prov := newTestProcessor()
	ctx := context.Background()
	tok := token(t, agentFirstState())
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", tok)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", tok))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, prov.dialCount())
}

func TestProcessor_InboundAnswerDoesNotDial(t *testing.T) {
	p, _, prov := newTestProcessor()
	ev := event(telephony.EventCallAnswered, "leg-a", token(t, agentFirstState()))
	ev.Direction = "incoming"
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Zero(t, prov.dialCount())
}

func TestProcessor_SecondLegEventsLinkAndBridge(t *testing.T) {
	p, store, prov := newTestProcessor()
	ctx := context.Background()
	first := agentFirstState()
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", token(t, first))))

	second := first
	second.LegAID = "leg-a"
	legBToken := token(t, second)
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-b", legBToken)))
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-b", legBToken)))

	s := only(t, store)
	require.NotNil(t, s.LegBID)
	assert.Equal(t, "leg-b", *s.LegBID)
	assert.Equal(t, StatusBridged, s.Status)
	assert.Equal(t, 1, prov.dialCount(), "leg b answer never dials again")
}

func TestProcessor_HangupByLegBOnly(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	first := agentFirstState()
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", token(t, first))))

	second := first
	second.LegAID = "leg-a"
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-b", token(t, second))))

	hangup := event(telephony.EventCallHangup, "leg-b", "")
	hangup.HangupCause = "normal_clearing"
	require.NoError(t, p.Handle(ctx, hangup))

	s := only(t, store)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.EndedAt)
	require.NotNil(t, s.HangupCause)
	assert.Equal(t, "normal_clearing", *s.HangupCause)
}

func TestProcessor_HangupWithSecondLegTokenLinksUnseenLegB(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	first := agentFirstState()
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", token(t, first))))

	second := first
	second.LegAID = "leg-a"
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallHangup, "leg-b", token(t, second))))

	s := only(t, store)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.LegBID)
	assert.Equal(t, "leg-b", *s.LegBID)
}

func TestProcessor_AgentAnswersLeadNeverAnswers(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	tok := token(t, agentFirstState())

	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", tok)))
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", tok)))
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallHangup, "leg-a", tok)))

	assert.Equal(t, StatusCompleted, only(t, store).Status)
}

func TestProcessor_LookupMissIsAcknowledged(t *testing.T) {
	p, _, _ := newTestProcessor()
	ctx := context.Background()

	assert.NoError(t, p.Handle(ctx, event(telephony.EventCallHangup, "ghost", "")))
	rec := event(telephony.EventRecordingSaved, "ghost", "")
	rec.RecordingURLs = []string{"https://r/1.mp3"}
	assert.NoError(t, p.Handle(ctx, rec))
}

func TestProcessor_RecordingKeepsFirstURL(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", token(t, leadFirstState()))))

	rec := event(telephony.EventRecordingSaved, "leg-a", "")
	rec.RecordingURLs = []string{"https://r/1.mp3", "https://r/1.wav"}
	require.NoError(t, p.Handle(ctx, rec))
	rec.RecordingURLs = []string{"https://r/2.mp3"}
	require.NoError(t, p.Handle(ctx, rec))

	s := only(t, store)
	require.NotNil(t, s.RecordingURL)
	assert.Equal(t, "https://r/1.mp3", *s.RecordingURL)
}

func TestProcessor_RejectedSecondLegMarksFailed(t *testing.T) {
	p, store, prov := newTestProcessor()
	prov.dialErr = &telephony.APIError{StatusCode: 422, Detail: "destination invalid"}
	repo := audit.NewMemoryRepo()
	p.WithAudit(audit.NewService(repo))
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, event(telephony.EventCallAnswered, "leg-a", token(t, agentFirstState()))))

	s := only(t, store)
	assert.Equal(t, StatusFailed, s.Status)
	assert.NotNil(t, s.EndedAt)

	evs := repo.ForCall(s.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventTypeSecondLegFailed, evs[0].Type)
	assert.Equal(t, "u1", evs[0].UserID)
	assert.Equal(t, "leg-a", evs[0].LegID)

	// A later hangup does not overwrite the terminal status.
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallHangup, "leg-a", "")))
	assert.Equal(t, StatusFailed, only(t, store).Status)
}

func TestProcessor_AmbiguousSecondLegLeavesAnswered(t *testing.T) {
	p, store, prov := newTestProcessor()
	prov.dialErr = errors.New("i/o timeout")

	require.NoError(t, p.Handle(context.Background(), event(telephony.EventCallAnswered, "leg-a", token(t, agentFirstState()))))
	assert.Equal(t, StatusAnswered, only(t, store).Status)
}

func TestProcessor_HangupUsesEventTimestamp(t *testing.T) {
	p, store, _ := newTestProcessor()
	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, event(telephony.EventCallRinging, "leg-a", token(t, agentFirstState()))))

	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	ev := event(telephony.EventCallHangup, "leg-a", "")
	ev.OccurredAt = at
	require.NoError(t, p.Handle(ctx, ev))

	assert.Equal(t, at, *only(t, store).EndedAt)
}

type failingStore struct{ *MemoryStore }

func (failingStore) EnsureSession(ctx context.Context, s Session) (Session, bool, error) {
	return Session{}, false, errors.New("db down")
}

func TestProcessor_StoreFailureIsReturned(t *testing.T) {
	p := NewProcessor(failingStore{NewMemoryStore()}, newFakeProvider(), 0, nil)
	err := p.Handle(context.Background(), event(telephony.EventCallRinging, "leg-a", token(t, agentFirstState())))
	assert.Error(t, err)
}
