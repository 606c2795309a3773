package calls

import (
	"context"
	"sync"

	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/telephony"
)

type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	createErr  error
	dialErr    error
	nextLeg    string
	creates    []telephony.CreateCallRequest
	dials      []telephony.DialRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{configured: true, nextLeg: "leg-a"}
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (telephony.CreateCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return telephony.CreateCallResult{}, f.createErr
	}
	return telephony.CreateCallResult{LegID: f.nextLeg, SessionID: "prov-session"}, nil
}

func (f *fakeProvider) DialOnLeg(ctx context.Context, req telephony.DialRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, req)
	return f.dialErr
}

func (f *fakeProvider) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

type fakeGuard struct {
	busy     bool
	err      error
	acquired int
	released int
}

func (g *fakeGuard) Acquire(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	if g.err != nil {
		return nil, false, g.err
	}
	if g.busy {
		return nil, false, nil
	}
	g.acquired++
	return func(context.Context) error {
		g.released++
		return nil
	}, true, nil
}

type recordingAuditor struct {
	attempts []audit.CallAttempt
}

func (r *recordingAuditor) LogCallAttempt(ctx context.Context, a audit.CallAttempt) error {
	r.attempts = append(r.attempts, a)
	return nil
}
