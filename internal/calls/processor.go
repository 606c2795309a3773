package calls

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/pkg/logger"
)

// DefaultBridgeDialTimeout bounds how long the second party rings.
const DefaultBridgeDialTimeout = 45 * time.Second

// Processor drives CallSession state from provider events.
//
// Every branch is an idempotent store write or a no-op, so concurrent, duplicated and
// reordered deliveries are safe without a lock. Handle returns an error only when the
// store failed; the caller should answer non-2xx so the provider retries.
type Processor struct {
	store    Store
	provider telephony.Provider
	audit    FailureAuditor
	log      *slog.Logger

	bridgeTimeout time.Duration
	now           func() time.Time
}

func NewProcessor(store Store, provider telephony.Provider, bridgeTimeout time.Duration, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if bridgeTimeout <= 0 {
		bridgeTimeout = DefaultBridgeDialTimeout
	}
	return &Processor{
		store:         store,
		provider:      provider,
		log:           log,
		bridgeTimeout: bridgeTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// FailureAuditor records calls that answered but could not be connected.
type FailureAuditor interface {
	LogSecondLegFailure(ctx context.Context, f audit.SecondLegFailure) error
}

// WithAudit makes p record rejected second-leg dials. Audit failures are only logged.
func (p *Processor) WithAudit(a FailureAuditor) *Processor {
	p.audit = a
	return p
}

func (p *Processor) Handle(ctx context.Context, ev telephony.Event) error {
	log := logger.FromOr(ctx, p.log).With("event_type", ev.Type, "event_id", ev.ID, "leg_id", ev.LegID)
	if ev.LegID == "" {
		log.Warn("event without leg id dropped")
		p.count(ev, "dropped")
		return nil
	}

	var err error
	switch ev.Type {
	case telephony.EventCallInitiated, telephony.EventCallRinging:
		err = p.onRinging(ctx, log, ev)
	case telephony.EventCallAnswered:
		err = p.onAnswered(ctx, log, ev)
	case telephony.EventCallBridged:
		err = p.onBridged(ctx, log, ev)
	case telephony.EventCallHangup:
		err = p.onHangup(ctx, log, ev)
	case telephony.EventRecordingSaved:
		err = p.onRecording(ctx, log, ev)
	default:
		log.Debug("ignoring event type")
		p.count(ev, "ignored")
		return nil
	}

	if err != nil {
		log.Error("event handling failed", "err", err)
		p.count(ev, "error")
		return err
	}
	p.count(ev, "ok")
	return nil
}

func (p *Processor) onRinging(ctx context.Context, log *slog.Logger, ev telephony.Event) error {
	st, ok := p.decode(log, ev)
	if !ok {
		return nil
	}
	if st.IsSecondLeg(ev.LegID) {
		return p.miss(log, st.LegAID, p.linkLegB(ctx, st.LegAID, ev.LegID, ""))
	}
	_, err := p.ensure(ctx, ev, st)
	return err
}

func (p *Processor) onAnswered(ctx context.Context, log *slog.Logger, ev telephony.Event) error {
	st, ok := p.decode(log, ev)
	if !ok {
		return nil
	}
	if st.IsSecondLeg(ev.LegID) {
		// The dialed party picked up; the provider connects the two legs.
		return p.miss(log, st.LegAID, p.linkLegB(ctx, st.LegAID, ev.LegID, StatusBridged))
	}

	// The answer can overtake the ringing event.
	if _, err := p.ensure(ctx, ev, st); err != nil {
		return err
	}
	session, changed, err := p.store.UpdateStatus(ctx, ev.LegID, StatusAnswered)
	if err != nil {
		return err
	}
	if !changed {
		log.Info("duplicate or late answer, no dial", "call_id", session.ID, "status", session.Status)
		return nil
	}
	if !ev.IsOutbound() {
		return nil
	}
	return p.dialSecondLeg(ctx, log, ev, st, session)
}

func (p *Processor) dialSecondLeg(ctx context.Context, log *slog.Logger, ev telephony.Event, st ClientState, session Session) error {
	to := st.LeadNumber
	if st.Flow == FlowLeadFirst {
		to = st.AgentNumber
	}

	next := st
	next.CallID = session.ID
	next.LegAID = ev.LegID
	token, err := EncodeClientState(next)
	if err != nil {
		log.Error("second leg token encoding failed", "err", err)
		return nil
	}

	err = p.provider.DialOnLeg(ctx, telephony.DialRequest{
		LegID:          ev.LegID,
		To:             to,
		From:           st.FromNumber,
		TimeoutSeconds: int(p.bridgeTimeout / time.Second),
		ClientState:    token,
		Record:         st.Record,
		RingbackURL:    st.RingbackURL,
	})
	if err == nil {
		metrics.SecondLegDials.WithLabelValues(string(st.Flow), "ok").Inc()
		log.Info("second leg dialed", "call_id", session.ID, "flow", st.Flow, "to", to)
		return nil
	}

	var apiErr *telephony.APIError
	if !errors.As(err, &apiErr) {
		// Unknown whether the provider acted; hangup events settle the session.
		metrics.SecondLegDials.WithLabelValues(string(st.Flow), "ambiguous").Inc()
		log.Warn("second leg dial outcome unknown", "call_id", session.ID, "err", err)
		return nil
	}

	metrics.SecondLegDials.WithLabelValues(string(st.Flow), "rejected").Inc()
	log.Warn("second leg dial rejected", "call_id", session.ID, "status", apiErr.StatusCode, "detail", apiErr.Detail)
	ended := p.now()
	_, _, uerr := p.store.UpdateByEitherLeg(ctx, ev.LegID, "", Patch{Status: StatusFailed, EndedAt: &ended})
	if p.audit != nil {
		aerr := p.audit.LogSecondLegFailure(context.WithoutCancel(ctx), audit.SecondLegFailure{
			UserID:         session.UserID,
			Flow:           string(st.Flow),
			CallID:         session.ID,
			LegID:          ev.LegID,
			ContactID:      session.ContactID,
			ProviderStatus: apiErr.StatusCode,
			Detail:         apiErr.Detail,
		})
		if aerr != nil {
			log.Warn("audit append failed", "call_id", session.ID, "err", aerr)
		}
	}
	return uerr
}

func (p *Processor) onBridged(ctx context.Context, log *slog.Logger, ev telephony.Event) error {
	legA, legB := ev.LegID, ""
	if st, err := DecodeClientState(ev.ClientState); err == nil && st.IsSecondLeg(ev.LegID) {
		legA, legB = st.LegAID, ev.LegID
	}
	_, _, err := p.store.UpdateByEitherLeg(ctx, legA, legB, Patch{Status: StatusBridged, LegBID: legB})
	return p.miss(log, legA, err)
}

func (p *Processor) onHangup(ctx context.Context, log *slog.Logger, ev telephony.Event) error {
	legA, legB := ev.LegID, ""
	if st, err := DecodeClientState(ev.ClientState); err == nil && st.IsSecondLeg(ev.LegID) {
		legA, legB = st.LegAID, ev.LegID
	}
	ended := p.occurredAt(ev)
	session, changed, err := p.store.UpdateByEitherLeg(ctx, legA, legB, Patch{
		Status:      StatusCompleted,
		LegBID:      legB,
		EndedAt:     &ended,
		HangupCause: ev.HangupCause,
	})
	if err == nil && changed {
		log.Info("call ended", "call_id", session.ID, "status", session.Status, "hangup_cause", ev.HangupCause)
	}
	return p.miss(log, legA, err)
}

func (p *Processor) onRecording(ctx context.Context, log *slog.Logger, ev telephony.Event) error {
	if len(ev.RecordingURLs) == 0 {
		log.Debug("recording event without urls")
		return nil
	}
	legA, legB := ev.LegID, ""
	if st, err := DecodeClientState(ev.ClientState); err == nil && st.IsSecondLeg(ev.LegID) {
		legA, legB = st.LegAID, ev.LegID
	}
	_, _, err := p.store.UpdateByEitherLeg(ctx, legA, legB, Patch{RecordingURL: ev.RecordingURLs[0]})
	return p.miss(log, legA, err)
}

func (p *Processor) linkLegB(ctx context.Context, legAID, legBID string, status Status) error {
	_, _, err := p.store.UpdateByEitherLeg(ctx, legAID, legBID, Patch{Status: status, LegBID: legBID})
	return err
}

func (p *Processor) ensure(ctx context.Context, ev telephony.Event, st ClientState) (Session, error) {
	s := Session{
		ID:          st.CallID,
		Flow:        st.Flow,
		LegAID:      ev.LegID,
		UserID:      st.UserID,
		ContactID:   st.ContactID,
		AgentNumber: st.AgentNumber,
		LeadNumber:  st.LeadNumber,
		FromNumber:  st.FromNumber,
		Status:      StatusRinging,
		StartedAt:   p.occurredAt(ev),
	}
	if s.ID == "" {
		s.ID = ev.LegID
	}
	if ev.SessionID != "" {
		sid := ev.SessionID
		s.ProviderSessionID = &sid
	}
	out, _, err := p.store.EnsureSession(ctx, s)
	return out, err
}

// decode logs and swallows token failures: the event is acknowledged with no action.
func (p *Processor) decode(log *slog.Logger, ev telephony.Event) (ClientState, bool) {
	st, err := DecodeClientState(ev.ClientState)
	if err != nil {
		log.Warn("client state undecodable, no action", "err", apperr.EventDecode(err))
		return ClientState{}, false
	}
	return st, true
}

// miss turns a lookup miss into a logged no-op.
func (p *Processor) miss(log *slog.Logger, legID string, err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		log.Warn("event dropped", "err", apperr.LookupMiss(legID))
		return nil
	}
	return err
}

func (p *Processor) occurredAt(ev telephony.Event) time.Time {
	if ev.OccurredAt.IsZero() {
		return p.now()
	}
	return ev.OccurredAt.UTC()
}

func (p *Processor) count(ev telephony.Event, result string) {
	typ := string(ev.Type)
	switch ev.Type {
	case telephony.EventCallInitiated, telephony.EventCallRinging, telephony.EventCallAnswered,
		telephony.EventCallBridged, telephony.EventCallHangup, telephony.EventRecordingSaved:
	default:
		typ = "other"
	}
	metrics.WebhookEvents.WithLabelValues(typ, result).Inc()
}
