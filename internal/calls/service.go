package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/callerid"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/numbers"
	"voice-orchestrator/internal/phone"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/pkg/logger"
)

// StartGuard caps concurrent start requests per key (utils.ConcurrencyGuard in production).
// release is only set when ok.
type StartGuard interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error)
}

// Auditor records call starts. Failures never block a call.
type Auditor interface {
	LogCallAttempt(ctx context.Context, a audit.CallAttempt) error
}

const defaultLeadRingTimeout = 30

type AgentFirstRequest struct {
	UserID      string `json:"-" validate:"required"`
	ContactID   string `json:"contact_id" validate:"required"`
	AgentNumber string `json:"agent_number" validate:"required"`
	LeadNumber  string `json:"lead_number" validate:"required"`

	// Request metadata for the audit trail.
	Role string `json:"-"`
	IP   string `json:"-"`
}

type LeadFirstRequest struct {
	UserID      string `json:"-" validate:"required"`
	ContactID   string `json:"contact_id" validate:"required"`
	AgentNumber string `json:"agent_number" validate:"required"`
	LeadNumber  string `json:"lead_number" validate:"required"`
	FromNumber  string `json:"from_number" validate:"required"`

	Record             bool   `json:"record"`
	RingTimeoutSeconds int    `json:"ring_timeout_seconds" validate:"omitempty,min=5,max=120"`
	RingbackURL        string `json:"ringback_url" validate:"omitempty,url"`
	SessionID          string `json:"session_id"`

	Role string `json:"-"`
	IP   string `json:"-"`
}

type StartResult struct {
	CallID            string `json:"call_id"`
	LegID             string `json:"leg_id"`
	ProviderSessionID string `json:"provider_session_id,omitempty"`
}

// Deps wires a Service. Store, Provider and Numbers are required.
type Deps struct {
	Store    Store
	Provider telephony.Provider
	Numbers  numbers.Repository
	Guard    StartGuard
	Audit    Auditor
	Log      *slog.Logger
}

// Service places the first leg of a call and records the session.
//
// CreateCall is never retried here: a repeated create is a second real phone call.
type Service struct {
	store    Store
	provider telephony.Provider
	numbers  numbers.Repository
	guard    StartGuard
	audit    Auditor
	log      *slog.Logger
	validate *validator.Validate

	now   func() time.Time
	newID func() string
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    d.Store,
		provider: d.Provider,
		numbers:  d.Numbers,
		guard:    d.Guard,
		audit:    d.Audit,
		log:      log,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// StartAgentFirst rings the agent. The lead is dialed by the webhook once the agent answers.
func (s *Service) StartAgentFirst(ctx context.Context, req AgentFirstRequest) (res StartResult, err error) {
	defer func() { s.record(ctx, FlowAgentFirst, req.UserID, req.Role, req.IP, req.ContactID, res, err) }()

	if err := s.check(req); err != nil {
		return StartResult{}, err
	}
	agent, err := normalizeField("agent_number", req.AgentNumber)
	if err != nil {
		return StartResult{}, err
	}
	lead, err := normalizeField("lead_number", req.LeadNumber)
	if err != nil {
		return StartResult{}, err
	}
	if !s.provider.Configured() {
		return StartResult{}, apperr.NotConfigured("telephony provider credentials")
	}

	owned, err := s.numbers.ListOwned(ctx, req.UserID)
	if err != nil {
		return StartResult{}, apperr.Internal("owned numbers lookup failed", err)
	}
	from, err := callerid.Select(owned, lead)
	if err != nil {
		return StartResult{}, err
	}

	token := ClientState{
		Flow:        FlowAgentFirst,
		UserID:      req.UserID,
		ContactID:   req.ContactID,
		AgentNumber: agent,
		LeadNumber:  lead,
		FromNumber:  from,
	}
	return s.start(ctx, token, agent, 0)
}

// StartLeadFirst rings the lead with a caller id the caller already chose. The agent is
// dialed by the webhook once the lead answers.
func (s *Service) StartLeadFirst(ctx context.Context, req LeadFirstRequest) (res StartResult, err error) {
	defer func() { s.record(ctx, FlowLeadFirst, req.UserID, req.Role, req.IP, req.ContactID, res, err) }()

	if err := s.check(req); err != nil {
		return StartResult{}, err
	}
	agent, err := normalizeField("agent_number", req.AgentNumber)
	if err != nil {
		return StartResult{}, err
	}
	lead, err := normalizeField("lead_number", req.LeadNumber)
	if err != nil {
		return StartResult{}, err
	}
	from, err := normalizeField("from_number", req.FromNumber)
	if err != nil {
		return StartResult{}, err
	}
	if !s.provider.Configured() {
		return StartResult{}, apperr.NotConfigured("telephony provider credentials")
	}

	timeout := req.RingTimeoutSeconds
	if timeout == 0 {
		timeout = defaultLeadRingTimeout
	}
	token := ClientState{
		Flow:            FlowLeadFirst,
		UserID:          req.UserID,
		ContactID:       req.ContactID,
		AgentNumber:     agent,
		LeadNumber:      lead,
		FromNumber:      from,
		Record:          req.Record,
		RingTimeoutSecs: timeout,
		RingbackURL:     req.RingbackURL,
		SessionID:       req.SessionID,
	}
	return s.start(ctx, token, lead, timeout)
}

// ListCallLogs returns the user's sessions, newest first.
func (s *Service) ListCallLogs(ctx context.Context, userID string, limit int) ([]Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.MissingRequired("user_id")
	}
	out, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("call log lookup failed", err)
	}
	return out, nil
}

func (s *Service) start(ctx context.Context, token ClientState, to string, timeout int) (StartResult, error) {
	log := logger.FromOr(ctx, s.log)
	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, token.UserID)
		if err != nil {
			// Redis outage must not stop agents from calling.
			log.Warn("start guard unavailable", "user_id", token.UserID, "err", err)
		} else if !ok {
			return StartResult{}, apperr.Busy("another call is being started")
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("start guard release failed", "user_id", token.UserID, "err", err)
				}
			}()
		}
	}

	token.CallID = s.newID()
	encoded, err := EncodeClientState(token)
	if err != nil {
		return StartResult{}, apperr.Internal("client state encoding failed", err)
	}

	created, err := s.provider.CreateCall(ctx, telephony.CreateCallRequest{
		To:             to,
		From:           token.FromNumber,
		ClientState:    encoded,
		TimeoutSeconds: timeout,
	})
	if err != nil {
		return StartResult{}, providerError(err)
	}

	session := Session{
		ID:          token.CallID,
		Flow:        token.Flow,
		LegAID:      created.LegID,
		UserID:      token.UserID,
		ContactID:   token.ContactID,
		AgentNumber: token.AgentNumber,
		LeadNumber:  token.LeadNumber,
		FromNumber:  token.FromNumber,
		Status:      StatusRinging,
		StartedAt:   s.now(),
	}
	if created.SessionID != "" {
		session.ProviderSessionID = &created.SessionID
	}
	if _, _, err := s.store.EnsureSession(ctx, session); err != nil {
		// The phone is already ringing; the ringing webhook rebuilds the row from the token.
		log.Error("call session insert failed after create", "call_id", session.ID, "leg_a_id", created.LegID, "err", err)
	}

	log.Info("call started",
		"flow", token.Flow, "call_id", session.ID, "leg_a_id", created.LegID,
		"user_id", token.UserID, "contact_id", token.ContactID, "from", token.FromNumber)

	return StartResult{CallID: session.ID, LegID: created.LegID, ProviderSessionID: created.SessionID}, nil
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apperr.Validation("request failed validation").WithDetails(fields)
}

func (s *Service) record(ctx context.Context, flow Flow, userID, role, ip, contactID string, res StartResult, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	metrics.CallsStarted.WithLabelValues(string(flow), result).Inc()

	if s.audit == nil || userID == "" {
		return
	}
	a := audit.CallAttempt{
		UserID:    userID,
		Role:      role,
		IP:        ip,
		Flow:      string(flow),
		CallID:    res.CallID,
		LegID:     res.LegID,
		ContactID: contactID,
	}
	if err != nil {
		a.ErrCode = result
	}
	if aerr := s.audit.LogCallAttempt(context.WithoutCancel(ctx), a); aerr != nil {
		s.log.Warn("audit append failed", "flow", flow, "user_id", userID, "err", aerr)
	}
}

func normalizeField(field, raw string) (string, error) {
	n := phone.Normalize(raw)
	if !phone.IsE164(n) {
		return "", apperr.InvalidPhone(field, raw)
	}
	return n, nil
}

// providerError maps a provider failure onto the taxonomy. A non-2xx answer is a clean
// rejection; everything else left the outcome unknown.
func providerError(err error) error {
	var apiErr *telephony.APIError
	switch {
	case errors.As(err, &apiErr):
		return apperr.ProviderRejected(apiErr.StatusCode, err)
	case errors.Is(err, telephony.ErrNotConfigured):
		return apperr.NotConfigured("telephony provider credentials")
	default:
		return apperr.NetworkAmbiguous(fmt.Errorf("create call: %w", err))
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}
