package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/feed"
	"voice-orchestrator/internal/metrics"
)

const (
	DefaultSafetyTimeout     = 70 * time.Second
	DefaultOptimisticRinging = 1500 * time.Millisecond
)

var (
	ErrRunning = errors.New("dialer: queue is running")
	ErrNoFeed  = errors.New("dialer: feed unavailable")
)

// Initiator starts the lead-first call for a queue item.
type Initiator interface {
	StartLeadFirst(ctx context.Context, req calls.LeadFirstRequest) (calls.StartResult, error)
}

// Feed delivers session changes. The channel closes when ctx is cancelled.
type Feed interface {
	Subscribe(ctx context.Context, f feed.Filter) (<-chan calls.Change, error)
}

type Config struct {
	UserID      string `validate:"required"`
	MaxAttempts int    `validate:"min=1,max=3"`

	// SafetyTimeout bounds one attempt. An item with no terminal status by then is failed.
	SafetyTimeout     time.Duration
	OptimisticRinging time.Duration

	Record             bool
	RingTimeoutSeconds int
	RingbackURL        string
	SessionID          string
}

type Deps struct {
	Initiator Initiator
	Feed      Feed
	Setup     Setup
	Log       *slog.Logger

	// OnChange, if set, receives a snapshot after every queue mutation. It runs on the
	// scheduler goroutine and must not block.
	OnChange func(Snapshot)
}

type Snapshot struct {
	Items   []Item `json:"items"`
	Index   int    `json:"index"`
	Paused  bool   `json:"paused"`
	Running bool   `json:"running"`
}

// Done reports whether every item has been worked.
func (s Snapshot) Done() bool { return s.Index >= len(s.Items) }

// Scheduler sequences a queue one call at a time.
//
// Only Run dials. Pause stops the next dial from starting; an in-flight call keeps
// going until its outcome or the safety timeout.
type Scheduler struct {
	cfg       Config
	initiator Initiator
	feed      Feed
	setup     Setup
	log       *slog.Logger
	onChange  func(Snapshot)

	mu      sync.Mutex
	items   []Item
	index   int
	paused  bool
	running bool
	wake    chan struct{}
}

func NewScheduler(cfg Config, d Deps) (*Scheduler, error) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SafetyTimeout <= 0 {
		cfg.SafetyTimeout = DefaultSafetyTimeout
	}
	if cfg.OptimisticRinging <= 0 {
		cfg.OptimisticRinging = DefaultOptimisticRinging
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("dialer: invalid config: %w", err)
	}
	if d.Initiator == nil || d.Feed == nil || d.Setup == nil {
		return nil, errors.New("dialer: initiator, feed and setup are required")
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		initiator: d.Initiator,
		feed:      d.Feed,
		setup:     d.Setup,
		log:       log.With("dialer_session", cfg.SessionID),
		onChange:  d.OnChange,
		wake:      make(chan struct{}, 1),
	}, nil
}

// Rebuild replaces the queue and rewinds to the first item.
func (s *Scheduler) Rebuild(leads []Lead, states, stages []string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.items = BuildQueue(leads, states, stages)
	s.index = 0
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.notify()
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Snapshot {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Snapshot{Items: items, Index: s.index, Paused: s.paused, Running: s.running}
}

// Run works the queue from the current index until it is exhausted or ctx ends.
// Setup is resolved once; a setup failure is returned before any dial.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.notify()
	}()

	info, err := s.setup.Resolve(ctx, s.cfg.UserID)
	if err != nil {
		s.log.Error("dialer setup failed, run not started", "err", err)
		return err
	}
	s.log.Info("dialer run started", "user_id", s.cfg.UserID, "from", info.FromNumber)

	for {
		if err := s.waitResumed(ctx); err != nil {
			return err
		}
		item, ok := s.current()
		if !ok {
			s.log.Info("dialer queue exhausted")
			return nil
		}

		outcome, retry := s.attempt(ctx, info, item)
		if err := ctx.Err(); err != nil {
			return err
		}
		s.advance(outcome, retry)
	}
}

func (s *Scheduler) waitResumed(ctx context.Context) error {
	for {
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if !paused {
			return ctx.Err()
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) current() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.items) {
		return Item{}, false
	}
	return s.items[s.index], true
}

// attempt dials the current item once and waits for a terminal status. It returns
// the outcome, or "" when ctx ended first, and whether a failure may be redialled.
// A start that may have reached the provider is never redialled.
func (s *Scheduler) attempt(ctx context.Context, info SetupInfo, item Item) (ItemStatus, bool) {
	log := s.log.With("lead_id", item.LeadID, "attempt", item.Attempts+1)

	// Subscribe before dialing so no change for this call is missed.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes, err := s.feed.Subscribe(subCtx, feed.Filter{UserID: s.cfg.UserID, ContactID: item.LeadID})
	if err != nil {
		// The safety timer still ends the attempt.
		log.Warn("feed subscribe failed, relying on safety timeout", "err", errors.Join(ErrNoFeed, err))
		changes = nil
	}

	s.update(func(it *Item) {
		it.Status = ItemDialing
		it.LegID = ""
		it.LastError = ""
		it.Unconfirmed = false
	})

	res, err := s.initiator.StartLeadFirst(ctx, calls.LeadFirstRequest{
		UserID:             s.cfg.UserID,
		ContactID:          item.LeadID,
		AgentNumber:        info.AgentPhone,
		LeadNumber:         item.Phone,
		FromNumber:         info.FromNumber,
		Record:             s.cfg.Record,
		RingTimeoutSeconds: s.cfg.RingTimeoutSeconds,
		RingbackURL:        s.cfg.RingbackURL,
		SessionID:          s.cfg.SessionID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		if apperr.CodeOf(err) == apperr.CodeNetworkAmbiguous {
			log.Error("lead-first start unconfirmed, call may have been placed; not redialling", "err", err)
			s.update(func(it *Item) {
				it.Status = ItemFailed
				it.LastError = err.Error()
				it.Unconfirmed = true
			})
			return ItemFailed, false
		}
		log.Warn("lead-first start failed", "err", err)
		s.update(func(it *Item) {
			it.Status = ItemFailed
			it.LastError = err.Error()
		})
		return ItemFailed, true
	}
	log = log.With("call_id", res.CallID, "leg_id", res.LegID)
	s.update(func(it *Item) { it.LegID = res.LegID })

	optimistic := time.NewTimer(s.cfg.OptimisticRinging)
	defer optimistic.Stop()
	safety := time.NewTimer(s.cfg.SafetyTimeout)
	defer safety.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false

		case <-optimistic.C:
			s.update(func(it *Item) {
				if it.Status == ItemDialing {
					it.Status = ItemRinging
				}
			})

		case <-safety.C:
			log.Warn("no terminal status within safety window, failing item", "timeout", s.cfg.SafetyTimeout)
			s.update(func(it *Item) {
				it.Status = ItemFailed
				it.LastError = "no terminal status within safety window"
			})
			return ItemFailed, true

		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if c.Session.ID != res.CallID && c.Session.LegAID != res.LegID {
				continue
			}
			status, known := itemStatusOf(c.Session.Status)
			if !known {
				continue
			}
			s.update(func(it *Item) { it.Status = status })
			if status.Terminal() {
				log.Info("call outcome", "status", status)
				return status, true
			}
		}
	}
}

// advance retries a retryable non-completed item while attempts remain, else moves on.
func (s *Scheduler) advance(outcome ItemStatus, retry bool) {
	label := string(outcome)
	if !retry && outcome == ItemFailed {
		label = "unconfirmed"
	}
	metrics.DialerOutcomes.WithLabelValues(label).Inc()

	s.mu.Lock()
	it := &s.items[s.index]
	if retry && outcome != ItemCompleted && it.Attempts+1 < s.cfg.MaxAttempts {
		it.Attempts++
		it.Status = ItemQueued
	} else {
		s.index++
	}
	s.mu.Unlock()
	s.notify()
}

// update mutates the item at the current index.
func (s *Scheduler) update(fn func(*Item)) {
	s.mu.Lock()
	if s.index < len(s.items) {
		fn(&s.items[s.index])
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}
