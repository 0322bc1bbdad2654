package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/apptwatch/apptwatch/pkg/automation"
)

// Processor runs one navigation pass for a session on a leased page.
// Implemented by Engine; faked in tests.
type Processor interface {
	Process(ctx context.Context, page automation.Page, spec SessionSpec) ([]AppointmentSlot, error)
}

// ResultObserver consumes each session's per-cycle slot list. Notification
// dispatch and persistence live behind this interface, outside the engine.
// Observer errors are logged and never affect the cycle.
type ResultObserver interface {
	OnResult(sessionID string, slots []AppointmentSlot)
}

// SchedulerConfig tunes the cycle cadence.
type SchedulerConfig struct {
	// PeakSchedule and OffPeakSchedule are cron expressions for cycle
	// kicks. OffPeakSchedule may be empty when one cadence is enough.
	PeakSchedule    string
	OffPeakSchedule string
}

// DefaultSchedulerConfig polls every 5 minutes during business hours and
// every 30 minutes otherwise.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PeakSchedule:    "*/5 7-19 * * 1-6",
		OffPeakSchedule: "*/30 0-6,20-23 * * *",
	}
}

// Scheduler owns the session registry and keeps the polling cadence alive.
// Sessions within a cycle are processed strictly sequentially: the single
// browser process is the shared bottleneck, and the cycle mutex makes that
// serialization structural rather than accidental.
type Scheduler struct {
	store     *SessionStore
	leaser    automation.Leaser
	processor Processor
	retry     *RetryPolicy
	cfg       SchedulerConfig
	log       zerolog.Logger

	observers []ResultObserver

	cycleMu sync.Mutex
	cron    *cron.Cron

	ctxMu   sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

// NewScheduler wires the scheduler. The store is created here and owned by
// the scheduler for its whole lifetime.
func NewScheduler(leaser automation.Leaser, processor Processor, retry *RetryPolicy, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.PeakSchedule == "" {
		cfg = DefaultSchedulerConfig()
	}
	return &Scheduler{
		store:     NewSessionStore(),
		leaser:    leaser,
		processor: processor,
		retry:     retry,
		cfg:       cfg,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// AddObserver registers a per-cycle result consumer. Not safe to call
// after Start.
func (s *Scheduler) AddObserver(observer ResultObserver) {
	s.observers = append(s.observers, observer)
}

// Store exposes the session store for read-model consumers.
func (s *Scheduler) Store() *SessionStore {
	return s.store
}

// Start begins the periodic cadence. Cycles triggered by the cron overlap
// guard are skipped while a prior cycle is still running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	kick := func() { s.tryRunCycle(s.runCtx) }
	if _, err := s.cron.AddFunc(s.cfg.PeakSchedule, kick); err != nil {
		return fmt.Errorf("invalid peak schedule %q: %w", s.cfg.PeakSchedule, err)
	}
	if s.cfg.OffPeakSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.OffPeakSchedule, kick); err != nil {
			return fmt.Errorf("invalid off-peak schedule %q: %w", s.cfg.OffPeakSchedule, err)
		}
	}

	s.cron.Start()
	s.started = true
	s.log.Info().
		Str("peak", s.cfg.PeakSchedule).
		Str("off_peak", s.cfg.OffPeakSchedule).
		Msg("scheduler started")
	return nil
}

// Stop halts the cadence and cancels any in-flight cycle.
func (s *Scheduler) Stop() {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.cancel()
	s.started = false
	s.log.Info().Msg("scheduler stopped")
}

// StartMonitoring validates and registers a session, replacing any
// previously registered sessions, and triggers one immediate out-of-cycle
// run to minimize time to first result.
func (s *Scheduler) StartMonitoring(spec SessionSpec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	session := MonitoringSession{
		ID:            uuid.New().String(),
		TargetURL:     spec.TargetURL,
		LocationNames: append([]string(nil), spec.LocationNames...),
		Preferences:   spec.Preferences,
		StartedAt:     time.Now(),
	}
	cleared := s.store.Replace(session)
	s.log.Info().
		Str("session", session.ID).
		Int("cleared", cleared).
		Strs("locations", session.LocationNames).
		Msg("session registered")

	// One immediate out-of-cycle run, serialized behind any in-flight
	// cycle, so the first result arrives without waiting for the cadence.
	go s.RunCycle(s.cycleContext())
	return session.ID, nil
}

func (s *Scheduler) cycleContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if s.started {
		return s.runCtx
	}
	return context.Background()
}

// StopMonitoring removes one session, or all sessions when id is empty,
// and reports how many were removed. In-flight work for a removed session
// finishes naturally; its result write is discarded by the store.
func (s *Scheduler) StopMonitoring(id string) int {
	if id == "" {
		removed := s.store.Clear()
		s.log.Info().Int("removed", removed).Msg("all sessions stopped")
		return removed
	}
	if s.store.Remove(id) {
		s.log.Info().Str("session", id).Msg("session stopped")
		return 1
	}
	return 0
}

// Status returns the read-model rows for all registered sessions.
func (s *Scheduler) Status() []SessionStatus {
	sessions := s.store.List()
	out := make([]SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, SessionStatus{
			SessionID:           session.ID,
			LocationsCount:      len(session.LocationNames),
			StartedAt:           session.StartedAt,
			LastCheckedAt:       session.LastCheckedAt,
			LastSuccessAt:       session.LastSuccessAt,
			SlotsFound:          len(session.LastResult),
			ConsecutiveFailures: session.ConsecutiveFailures,
			LastError:           session.LastError,
			LastAttempts:        session.LastAttempts,
		})
	}
	return out
}

// tryRunCycle runs a cycle unless one is already in flight. Used by the
// cron cadence: a slow cycle must delay the next, never stack onto it.
func (s *Scheduler) tryRunCycle(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.log.Debug().Msg("cycle still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()
	s.runCycleLocked(ctx)
}

// RunCycle runs one full pass over all registered sessions, waiting for
// any in-flight cycle to finish first.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	s.runCycleLocked(ctx)
}

func (s *Scheduler) runCycleLocked(ctx context.Context) {
	ids := s.store.IDs()
	if len(ids) == 0 {
		return
	}
	s.log.Debug().Int("sessions", len(ids)).Msg("cycle started")

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		s.processSession(ctx, id)
	}
}

// processSession runs one session through the retry-wrapped navigation
// pass and records the outcome. A failing session never blocks or crashes
// the processing of other sessions.
func (s *Scheduler) processSession(ctx context.Context, id string) {
	session, ok := s.store.Snapshot(id)
	if !ok {
		return
	}
	spec := SessionSpec{
		TargetURL:     session.TargetURL,
		LocationNames: session.LocationNames,
		Preferences:   session.Preferences,
	}

	var slots []AppointmentSlot
	op := func(ctx context.Context) error {
		lease, err := s.leaser.LeasePage()
		if err != nil {
			return err
		}
		defer lease.Close()

		out, err := s.processor.Process(ctx, lease.Page, spec)
		if err != nil {
			return err
		}
		slots = out
		return nil
	}

	attempts, err := s.retry.Do(ctx, "session "+id, op)
	now := time.Now()
	if err != nil {
		if s.store.RecordFailure(id, err, attempts, now) {
			s.log.Error().Str("session", id).Err(err).Msg("session check failed")
		}
		return
	}

	filtered := ApplyPreferences(slots, session.Preferences)
	if !s.store.RecordSuccess(id, filtered, attempts, now) {
		s.log.Debug().Str("session", id).Msg("session removed mid-flight, result discarded")
		return
	}
	s.log.Info().Str("session", id).Int("slots", len(filtered)).Msg("session check succeeded")

	for _, observer := range s.observers {
		observer.OnResult(id, filtered)
	}
}

func validateSpec(spec SessionSpec) error {
	if spec.TargetURL == "" {
		return Fatal(errors.New("target URL is required"))
	}
	parsed, err := url.Parse(spec.TargetURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Fatal(fmt.Errorf("invalid target URL %q", spec.TargetURL))
	}
	if len(spec.LocationNames) == 0 {
		return Fatal(errors.New("at least one location is required"))
	}
	return nil
}
