// Package orchestrator fires engine deadlines. Each watched league gets a
// one-shot clockwork timer re-armed whenever the engine's next deadline
// changes; expired leagues are handed to a small worker pool.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/engine"
)

const workChannelBufferSize = 64

type Scheduler struct {
	manager    *engine.Manager
	clock      clockwork.Clock
	numWorkers int

	workCh chan uuid.UUID

	activeTimersMu sync.Mutex
	activeTimers   map[uuid.UUID]clockwork.Timer

	ctxMu sync.Mutex
	ctx   context.Context
}

func NewScheduler(manager *engine.Manager, clock clockwork.Clock, numWorkers int) *Scheduler {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Scheduler{
		manager:      manager,
		clock:        clock,
		numWorkers:   numWorkers,
		workCh:       make(chan uuid.UUID, workChannelBufferSize),
		activeTimers: make(map[uuid.UUID]clockwork.Timer),
	}
}

// Watch registers an engine so its deadlines drive timers. Safe to call more
// than once per engine.
func (s *Scheduler) Watch(e *engine.Engine) {
	leagueID := e.LeagueID()
	// The engine fires the listener while holding its own lock, and
	// reschedule reads NextDeadline which takes that lock, so re-arm from a
	// fresh goroutine.
	e.SetDeadlineListener(func() {
		go s.reschedule(e)
	})
	s.reschedule(e)
	log.Debug().Str("league_id", leagueID.String()).Msg("watching league deadlines")
}

// reschedule re-arms the league's one-shot timer against the engine's
// current deadline, cancelling any previous timer.
func (s *Scheduler) reschedule(e *engine.Engine) {
	leagueID := e.LeagueID()

	deadline, ok := e.NextDeadline()
	if !ok {
		s.cancelTimer(leagueID)
		return
	}

	duration := deadline.Sub(s.clock.Now())
	if duration <= 0 {
		s.cancelTimer(leagueID)
		s.enqueue(leagueID)
		return
	}

	timer := s.clock.NewTimer(duration)
	s.replaceTimer(leagueID, timer)

	ctx := s.runContext()
	go func(id uuid.UUID, t clockwork.Timer) {
		select {
		case <-t.Chan():
			s.removeTimer(id)
			s.enqueue(id)
		case <-ctx.Done():
			stopAndDrainTimer(t)
			s.removeTimer(id)
		}
	}(leagueID, timer)

	log.Debug().
		Str("league_id", leagueID.String()).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("scheduled one-shot timer")
}

func (s *Scheduler) enqueue(leagueID uuid.UUID) {
	select {
	case s.workCh <- leagueID:
	default:
		log.Warn().Str("league_id", leagueID.String()).Msg("timer fired but work channel full")
	}
}

// runContext returns the context Run was started with. Engines can be
// watched before Run; until then timers wait on a background context.
func (s *Scheduler) runContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Run starts the worker pool and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()
	log.Info().Int("workers", s.numWorkers).Msg("deadline scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i)
	}

	<-ctx.Done()
	log.Info().Msg("deadline scheduler shutting down")

	s.activeTimersMu.Lock()
	for leagueID, timer := range s.activeTimers {
		stopAndDrainTimer(timer)
		log.Debug().Str("league_id", leagueID.String()).Msg("cancelled timer on shutdown")
	}
	s.activeTimers = make(map[uuid.UUID]clockwork.Timer)
	s.activeTimersMu.Unlock()

	wg.Wait()
	return nil
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case leagueID := <-s.workCh:
			e, ok := s.manager.Peek(leagueID)
			if !ok {
				log.Warn().Str("league_id", leagueID.String()).Msg("timer fired for unloaded league")
				continue
			}
			if err := e.HandleDeadline(ctx); err != nil {
				log.Error().
					Err(err).
					Str("league_id", leagueID.String()).
					Int("worker_id", workerID).
					Msg("deadline handling failed")
			}
		}
	}
}

// replaceTimer atomically replaces a league's timer, cancelling any existing
// one so a stale timer cannot fire after a reschedule.
func (s *Scheduler) replaceTimer(leagueID uuid.UUID, newTimer clockwork.Timer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if existing, ok := s.activeTimers[leagueID]; ok {
		stopAndDrainTimer(existing)
	}
	s.activeTimers[leagueID] = newTimer
}

func (s *Scheduler) cancelTimer(leagueID uuid.UUID) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if timer, ok := s.activeTimers[leagueID]; ok {
		stopAndDrainTimer(timer)
		delete(s.activeTimers, leagueID)
	}
}

func (s *Scheduler) removeTimer(leagueID uuid.UUID) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	delete(s.activeTimers, leagueID)
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot leak.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
