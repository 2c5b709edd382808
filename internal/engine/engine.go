package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

// System is the actor ID used by internal triggers (deadline expiry). It
// passes admin checks and is logged distinctly from human actions.
var System = uuid.Nil

// Config holds per-session timing settings.
type Config struct {
	OfferTime       time.Duration
	AuctionTime     time.Duration
	HeartbeatWindow time.Duration
}

// DefaultConfig returns the timing defaults used when a league has no
// explicit settings.
func DefaultConfig() Config {
	return Config{
		OfferTime:       60 * time.Second,
		AuctionTime:     30 * time.Second,
		HeartbeatWindow: 15 * time.Second,
	}
}

// Engine runs one league's auction session as a serial execution domain:
// every command takes the engine lock, so concurrent request handlers are
// linearized and the bid arbiter's read-validate-write path never races.
type Engine struct {
	mu sync.Mutex

	leagueID uuid.UUID
	mode     models.AuctionMode
	cfg      Config
	clock    clockwork.Clock
	store    Store
	sink     EventSink

	phase        models.SessionPhase
	resumePhase  models.SessionPhase
	board        *models.Board
	participants map[uuid.UUID]*models.Participant

	barrier    *models.ReadyBarrier
	barrierSeq int
	nomination *models.Nomination
	auction    *models.Auction
	ack        *models.Acknowledgment

	deadline        *time.Time
	frozenRemaining time.Duration

	// bidTokens maps client de-duplication tokens to committed bid IDs for
	// the open auction, so a retried SubmitBid is replay-safe.
	bidTokens map[string]uuid.UUID

	onDeadlineChange func()
}

// New creates an engine for a seeded board. The board and participant list
// are supplied externally; the engine owns them from here on.
func New(leagueID uuid.UUID, mode models.AuctionMode, cfg Config, board *models.Board, participants []models.Participant, store Store, sink EventSink, clock clockwork.Clock) *Engine {
	e := &Engine{
		leagueID:     leagueID,
		mode:         mode,
		cfg:          cfg,
		clock:        clock,
		store:        store,
		sink:         sink,
		phase:        models.PhaseWaiting,
		board:        board,
		participants: make(map[uuid.UUID]*models.Participant, len(participants)),
		bidTokens:    make(map[string]uuid.UUID),
	}
	for i := range participants {
		p := participants[i]
		e.participants[p.ID] = &p
	}
	return e
}

// LeagueID returns the league this engine serves.
func (e *Engine) LeagueID() uuid.UUID {
	return e.leagueID
}

// SetDeadlineListener registers a callback invoked whenever the engine's
// next deadline changes. Used by the scheduler to re-arm its timer.
func (e *Engine) SetDeadlineListener(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDeadlineChange = fn
}

// NextDeadline returns the active timer deadline, if any.
func (e *Engine) NextDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deadline == nil {
		return time.Time{}, false
	}
	return *e.deadline, true
}

// Start begins the session: the board's first item enters preview.
func (e *Engine) Start(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhaseWaiting {
		return errf(KindInvalidTransition, "cannot start session in phase %s", e.phase)
	}
	if e.board.Exhausted() {
		return errf(KindInvalidTransition, "board is empty")
	}

	e.phase = models.PhasePreview
	if err := e.persistSession(ctx); err != nil {
		e.phase = models.PhaseWaiting
		return err
	}

	e.emit(ctx, events.TypeSessionStarted, events.SessionStartedPayload{
		LeagueID:  e.leagueID.String(),
		Mode:      string(e.mode),
		ItemCount: len(e.board.Items),
		StartedAt: e.clock.Now(),
	})
	return nil
}

// BeginReadyCheck opens the start barrier for the current item.
func (e *Engine) BeginReadyCheck(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhasePreview {
		return errf(KindInvalidTransition, "cannot open ready check in phase %s", e.phase)
	}

	prev := e.phase
	e.phase = models.PhaseReadyCheck
	e.newBarrier(models.BarrierStart)
	if err := e.persistSession(ctx); err != nil {
		e.phase = prev
		e.barrier = nil
		return err
	}
	return nil
}

// MarkReady records a participant as ready for the named barrier. Idempotent.
// When the barrier is satisfied the gated transition fires immediately.
func (e *Engine) MarkReady(ctx context.Context, actorID uuid.UUID, name models.BarrierName) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if e.barrier == nil || e.barrier.Name != name {
		return errf(KindInvalidTransition, "no %s barrier is open", name)
	}
	if e.barrier.Ready[actorID] {
		// Replay. A satisfied barrier whose release failed gets another
		// attempt; otherwise this is a no-op.
		if e.barrier.Satisfied() {
			return e.releaseBarrier(ctx)
		}
		return nil
	}

	satisfied := e.barrier.MarkReady(actorID)
	e.emit(ctx, events.TypeReadyChanged, events.ReadyChangedPayload{
		LeagueID:      e.leagueID.String(),
		Barrier:       string(e.barrier.Name),
		BarrierSeq:    e.barrier.Seq,
		ParticipantID: actorID.String(),
		ReadyCount:    e.barrier.ReadyCount(),
		Expected:      e.barrier.Expected,
	})
	if !satisfied {
		return nil
	}
	return e.releaseBarrier(ctx)
}

// ForceAllReady is the admin override that satisfies the open barrier
// immediately. Logged as an administrative action.
func (e *Engine) ForceAllReady(ctx context.Context, actorID uuid.UUID, name models.BarrierName) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.barrier == nil || e.barrier.Name != name {
		return errf(KindInvalidTransition, "no %s barrier is open", name)
	}

	e.barrier.Forced = true
	log.Warn().
		Str("league_id", e.leagueID.String()).
		Str("admin_id", actorID.String()).
		Str("barrier", string(name)).
		Bool("admin_action", true).
		Msg("ready barrier force-satisfied")

	e.emit(ctx, events.TypeReadyChanged, events.ReadyChangedPayload{
		LeagueID:   e.leagueID.String(),
		Barrier:    string(e.barrier.Name),
		BarrierSeq: e.barrier.Seq,
		ReadyCount: e.barrier.ReadyCount(),
		Expected:   e.barrier.Expected,
		Forced:     true,
	})
	return e.releaseBarrier(ctx)
}

// Pause freezes the active timer and records the phase to resume into.
func (e *Engine) Pause(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	switch e.phase {
	case models.PhaseReadyCheck, models.PhaseNomination, models.PhaseAuctionReadyCheck, models.PhaseAuction:
	default:
		return errf(KindInvalidTransition, "cannot pause in phase %s", e.phase)
	}

	prevPhase := e.phase
	prevRemaining := e.frozenRemaining
	prevDeadline := e.deadline
	prevBarrier := e.barrier

	e.resumePhase = e.phase
	e.frozenRemaining = 0
	if e.deadline != nil {
		if rem := e.deadline.Sub(e.clock.Now()); rem > 0 {
			e.frozenRemaining = rem
		}
	}
	e.phase = models.PhasePaused
	// A barrier paused mid-fill is discarded, never partially reused; the
	// frozen phase gets a fresh one when it is restored.
	e.barrier = nil
	e.clearDeadline()

	if err := e.persistSession(ctx); err != nil {
		e.phase = prevPhase
		e.resumePhase = ""
		e.frozenRemaining = prevRemaining
		e.barrier = prevBarrier
		e.setDeadline(prevDeadline)
		return err
	}

	log.Info().
		Str("league_id", e.leagueID.String()).
		Str("admin_id", actorID.String()).
		Str("frozen_phase", string(e.resumePhase)).
		Dur("remaining", e.frozenRemaining).
		Bool("admin_action", true).
		Msg("session paused")

	e.emit(ctx, events.TypeSessionPaused, events.SessionPausedPayload{
		LeagueID:     e.leagueID.String(),
		PausedBy:     actorID.String(),
		FrozenPhase:  string(e.resumePhase),
		RemainingSec: e.frozenRemaining.Seconds(),
		PausedAt:     e.clock.Now(),
	})
	return nil
}

// Resume opens the resume barrier. The frozen phase and timer are restored
// only once every participant is ready again.
func (e *Engine) Resume(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhasePaused {
		return errf(KindInvalidTransition, "cannot resume in phase %s", e.phase)
	}
	if e.barrier != nil && e.barrier.Name == models.BarrierResumePause {
		return nil // resume already pending
	}

	e.newBarrier(models.BarrierResumePause)
	return e.persistSession(ctx)
}

// Heartbeat records advisory connectivity telemetry. Never gates anything.
func (e *Engine) Heartbeat(actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.participants[actorID]
	if !ok {
		return errf(KindNotFound, "unknown participant %s", actorID)
	}
	now := e.clock.Now()
	p.LastSeenAt = &now
	return nil
}

// HandleDeadline fires the timer-expiry transition if the deadline has
// elapsed. Safe to call concurrently and repeatedly: expiry is handled once
// and later calls observe no pending deadline.
func (e *Engine) HandleDeadline(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deadline == nil || e.clock.Now().Before(*e.deadline) {
		return nil
	}

	switch e.phase {
	case models.PhaseNomination:
		return e.expireOfferWindow(ctx)
	case models.PhaseAuction:
		err := e.closeAuction(ctx, System)
		if KindOf(err) == KindAlreadyClosed {
			return nil
		}
		return err
	default:
		// Stale deadline left behind by a racing transition.
		e.clearDeadline()
		return nil
	}
}

// releaseBarrier tears down the satisfied barrier and fires the transition
// it gated. Caller holds the lock.
func (e *Engine) releaseBarrier(ctx context.Context) error {
	b := e.barrier
	e.barrier = nil

	var nextPhase models.SessionPhase
	var err error
	switch b.Name {
	case models.BarrierStart:
		nextPhase = models.PhaseNomination
		err = e.enterNomination(ctx)
	case models.BarrierAuctionStart:
		nextPhase = models.PhaseAuction
		err = e.openAuction(ctx)
	case models.BarrierResumePause:
		nextPhase = e.resumePhase
		err = e.restoreFrozenPhase(ctx)
	case models.BarrierResumeAppeal:
		nextPhase = models.PhaseAuction
		err = e.reopenAfterAppeal(ctx)
	default:
		err = errf(KindInvalidTransition, "unknown barrier %s", b.Name)
	}
	if err != nil {
		e.barrier = b
		return err
	}

	e.emit(ctx, events.TypeBarrierSatisfied, events.BarrierSatisfiedPayload{
		LeagueID:   e.leagueID.String(),
		Barrier:    string(b.Name),
		BarrierSeq: b.Seq,
		NextPhase:  string(nextPhase),
	})
	return nil
}

// restoreFrozenPhase re-enters the phase recorded at pause time, re-arming
// the clock with the exact frozen remaining duration.
func (e *Engine) restoreFrozenPhase(ctx context.Context) error {
	if e.resumePhase == "" {
		return errf(KindInvalidTransition, "no frozen phase to resume")
	}

	prevPhase := e.phase
	prevResume := e.resumePhase
	prevRemaining := e.frozenRemaining
	prevDeadline := e.deadline

	e.phase = e.resumePhase
	e.resumePhase = ""
	remaining := e.frozenRemaining
	e.frozenRemaining = 0
	if remaining > 0 {
		deadline := e.clock.Now().Add(remaining)
		e.deadline = &deadline
	}

	if err := e.persistSession(ctx); err != nil {
		e.phase = prevPhase
		e.resumePhase = prevResume
		e.frozenRemaining = prevRemaining
		e.deadline = prevDeadline
		return err
	}

	// A ready-check phase needs its gate back. The pre-pause barrier was
	// discarded, so the re-entered phase opens a fresh instance.
	switch e.phase {
	case models.PhaseReadyCheck:
		e.newBarrier(models.BarrierStart)
	case models.PhaseAuctionReadyCheck:
		e.newBarrier(models.BarrierAuctionStart)
	}

	if e.deadline != nil {
		if e.auction != nil && e.phase == models.PhaseAuction {
			e.auction.Deadline = *e.deadline
		}
		e.setDeadline(e.deadline)
	}

	e.emit(ctx, events.TypeSessionResumed, events.SessionResumedPayload{
		LeagueID:     e.leagueID.String(),
		Phase:        string(e.phase),
		RemainingSec: remaining.Seconds(),
		ResumedAt:    e.clock.Now(),
	})
	return nil
}

// newBarrier replaces the current barrier with a fresh instance. Barrier
// instances are never reused across occurrences.
func (e *Engine) newBarrier(name models.BarrierName) {
	e.barrierSeq++
	e.barrier = models.NewReadyBarrier(name, e.barrierSeq, e.expectedCount(), e.clock.Now())
}

func (e *Engine) expectedCount() int {
	n := 0
	for _, p := range e.participants {
		if p.Active {
			n++
		}
	}
	return n
}

func (e *Engine) requireParticipant(actorID uuid.UUID) error {
	p, ok := e.participants[actorID]
	if !ok || !p.Active {
		return errf(KindNotFound, "unknown participant %s", actorID)
	}
	return nil
}

func (e *Engine) requireAdmin(actorID uuid.UUID) error {
	if actorID == System {
		return nil
	}
	p, ok := e.participants[actorID]
	if !ok {
		return errf(KindNotFound, "unknown participant %s", actorID)
	}
	if !p.IsAdmin {
		return errf(KindNotAuthorized, "participant %s is not an admin", actorID)
	}
	return nil
}

func (e *Engine) setDeadline(t *time.Time) {
	e.deadline = t
	if e.onDeadlineChange != nil {
		e.onDeadlineChange()
	}
}

func (e *Engine) clearDeadline() {
	e.setDeadline(nil)
}

func (e *Engine) persistSession(ctx context.Context) error {
	session := &models.Session{
		LeagueID:        e.leagueID,
		Mode:            e.mode,
		Phase:           e.phase,
		ResumePhase:     e.resumePhase,
		CurrentIndex:    e.board.CurrentIndex,
		Deadline:        e.deadline,
		FrozenRemaining: e.frozenRemaining,
		UpdatedAt:       e.clock.Now(),
	}
	if err := e.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// emit publishes an event to the sink. Push delivery is best-effort: sink
// failures are logged and never fail the command.
func (e *Engine) emit(ctx context.Context, eventType string, payload any) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(ctx, e.leagueID, eventType, payload); err != nil {
		log.Error().
			Err(err).
			Str("league_id", e.leagueID.String()).
			Str("event_type", eventType).
			Msg("failed to emit event")
	}
}
