package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/models"
)

// Manager owns one engine per league, hydrating them lazily from storage.
type Manager struct {
	mu      sync.Mutex
	engines map[uuid.UUID]*Engine

	loader Loader
	store  Store
	sink   EventSink
	clock  clockwork.Clock
	cfg    Config
}

// NewManager creates an empty registry.
func NewManager(loader Loader, store Store, sink EventSink, clock clockwork.Clock, cfg Config) *Manager {
	return &Manager{
		engines: make(map[uuid.UUID]*Engine),
		loader:  loader,
		store:   store,
		sink:    sink,
		clock:   clock,
		cfg:     cfg,
	}
}

// Get returns the league's engine, loading board, participants and the last
// persisted session on first access.
func (m *Manager) Get(ctx context.Context, leagueID uuid.UUID) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[leagueID]; ok {
		return e, nil
	}

	board, err := m.loader.LoadBoard(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	participants, err := m.loader.LoadParticipants(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	session, err := m.loader.LoadSession(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	mode := models.ModeSteal
	if session != nil {
		mode = session.Mode
	}
	e := New(leagueID, mode, m.cfg, board, participants, m.store, m.sink, m.clock)
	if session != nil {
		e.hydrate(session)
	}

	m.engines[leagueID] = e
	return e, nil
}

// Peek returns an already-loaded engine without touching storage.
func (m *Manager) Peek(leagueID uuid.UUID) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[leagueID]
	return e, ok
}

// Engines returns a snapshot of all loaded engines, for the scheduler.
func (m *Manager) Engines() []*Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e)
	}
	return out
}

// hydrate applies a persisted session snapshot to a fresh engine. Terminal
// and between-item phases restore exactly; a session interrupted mid-item
// drops back to the item's preview so the occurrence re-runs from a clean
// barrier rather than reconstructing live auction state.
func (e *Engine) hydrate(s *models.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.board.CurrentIndex = s.CurrentIndex

	switch s.Phase {
	case models.PhaseWaiting, models.PhasePreview, models.PhaseCompleted:
		e.phase = s.Phase
	case models.PhasePaused:
		e.phase = models.PhasePaused
		e.resumePhase = s.ResumePhase
		e.frozenRemaining = s.FrozenRemaining
		// The frozen occurrence state is gone; resume re-runs the item.
		switch e.resumePhase {
		case models.PhaseReadyCheck, models.PhaseNomination, models.PhaseAuctionReadyCheck, models.PhaseAuction:
			e.resumePhase = models.PhasePreview
			e.frozenRemaining = 0
		}
	default:
		log.Info().
			Str("league_id", e.leagueID.String()).
			Str("persisted_phase", string(s.Phase)).
			Int("current_index", s.CurrentIndex).
			Msg("session was interrupted mid-item, restarting item at preview")
		e.phase = models.PhasePreview
	}
}
