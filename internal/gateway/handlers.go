package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/engine"
	"github.com/dmaas/paddle/internal/league"
	"github.com/dmaas/paddle/internal/models"
	"github.com/dmaas/paddle/internal/orchestrator"
)

// Service wires the HTTP surface to the engines. Commands mutate through
// the engine; GET state serves the snapshot read model.
type Service struct {
	manager   *engine.Manager
	scheduler *orchestrator.Scheduler
	leagues   *league.App
	cm        *ConnectionManager
}

func NewService(manager *engine.Manager, scheduler *orchestrator.Scheduler, leagues *league.App, cm *ConnectionManager) *Service {
	return &Service{
		manager:   manager,
		scheduler: scheduler,
		leagues:   leagues,
		cm:        cm,
	}
}

// engineFor loads the league's engine and puts it under deadline watch.
func (s *Service) engineFor(ctx context.Context, leagueID uuid.UUID) (*engine.Engine, error) {
	e, err := s.manager.Get(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	s.scheduler.Watch(e)
	return e, nil
}

func kindToStatus(kind engine.Kind) int {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindNotAuthorized:
		return http.StatusForbidden
	case engine.KindBidTooLow, engine.KindInsufficientBudget, engine.KindSelfBid:
		return http.StatusUnprocessableEntity
	case engine.KindInvalidTransition, engine.KindOutOfSequence, engine.KindAuctionClosed,
		engine.KindAlreadyClosed, engine.KindAppealAlreadyActive, engine.KindAtStart:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		writeJSON(w, kindToStatus(engErr.Kind), map[string]string{
			"code":    string(engErr.Kind),
			"message": engErr.Message,
		})
		return
	}
	log.Error().Err(err).Msg("internal error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    "INTERNAL",
		"message": "internal error",
	})
}

func leagueIDFrom(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

func actorFrom(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Participant-ID"))
	return id, err == nil
}

// command parses league and actor, loads the engine and runs fn, answering
// 204 on success.
func (s *Service) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error) {
	leagueID, ok := leagueIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_REQUEST", "message": "invalid league id"})
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_REQUEST", "message": "missing or invalid X-Participant-ID header"})
		return
	}

	e, err := s.engineFor(r.Context(), leagueID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(r.Context(), e, actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_REQUEST", "message": "invalid request body"})
		return false
	}
	return true
}

func (s *Service) handleCreateLeague(w http.ResponseWriter, r *http.Request) {
	var req league.CreateLeagueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.leagues.CreateLeague(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleListLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := s.leagues.ListLeagues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leagues)
}

// handleState serves the full snapshot. This is the guaranteed recovery
// path for clients that missed push events.
func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := leagueIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_REQUEST", "message": "invalid league id"})
		return
	}
	e, err := s.engineFor(r.Context(), leagueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Start(ctx, actor)
	})
}

func (s *Service) handleBeginReadyCheck(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.BeginReadyCheck(ctx, actor)
	})
}

type readyRequest struct {
	Barrier string `json:"barrier"`
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.MarkReady(ctx, actor, models.BarrierName(req.Barrier))
	})
}

func (s *Service) handleForceReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.ForceAllReady(ctx, actor, models.BarrierName(req.Barrier))
	})
}

type nominateRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Service) handleNominate(w http.ResponseWriter, r *http.Request) {
	var req nominateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Nominate(ctx, actor, req.Amount)
	})
}

func (s *Service) handleConfirmNomination(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.ConfirmNomination(ctx, actor)
	})
}

func (s *Service) handleCancelNomination(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.CancelNomination(ctx, actor)
	})
}

type bidRequest struct {
	Amount      int64  `json:"amount"`
	DedupeToken string `json:"dedupe_token,omitempty"`
}

func (s *Service) handleBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.SubmitBid(ctx, actor, req.Amount, req.DedupeToken)
	})
}

func (s *Service) handleCloseAuction(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.CloseAuction(ctx, actor)
	})
}

func (s *Service) handleAck(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Acknowledge(ctx, actor)
	})
}

func (s *Service) handleForceAck(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.ForceAllAck(ctx, actor)
	})
}

type appealRequest struct {
	Reason string `json:"reason"`
}

func (s *Service) handleAppeal(w http.ResponseWriter, r *http.Request) {
	var req appealRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.SubmitAppeal(ctx, actor, req.Reason)
	})
}

type decideAppealRequest struct {
	Accept bool   `json:"accept"`
	Notes  string `json:"notes,omitempty"`
}

func (s *Service) handleDecideAppeal(w http.ResponseWriter, r *http.Request) {
	var req decideAppealRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.DecideAppeal(ctx, actor, req.Accept, req.Notes)
	})
}

func (s *Service) handleAckAppeal(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.AcknowledgeAppeal(ctx, actor)
	})
}

func (s *Service) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Advance(ctx, actor)
	})
}

func (s *Service) handleGoBack(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.GoBack(ctx, actor)
	})
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Pause(ctx, actor)
	})
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Resume(ctx, actor)
	})
}

func (s *Service) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, e *engine.Engine, actor uuid.UUID) error {
		return e.Heartbeat(actor)
	})
}

// handleWebSocket upgrades a client onto the league's push feed.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := leagueIDFrom(r)
	if !ok {
		http.Error(w, "invalid league id", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}
	if err := s.cm.UpgradeConnection(w, r, participantID, leagueID); err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
	}
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cm.ConnectionStats())
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
