package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

// advanceBoard moves the cursor to the next item, or completes the session
// when the board is exhausted. Caller holds the lock.
func (e *Engine) advanceBoard(ctx context.Context) error {
	prevIndex := e.board.CurrentIndex
	prevPhase := e.phase

	e.board.CurrentIndex++
	if e.board.Exhausted() {
		e.phase = models.PhaseCompleted
	} else {
		e.phase = models.PhasePreview
	}

	// Persist before touching anything else: a failure here must leave the
	// processed item's ack gate intact so the command can be retried.
	if err := e.persistSession(ctx); err != nil {
		e.board.CurrentIndex = prevIndex
		e.phase = prevPhase
		return err
	}

	e.auction = nil
	e.ack = nil
	e.nomination = nil
	e.bidTokens = make(map[string]uuid.UUID)
	e.clearDeadline()

	if e.phase == models.PhaseCompleted {
		e.emit(ctx, events.TypeSessionCompleted, events.SessionCompletedPayload{
			LeagueID:       e.leagueID.String(),
			ItemsProcessed: len(e.board.Items),
			CompletedAt:    e.clock.Now(),
		})
		return nil
	}

	item := e.board.CurrentItem()
	e.emit(ctx, events.TypeBoardAdvanced, events.BoardAdvancedPayload{
		LeagueID:     e.leagueID.String(),
		CurrentIndex: e.board.CurrentIndex,
		ItemID:       item.ID.String(),
		PlayerName:   item.PlayerName,
	})
	return nil
}

// Advance is the explicit admin advance. The cursor normally moves on its
// own when the acknowledgment gate fills; the explicit command exists for
// recovery and rejects anything out of sequence.
func (e *Engine) Advance(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhasePendingAck || e.ack == nil || !e.ack.Satisfied() {
		return errf(KindOutOfSequence, "cannot advance in phase %s with acknowledgments outstanding", e.phase)
	}
	return e.advanceBoard(ctx)
}

// GoBack is the admin correction that rewinds the cursor one item and undoes
// that item's outcome, restoring ownership and budgets. Only usable between
// items, never mid-auction.
func (e *Engine) GoBack(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	switch e.phase {
	case models.PhasePreview, models.PhaseReadyCheck, models.PhaseCompleted:
	default:
		return errf(KindInvalidTransition, "cannot go back in phase %s", e.phase)
	}
	if e.board.CurrentIndex == 0 {
		return errf(KindAtStart, "already at the first item")
	}

	prev := &e.board.Items[e.board.CurrentIndex-1]
	params := RevertParams{
		LeagueID: e.leagueID,
		ItemID:   prev.ID,
		NewIndex: e.board.CurrentIndex - 1,
	}
	if prev.Outcome == models.OutcomeTransferred && prev.FinalPrice != nil {
		price := *prev.FinalPrice
		params.RestoreOwner = prev.PreviousOwnerID
		params.WinnerID = prev.OwnerID
		params.WinnerRefund = price
		if e.mode == models.ModeSteal && prev.PreviousOwnerID != nil {
			params.SellerID = prev.PreviousOwnerID
			params.SellerDebit = price
		}
	}

	if err := e.store.RevertItem(ctx, params); err != nil {
		return err
	}

	if params.WinnerID != nil {
		e.participants[*params.WinnerID].Budget += params.WinnerRefund
		if params.SellerID != nil {
			e.participants[*params.SellerID].Budget -= params.SellerDebit
		}
		prev.OwnerID = prev.PreviousOwnerID
		prev.PreviousOwnerID = nil
	}
	prev.Outcome = models.OutcomePending
	prev.FinalPrice = nil

	e.board.CurrentIndex--
	e.phase = models.PhasePreview
	e.barrier = nil
	e.auction = nil
	e.ack = nil
	e.nomination = nil
	e.clearDeadline()

	log.Warn().
		Str("league_id", e.leagueID.String()).
		Str("admin_id", actorID.String()).
		Str("item_id", prev.ID.String()).
		Int("current_index", e.board.CurrentIndex).
		Bool("admin_action", true).
		Msg("board rewound to previous item")

	e.emit(ctx, events.TypeBoardWentBack, events.BoardWentBackPayload{
		LeagueID:     e.leagueID.String(),
		CurrentIndex: e.board.CurrentIndex,
		ItemID:       prev.ID.String(),
		ReopenedBy:   actorID.String(),
	})
	return nil
}
