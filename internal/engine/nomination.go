package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

// enterNomination moves the current item into its offer window and arms the
// offer timer. Caller holds the lock.
func (e *Engine) enterNomination(ctx context.Context) error {
	item := e.board.CurrentItem()
	if item == nil {
		return errf(KindInvalidTransition, "board is exhausted")
	}

	e.phase = models.PhaseNomination
	e.nomination = nil
	deadline := e.clock.Now().Add(e.cfg.OfferTime)
	e.setDeadline(&deadline)

	if err := e.persistSession(ctx); err != nil {
		e.clearDeadline()
		return err
	}
	return nil
}

// Nominate places the opening offer for the current item. In steal mode the
// current owner cannot offer on their own player.
func (e *Engine) Nominate(ctx context.Context, actorID uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if e.phase != models.PhaseNomination {
		return errf(KindInvalidTransition, "cannot place an offer in phase %s", e.phase)
	}
	if e.nomination != nil {
		if e.nomination.ParticipantID == actorID {
			return nil // already theirs
		}
		return errf(KindInvalidTransition, "an offer is already pending")
	}

	item := e.board.CurrentItem()
	if e.mode == models.ModeSteal && item.OwnerID != nil && *item.OwnerID == actorID {
		return errf(KindSelfBid, "cannot offer on your own player")
	}
	if amount < item.BasePrice {
		return errf(KindBidTooLow, "offer %d is below the base price %d", amount, item.BasePrice)
	}
	if amount > e.participants[actorID].Budget {
		return errf(KindInsufficientBudget, "offer %d exceeds budget %d", amount, e.participants[actorID].Budget)
	}

	e.nomination = &models.Nomination{
		ParticipantID: actorID,
		Amount:        amount,
		OfferedAt:     e.clock.Now(),
	}
	if err := e.persistSession(ctx); err != nil {
		e.nomination = nil
		return err
	}

	e.emit(ctx, events.TypeItemNominated, events.ItemNominatedPayload{
		LeagueID:      e.leagueID.String(),
		ItemID:        item.ID.String(),
		PlayerName:    item.PlayerName,
		ParticipantID: actorID.String(),
		Amount:        amount,
		OfferedAt:     e.nomination.OfferedAt,
	})
	return nil
}

// ConfirmNomination locks the pending offer and opens the auction-start
// barrier. Only the nominator confirms.
func (e *Engine) ConfirmNomination(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != models.PhaseNomination {
		return errf(KindInvalidTransition, "cannot confirm an offer in phase %s", e.phase)
	}
	if e.nomination == nil {
		return errf(KindInvalidTransition, "no offer is pending")
	}
	if e.nomination.ParticipantID != actorID {
		return errf(KindNotAuthorized, "only the offering participant may confirm")
	}
	return e.confirmOffer(ctx)
}

// CancelNomination withdraws the pending offer. The nominator or an admin
// may cancel; the offer window keeps running.
func (e *Engine) CancelNomination(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != models.PhaseNomination {
		return errf(KindInvalidTransition, "cannot cancel an offer in phase %s", e.phase)
	}
	if e.nomination == nil {
		return errf(KindInvalidTransition, "no offer is pending")
	}
	if e.nomination.ParticipantID != actorID {
		if err := e.requireAdmin(actorID); err != nil {
			return err
		}
	}

	cancelled := e.nomination
	e.nomination = nil
	if err := e.persistSession(ctx); err != nil {
		e.nomination = cancelled
		return err
	}

	e.emit(ctx, events.TypeNominationCancelled, events.NominationCancelledPayload{
		LeagueID:      e.leagueID.String(),
		ItemID:        e.board.CurrentItem().ID.String(),
		ParticipantID: cancelled.ParticipantID.String(),
	})
	return nil
}

// confirmOffer fires the NOMINATION to AUCTION_READY_CHECK transition.
// Caller holds the lock.
func (e *Engine) confirmOffer(ctx context.Context) error {
	prev := e.phase
	e.phase = models.PhaseAuctionReadyCheck
	e.clearDeadline()
	e.newBarrier(models.BarrierAuctionStart)

	if err := e.persistSession(ctx); err != nil {
		e.phase = prev
		e.barrier = nil
		return err
	}

	e.emit(ctx, events.TypeNominationConfirmed, events.NominationConfirmedPayload{
		LeagueID:      e.leagueID.String(),
		ItemID:        e.board.CurrentItem().ID.String(),
		ParticipantID: e.nomination.ParticipantID.String(),
		Amount:        e.nomination.Amount,
	})
	return nil
}

// expireOfferWindow handles offer-timer expiry. A pending offer is confirmed
// as if the nominator had done so; with no offer the item is passed through
// a zero-bid auction so every item ends in the same acknowledgment flow.
// Caller holds the lock.
func (e *Engine) expireOfferWindow(ctx context.Context) error {
	if e.nomination != nil {
		log.Info().
			Str("league_id", e.leagueID.String()).
			Str("participant_id", e.nomination.ParticipantID.String()).
			Msg("offer window expired, confirming pending offer")
		return e.confirmOffer(ctx)
	}

	if err := e.openAuction(ctx); err != nil {
		return err
	}
	return e.closeAuction(ctx, System)
}
