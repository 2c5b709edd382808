package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

// Acknowledge records a participant's confirmation of the closed auction's
// result. The board advances automatically once every participant has
// acknowledged.
func (e *Engine) Acknowledge(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if e.phase == models.PhaseAppealReview {
		return errf(KindInvalidTransition, "acknowledgments are blocked while an appeal is under review")
	}
	if e.phase != models.PhasePendingAck || e.ack == nil {
		return errf(KindInvalidTransition, "no result is awaiting acknowledgment in phase %s", e.phase)
	}
	if e.ack.Acked[actorID] {
		// Replay. If the gate filled but the advance failed, the retry
		// completes it; otherwise this is a no-op.
		if e.ack.Satisfied() {
			return e.advanceBoard(ctx)
		}
		return nil
	}

	if err := e.store.RecordAck(ctx, e.ack.AuctionID, actorID); err != nil {
		return err
	}
	satisfied := e.ack.Acknowledge(actorID)

	e.emit(ctx, events.TypeAckRecorded, events.AckRecordedPayload{
		LeagueID:      e.leagueID.String(),
		AuctionID:     e.ack.AuctionID.String(),
		ParticipantID: actorID.String(),
		AckCount:      len(e.ack.Acked),
		Expected:      e.ack.Expected,
	})
	if !satisfied {
		return nil
	}
	return e.advanceBoard(ctx)
}

// ForceAllAck is the admin override that satisfies the acknowledgment gate
// immediately and advances the board.
func (e *Engine) ForceAllAck(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhasePendingAck || e.ack == nil {
		return errf(KindInvalidTransition, "no result is awaiting acknowledgment in phase %s", e.phase)
	}

	e.ack.Forced = true
	log.Warn().
		Str("league_id", e.leagueID.String()).
		Str("admin_id", actorID.String()).
		Str("auction_id", e.ack.AuctionID.String()).
		Bool("admin_action", true).
		Msg("acknowledgment gate force-satisfied")

	e.emit(ctx, events.TypeAckRecorded, events.AckRecordedPayload{
		LeagueID:  e.leagueID.String(),
		AuctionID: e.ack.AuctionID.String(),
		AckCount:  len(e.ack.Acked),
		Expected:  e.ack.Expected,
		Forced:    true,
	})
	return e.advanceBoard(ctx)
}

// SubmitAppeal disputes the closed auction's result. Filing blocks all
// further acknowledgments until the admin rules. A participant who has
// already acknowledged cannot appeal, and only one appeal may exist per
// auction occurrence.
func (e *Engine) SubmitAppeal(ctx context.Context, actorID uuid.UUID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if e.phase == models.PhaseAppealReview || e.phase == models.PhaseAwaitingAppealAck {
		return errf(KindAppealAlreadyActive, "an appeal is already active for auction %s", e.ack.AuctionID)
	}
	if e.phase != models.PhasePendingAck || e.ack == nil {
		return errf(KindInvalidTransition, "no result is open to appeal in phase %s", e.phase)
	}
	if e.ack.Acked[actorID] {
		return errf(KindInvalidTransition, "cannot appeal after acknowledging the result")
	}
	if e.ack.Appeal != nil {
		return errf(KindAppealAlreadyActive, "an appeal is already active for auction %s", e.ack.AuctionID)
	}

	appeal := &models.Appeal{
		ID:           uuid.New(),
		AuctionID:    e.ack.AuctionID,
		SubmittedBy:  actorID,
		Reason:       reason,
		Status:       models.AppealStatusUnderReview,
		DecisionAcks: make(map[uuid.UUID]bool),
		FiledAt:      e.clock.Now(),
	}
	if winning := e.auction.WinningBid(); winning != nil {
		bidID := winning.ID
		appeal.DisputedBidID = &bidID
	}

	if err := e.store.RecordAppeal(ctx, appeal); err != nil {
		return err
	}

	prev := e.phase
	e.ack.Appeal = appeal
	e.phase = models.PhaseAppealReview
	if err := e.persistSession(ctx); err != nil {
		e.ack.Appeal = nil
		e.phase = prev
		return err
	}

	e.emit(ctx, events.TypeAppealFiled, events.AppealFiledPayload{
		LeagueID:    e.leagueID.String(),
		AuctionID:   appeal.AuctionID.String(),
		AppealID:    appeal.ID.String(),
		SubmittedBy: actorID.String(),
		Reason:      reason,
		FiledAt:     appeal.FiledAt,
	})
	return nil
}

// DecideAppeal records the admin's ruling and opens the decision
// acknowledgment gate. The material effect of an accepted appeal is applied
// only after everyone has seen the decision.
func (e *Engine) DecideAppeal(ctx context.Context, actorID uuid.UUID, accept bool, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	if e.phase != models.PhaseAppealReview || e.ack == nil || e.ack.Appeal == nil {
		return errf(KindInvalidTransition, "no appeal is under review in phase %s", e.phase)
	}
	appeal := e.ack.Appeal
	if appeal.Status != models.AppealStatusUnderReview {
		return errf(KindInvalidTransition, "appeal %s is already decided", appeal.ID)
	}

	now := e.clock.Now()
	prevStatus := appeal.Status
	appeal.Status = models.AppealStatusRejected
	if accept {
		appeal.Status = models.AppealStatusAccepted
	}
	appeal.DecidedBy = &actorID
	appeal.DecidedAt = &now
	appeal.AdminNotes = notes
	appeal.DecisionAcks = make(map[uuid.UUID]bool)

	if err := e.store.UpdateAppeal(ctx, appeal); err != nil {
		appeal.Status = prevStatus
		appeal.DecidedBy = nil
		appeal.DecidedAt = nil
		appeal.AdminNotes = ""
		return err
	}

	prevPhase := e.phase
	e.phase = models.PhaseAwaitingAppealAck
	if err := e.persistSession(ctx); err != nil {
		e.phase = prevPhase
		return err
	}

	log.Info().
		Str("league_id", e.leagueID.String()).
		Str("admin_id", actorID.String()).
		Str("appeal_id", appeal.ID.String()).
		Str("decision", string(appeal.Status)).
		Bool("admin_action", true).
		Msg("appeal decided")

	e.emit(ctx, events.TypeAppealDecided, events.AppealDecidedPayload{
		LeagueID:  e.leagueID.String(),
		AuctionID: appeal.AuctionID.String(),
		AppealID:  appeal.ID.String(),
		Decision:  string(appeal.Status),
		DecidedBy: actorID.String(),
		Notes:     notes,
		DecidedAt: now,
	})
	return nil
}

// AcknowledgeAppeal records that a participant has seen the appeal decision.
// When everyone has: a rejected appeal advances the board past the standing
// result, an accepted one reverses the close and queues the item for re-run.
func (e *Engine) AcknowledgeAppeal(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if e.phase != models.PhaseAwaitingAppealAck || e.ack == nil || e.ack.Appeal == nil {
		return errf(KindInvalidTransition, "no appeal decision is awaiting acknowledgment in phase %s", e.phase)
	}
	appeal := e.ack.Appeal
	if appeal.DecisionAcks[actorID] {
		// Replay; complete a gated transition a prior call failed to commit.
		if len(appeal.DecisionAcks) >= e.expectedCount() {
			if appeal.Status == models.AppealStatusRejected {
				return e.advanceBoard(ctx)
			}
			return e.reverseClose(ctx)
		}
		return nil
	}

	if err := e.store.RecordAppealAck(ctx, appeal.ID, actorID); err != nil {
		return err
	}
	appeal.DecisionAcks[actorID] = true

	e.emit(ctx, events.TypeAckRecorded, events.AckRecordedPayload{
		LeagueID:      e.leagueID.String(),
		AuctionID:     appeal.AuctionID.String(),
		ParticipantID: actorID.String(),
		AckCount:      len(appeal.DecisionAcks),
		Expected:      e.expectedCount(),
	})
	if len(appeal.DecisionAcks) < e.expectedCount() {
		return nil
	}

	if appeal.Status == models.AppealStatusRejected {
		return e.advanceBoard(ctx)
	}
	return e.reverseClose(ctx)
}

// reverseClose undoes the committed close after an accepted appeal: budgets
// are restored, the bid log is truncated to just before the disputed bid and
// the item waits on the resume barrier to re-run. Caller holds the lock.
func (e *Engine) reverseClose(ctx context.Context) error {
	item := e.board.CurrentItem()
	appeal := e.ack.Appeal

	params := ReverseParams{
		LeagueID:      e.leagueID,
		Auction:       e.auction,
		ItemID:        item.ID,
		RestoredPrice: e.auction.BasePrice,
		TruncateAfter: nil,
		NewDeadline:   e.clock.Now().Add(e.cfg.AuctionTime),
	}

	// Cut the log back to just before the disputed bid and restore the price
	// to the last surviving bid, or the base price if none survive.
	keep := e.auction.Bids
	if appeal.DisputedBidID != nil {
		for i := range keep {
			if keep[i].ID == *appeal.DisputedBidID {
				keep = keep[:i]
				break
			}
		}
	}
	if len(keep) > 0 {
		last := keep[len(keep)-1]
		params.RestoredPrice = last.Amount
		lastID := last.ID
		params.TruncateAfter = &lastID
	}

	if item.Outcome == models.OutcomeTransferred && item.FinalPrice != nil {
		price := *item.FinalPrice
		params.WinnerID = item.OwnerID
		params.WinnerRefund = price
		if e.mode == models.ModeSteal && item.PreviousOwnerID != nil {
			params.SellerID = item.PreviousOwnerID
			params.SellerDebit = price
		}
	}

	if err := e.store.ReverseClose(ctx, params); err != nil {
		return err
	}

	if params.WinnerID != nil {
		e.participants[*params.WinnerID].Budget += params.WinnerRefund
		if params.SellerID != nil {
			e.participants[*params.SellerID].Budget -= params.SellerDebit
		}
		item.OwnerID = item.PreviousOwnerID
		item.PreviousOwnerID = nil
	}
	item.Outcome = models.OutcomePending
	item.FinalPrice = nil

	e.auction.Status = models.AuctionStatusOpen
	e.auction.ClosedAt = nil
	e.auction.Bids = keep
	for i := range e.auction.Bids {
		e.auction.Bids[i].Winning = i == len(e.auction.Bids)-1
	}
	e.auction.CurrentPrice = params.RestoredPrice

	e.ack = nil
	e.phase = models.PhaseAwaitingResume
	e.newBarrier(models.BarrierResumeAppeal)
	return nil
}

// reopenAfterAppeal re-arms the reversed auction with a full bidding window
// once the resume barrier is satisfied. Caller holds the lock.
func (e *Engine) reopenAfterAppeal(ctx context.Context) error {
	if e.auction == nil || e.auction.Status != models.AuctionStatusOpen {
		return errf(KindInvalidTransition, "no reversed auction to reopen")
	}

	now := e.clock.Now()
	prevPhase := e.phase
	prevDeadline := e.deadline

	e.phase = models.PhaseAuction
	deadline := now.Add(e.cfg.AuctionTime)
	e.deadline = &deadline

	if err := e.persistSession(ctx); err != nil {
		e.phase = prevPhase
		e.deadline = prevDeadline
		return err
	}

	e.auction.Deadline = deadline
	e.bidTokens = make(map[string]uuid.UUID)
	e.setDeadline(&deadline)

	e.emit(ctx, events.TypeAuctionOpened, events.AuctionOpenedPayload{
		LeagueID:     e.leagueID.String(),
		AuctionID:    e.auction.ID.String(),
		ItemID:       e.auction.ItemID.String(),
		BasePrice:    e.auction.BasePrice,
		CurrentPrice: e.auction.CurrentPrice,
		Deadline:     e.auction.Deadline,
		OpenedAt:     now,
	})
	return nil
}
