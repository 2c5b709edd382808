package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

// openAuction opens the timed bidding window for the current item. A
// confirmed opening offer seeds the bid log as the first winning bid; with
// no offer the auction opens at the base price with an empty log. Caller
// holds the lock.
func (e *Engine) openAuction(ctx context.Context) error {
	item := e.board.CurrentItem()
	if item == nil {
		return errf(KindInvalidTransition, "board is exhausted")
	}

	now := e.clock.Now()
	auction := &models.Auction{
		ID:           uuid.New(),
		LeagueID:     e.leagueID,
		ItemID:       item.ID,
		Mode:         e.mode,
		BasePrice:    item.BasePrice,
		CurrentPrice: item.BasePrice,
		Deadline:     now.Add(e.cfg.AuctionTime),
		Status:       models.AuctionStatusOpen,
		OpenedAt:     now,
	}
	if e.nomination != nil {
		auction.CurrentPrice = e.nomination.Amount
		auction.Bids = []models.Bid{{
			ID:            uuid.New(),
			AuctionID:     auction.ID,
			ParticipantID: e.nomination.ParticipantID,
			Amount:        e.nomination.Amount,
			PlacedAt:      e.nomination.OfferedAt,
			Winning:       true,
		}}
	}

	if err := e.store.OpenAuction(ctx, auction); err != nil {
		return err
	}

	e.auction = auction
	e.phase = models.PhaseAuction
	e.bidTokens = make(map[string]uuid.UUID)
	deadline := auction.Deadline
	e.setDeadline(&deadline)

	e.emit(ctx, events.TypeAuctionOpened, events.AuctionOpenedPayload{
		LeagueID:     e.leagueID.String(),
		AuctionID:    auction.ID.String(),
		ItemID:       item.ID.String(),
		BasePrice:    auction.BasePrice,
		CurrentPrice: auction.CurrentPrice,
		Deadline:     auction.Deadline,
		OpenedAt:     now,
	})
	return nil
}

// SubmitBid validates and commits a bid against the open auction. Bids are
// serialized under the engine lock so the highest-committed-price invariant
// holds without optimistic retries. The dedupe token makes client retries
// replay-safe.
func (e *Engine) SubmitBid(ctx context.Context, actorID uuid.UUID, amount int64, dedupeToken string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireParticipant(actorID); err != nil {
		return err
	}
	if dedupeToken != "" {
		if _, seen := e.bidTokens[dedupeToken]; seen {
			return nil // retry of a committed bid
		}
	}
	if e.phase != models.PhaseAuction || e.auction == nil {
		return errf(KindAuctionClosed, "no auction is open")
	}
	if e.auction.Status != models.AuctionStatusOpen {
		return errf(KindAuctionClosed, "auction %s is closed", e.auction.ID)
	}
	// The window ends at the deadline, not at the close commit: a bid landing
	// before the timer wakeup fires must still be rejected.
	if !e.clock.Now().Before(e.auction.Deadline) {
		return errf(KindAuctionClosed, "bidding for auction %s ended at %s", e.auction.ID, e.auction.Deadline.Format("15:04:05"))
	}

	item := e.board.CurrentItem()
	if e.mode == models.ModeSteal && item.OwnerID != nil && *item.OwnerID == actorID {
		return errf(KindSelfBid, "cannot bid on your own player")
	}
	if amount <= e.auction.CurrentPrice {
		return errf(KindBidTooLow, "bid %d does not exceed the current price %d", amount, e.auction.CurrentPrice)
	}
	if amount > e.participants[actorID].Budget {
		return errf(KindInsufficientBudget, "bid %d exceeds budget %d", amount, e.participants[actorID].Budget)
	}

	bid := models.Bid{
		ID:            uuid.New(),
		AuctionID:     e.auction.ID,
		ParticipantID: actorID,
		Amount:        amount,
		PlacedAt:      e.clock.Now(),
		Winning:       true,
	}
	if err := e.store.AppendBid(ctx, bid, amount); err != nil {
		return err
	}

	for i := range e.auction.Bids {
		e.auction.Bids[i].Winning = false
	}
	e.auction.Bids = append(e.auction.Bids, bid)
	e.auction.CurrentPrice = amount
	if dedupeToken != "" {
		e.bidTokens[dedupeToken] = bid.ID
	}

	e.emit(ctx, events.TypeBidAccepted, events.BidAcceptedPayload{
		LeagueID:      e.leagueID.String(),
		AuctionID:     e.auction.ID.String(),
		BidID:         bid.ID.String(),
		ParticipantID: actorID.String(),
		Amount:        amount,
		PlacedAt:      bid.PlacedAt,
	})
	return nil
}

// CloseAuction ends the bidding window early. Admin only; timer expiry
// closes through the same path as the system actor.
func (e *Engine) CloseAuction(ctx context.Context, actorID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(actorID); err != nil {
		return err
	}
	return e.closeAuction(ctx, actorID)
}

// closeAuction settles the open auction exactly once: the winning bid wins
// the item and budgets move, or the item passes unchanged. Caller holds the
// lock.
func (e *Engine) closeAuction(ctx context.Context, closedBy uuid.UUID) error {
	if e.auction == nil {
		return errf(KindInvalidTransition, "no auction to close")
	}
	if e.auction.Status == models.AuctionStatusClosed {
		return errf(KindAlreadyClosed, "auction %s is already closed", e.auction.ID)
	}

	item := e.board.CurrentItem()
	now := e.clock.Now()
	winning := e.auction.WinningBid()

	params := CloseParams{
		LeagueID: e.leagueID,
		Auction:  e.auction,
		ItemID:   item.ID,
		Outcome:  models.OutcomeUnchanged,
		ClosedAt: now,
	}
	if winning != nil {
		price := winning.Amount
		winnerID := winning.ParticipantID
		params.Outcome = models.OutcomeTransferred
		params.FinalPrice = &price
		params.NewOwnerID = &winnerID
		params.WinnerID = &winnerID
		params.WinnerDebit = price
		if e.mode == models.ModeSteal && item.OwnerID != nil {
			params.SellerID = item.OwnerID
			params.SellerCredit = price
		}
	}

	if err := e.store.CommitClose(ctx, params); err != nil {
		return err
	}

	e.auction.Status = models.AuctionStatusClosed
	e.auction.ClosedAt = &now
	item.Outcome = params.Outcome
	if winning != nil {
		item.PreviousOwnerID = item.OwnerID
		item.OwnerID = params.NewOwnerID
		item.FinalPrice = params.FinalPrice
		e.participants[*params.WinnerID].Budget -= params.WinnerDebit
		if params.SellerID != nil {
			e.participants[*params.SellerID].Budget += params.SellerCredit
		}
	}
	e.nomination = nil
	e.phase = models.PhasePendingAck
	e.ack = models.NewAcknowledgment(e.auction.ID, e.expectedCount())
	e.clearDeadline()

	payload := events.AuctionClosedPayload{
		LeagueID:  e.leagueID.String(),
		AuctionID: e.auction.ID.String(),
		ItemID:    item.ID.String(),
		Outcome:   string(params.Outcome),
		ClosedAt:  now,
	}
	if winning != nil {
		payload.FinalPrice = winning.Amount
		payload.WinnerID = winning.ParticipantID.String()
	}
	if closedBy != System {
		payload.ClosedBy = closedBy.String()
		log.Info().
			Str("league_id", e.leagueID.String()).
			Str("admin_id", closedBy.String()).
			Str("auction_id", e.auction.ID.String()).
			Bool("admin_action", true).
			Msg("auction closed early by admin")
	}
	e.emit(ctx, events.TypeAuctionClosed, payload)
	return nil
}
