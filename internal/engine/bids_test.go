package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmaas/paddle/internal/events"
	"github.com/dmaas/paddle/internal/models"
)

func TestBidValidation(t *testing.T) {
	cases := []struct {
		name     string
		seller   bool // bid as the item's owner instead of the admin
		amount   int64
		wantKind Kind
	}{
		{name: "owner cannot bid on their own player", seller: true, amount: 20, wantKind: KindSelfBid},
		{name: "bid equal to current price is too low", amount: 10, wantKind: KindBidTooLow},
		{name: "bid below current price is too low", amount: 7, wantKind: KindBidTooLow},
		{name: "bid above budget is rejected", amount: 101, wantKind: KindInsufficientBudget},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
			env.toAuction(t, 10) // buyer's opening offer holds at 10

			bidder := env.admin
			if tc.seller {
				bidder = env.seller
			}
			wantKind(t, env.engine.SubmitBid(env.ctx, bidder, tc.amount, ""), tc.wantKind)

			// Rejections are complete no-ops.
			env.engine.mu.Lock()
			price := env.engine.auction.CurrentPrice
			nbids := len(env.engine.auction.Bids)
			env.engine.mu.Unlock()
			if price != 10 || nbids != 1 {
				t.Fatalf("price=%d bids=%d after rejection, want 10/1", price, nbids)
			}
		})
	}
}

func TestBudgetEnforcementAndTransfer(t *testing.T) {
	// Buyer has 50, the fourth participant only 5. Seller starts at 20.
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50, 5)
	poor := env.others[0]
	env.toAuction(t, 5)

	if err := env.engine.SubmitBid(env.ctx, env.buyer, 12, ""); err != nil {
		t.Fatalf("bid 12 with budget 50: %v", err)
	}
	wantKind(t, env.engine.SubmitBid(env.ctx, poor, 15, ""), KindInsufficientBudget)

	if err := env.engine.CloseAuction(env.ctx, env.admin); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := env.budget(env.buyer); got != 38 {
		t.Fatalf("winner budget = %d, want 38", got)
	}
	if got := env.budget(env.seller); got != 32 {
		t.Fatalf("seller budget = %d, want 32 after credit", got)
	}
	if got := env.budget(poor); got != 5 {
		t.Fatalf("rejected bidder budget = %d, want untouched 5", got)
	}

	env.engine.mu.Lock()
	item := env.engine.board.CurrentItem()
	env.engine.mu.Unlock()
	if item.Outcome != models.OutcomeTransferred {
		t.Fatalf("outcome = %s, want %s", item.Outcome, models.OutcomeTransferred)
	}
	if item.OwnerID == nil || *item.OwnerID != env.buyer {
		t.Fatal("item not transferred to winner")
	}
	if item.PreviousOwnerID == nil || *item.PreviousOwnerID != env.seller {
		t.Fatal("previous owner not recorded")
	}
	if item.FinalPrice == nil || *item.FinalPrice != 12 {
		t.Fatalf("final price = %v, want 12", item.FinalPrice)
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s, want %s", got, models.PhasePendingAck)
	}
}

func TestFreeAgentCloseHasNoSellerCredit(t *testing.T) {
	env := newTestEnv(t, models.ModeFreeAgent, 100, 20, 50)
	env.toAuction(t, 8)

	if err := env.engine.CloseAuction(env.ctx, env.admin); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := env.budget(env.buyer); got != 42 {
		t.Fatalf("winner budget = %d, want 42", got)
	}
	if got := env.budget(env.seller); got != 20 {
		t.Fatalf("non-seller budget = %d, want untouched 20", got)
	}
	if len(env.store.closes) != 1 || env.store.closes[0].SellerID != nil {
		t.Fatalf("close params = %+v, want no seller leg", env.store.closes)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 10)

	if err := env.engine.CloseAuction(env.ctx, env.admin); err != nil {
		t.Fatalf("first close: %v", err)
	}
	wantKind(t, env.engine.CloseAuction(env.ctx, env.admin), KindAlreadyClosed)

	if len(env.store.closes) != 1 {
		t.Fatalf("committed %d closes, want exactly 1", len(env.store.closes))
	}
	if got := env.budget(env.buyer); got != 40 {
		t.Fatalf("winner budget = %d, double close must not double-debit", got)
	}
}

func TestDeadlineExpiryClosesAuction(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 10)

	env.clock.Advance(DefaultConfig().AuctionTime + time.Second)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline: %v", err)
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s, want %s after expiry", got, models.PhasePendingAck)
	}

	// A second wakeup for the same expiry is harmless.
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("repeat wakeup: %v", err)
	}
	if len(env.store.closes) != 1 {
		t.Fatalf("committed %d closes, want 1", len(env.store.closes))
	}
}

func TestOfferExpiryWithNoOfferPassesItem(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toNomination(t)

	env.clock.Advance(DefaultConfig().OfferTime + time.Second)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline: %v", err)
	}

	env.engine.mu.Lock()
	item := env.engine.board.CurrentItem()
	env.engine.mu.Unlock()
	if item.Outcome != models.OutcomeUnchanged {
		t.Fatalf("outcome = %s, want %s", item.Outcome, models.OutcomeUnchanged)
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s, passed item still needs acknowledgment", got)
	}
	if got := env.budget(env.seller); got != 20 {
		t.Fatalf("seller budget = %d, want untouched 20", got)
	}
	if !env.sink.has(events.TypeAuctionClosed) {
		t.Fatal("no close event for the passed item")
	}
}

func TestOfferExpiryConfirmsPendingOffer(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toNomination(t)

	if err := env.engine.Nominate(env.ctx, env.buyer, 7); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	env.clock.Advance(DefaultConfig().OfferTime + time.Second)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline: %v", err)
	}
	if got := env.phase(); got != models.PhaseAuctionReadyCheck {
		t.Fatalf("phase = %s, want %s after auto-confirm", got, models.PhaseAuctionReadyCheck)
	}
}

func TestBidDedupeToken(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 10)

	if err := env.engine.SubmitBid(env.ctx, env.buyer, 15, "tok-1"); err != nil {
		t.Fatalf("bid: %v", err)
	}
	// Client retry with the same token commits nothing new.
	if err := env.engine.SubmitBid(env.ctx, env.buyer, 15, "tok-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(env.store.bids) != 1 {
		t.Fatalf("committed %d bids, want 1", len(env.store.bids))
	}

	env.engine.mu.Lock()
	price := env.engine.auction.CurrentPrice
	env.engine.mu.Unlock()
	if price != 15 {
		t.Fatalf("price = %d, want 15", price)
	}
}

func TestNominationRules(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toNomination(t)

	wantKind(t, env.engine.Nominate(env.ctx, env.seller, 10), KindSelfBid)
	wantKind(t, env.engine.Nominate(env.ctx, env.buyer, 4), KindBidTooLow)
	wantKind(t, env.engine.Nominate(env.ctx, env.buyer, 51), KindInsufficientBudget)

	if err := env.engine.Nominate(env.ctx, env.buyer, 10); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	wantKind(t, env.engine.Nominate(env.ctx, env.admin, 12), KindInvalidTransition)

	// Only the nominator confirms; cancel reopens the window.
	wantKind(t, env.engine.ConfirmNomination(env.ctx, env.admin), KindNotAuthorized)
	if err := env.engine.CancelNomination(env.ctx, env.buyer); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := env.engine.Nominate(env.ctx, env.admin, 12); err != nil {
		t.Fatalf("nominate after cancel: %v", err)
	}
}

func TestOpeningOfferSeedsBidLog(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 9)

	env.engine.mu.Lock()
	a := env.engine.auction
	env.engine.mu.Unlock()

	if a.CurrentPrice != 9 {
		t.Fatalf("opening price = %d, want the confirmed offer 9", a.CurrentPrice)
	}
	w := a.WinningBid()
	if w == nil || w.ParticipantID != env.buyer || w.Amount != 9 {
		t.Fatalf("winning bid = %+v, want buyer at 9", w)
	}
}

func TestBidAfterDeadlineRejected(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 10)

	// The window has expired but no timer wakeup has fired yet.
	env.clock.Advance(DefaultConfig().AuctionTime)

	wantKind(t, env.engine.SubmitBid(env.ctx, env.admin, 15, ""), KindAuctionClosed)

	env.engine.mu.Lock()
	price := env.engine.auction.CurrentPrice
	bids := len(env.engine.auction.Bids)
	env.engine.mu.Unlock()
	if price != 10 || bids != 1 {
		t.Fatalf("price = %d bids = %d after late bid, want 10 and 1", price, bids)
	}

	// The delayed wakeup still settles at the pre-deadline price.
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline: %v", err)
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s, want %s", got, models.PhasePendingAck)
	}
	if got := env.budget(env.buyer); got != 40 {
		t.Fatalf("buyer budget = %d, want 40 (won at 10)", got)
	}
}

func TestConcurrentBidsSerializeInTotalOrder(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100, 100, 100)
	env.toAuction(t, 10)

	bidders := []uuid.UUID{env.admin, env.buyer, env.others[0], env.others[1]}
	const n = 20
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.engine.SubmitBid(env.ctx, bidders[i%len(bidders)], int64(11+i), "")
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
		case KindOf(err) == KindBidTooLow:
		default:
			t.Fatalf("bid %d: unexpected error %v", 11+i, err)
		}
	}
	if errs[n-1] != nil {
		t.Fatalf("highest bid must always win the race, got %v", errs[n-1])
	}

	env.engine.mu.Lock()
	finalPrice := env.engine.auction.CurrentPrice
	log := append([]models.Bid(nil), env.engine.auction.Bids...)
	env.engine.mu.Unlock()

	if finalPrice != int64(11+n-1) {
		t.Fatalf("final price = %d, want the maximum bid %d", finalPrice, 11+n-1)
	}
	// The committed log is one accepted bid per raise, strictly increasing,
	// in the same order the store saw the commits.
	if len(log) != accepted+1 {
		t.Fatalf("log has %d bids, want opening offer plus %d accepted", len(log), accepted)
	}
	for i := 1; i < len(log); i++ {
		if log[i].Amount <= log[i-1].Amount {
			t.Fatalf("log not strictly increasing at %d: %d then %d", i, log[i-1].Amount, log[i].Amount)
		}
		if !log[i].Winning && i == len(log)-1 {
			t.Fatal("last committed bid must be the winning one")
		}
	}
	env.store.mu.Lock()
	stored := append([]models.Bid(nil), env.store.bids...)
	env.store.mu.Unlock()
	if len(stored) != accepted {
		t.Fatalf("store saw %d bids, want %d", len(stored), accepted)
	}
	for i, bid := range stored {
		if bid.ID != log[i+1].ID {
			t.Fatalf("commit order diverges from log order at %d", i)
		}
	}
}
