package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/dmaas/paddle/internal/models"
)

// closeAt drives the env into PENDING_ACK with the buyer winning at amount.
func closeAt(t *testing.T, env *testEnv, amount int64) {
	t.Helper()
	env.toAuction(t, amount)
	if err := env.engine.CloseAuction(env.ctx, env.admin); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAckGateAutoAdvances(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)

	// Explicit advance is out of sequence while acks are outstanding.
	wantKind(t, env.engine.Advance(env.ctx, env.admin), KindOutOfSequence)

	if err := env.engine.Acknowledge(env.ctx, env.admin); err != nil {
		t.Fatalf("ack: %v", err)
	}
	// Repeat ack is a no-op, not a second count.
	if err := env.engine.Acknowledge(env.ctx, env.admin); err != nil {
		t.Fatalf("repeat ack: %v", err)
	}
	if err := env.engine.Acknowledge(env.ctx, env.seller); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s, gate must hold until everyone acks", got)
	}

	if err := env.engine.Acknowledge(env.ctx, env.buyer); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := env.phase(); got != models.PhasePreview {
		t.Fatalf("phase = %s, want %s after last ack", got, models.PhasePreview)
	}

	env.engine.mu.Lock()
	idx := env.engine.board.CurrentIndex
	env.engine.mu.Unlock()
	if idx != 1 {
		t.Fatalf("cursor = %d, want 1", idx)
	}
}

func TestForceAllAckAdvances(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)

	wantKind(t, env.engine.ForceAllAck(env.ctx, env.buyer), KindNotAuthorized)

	if err := env.engine.ForceAllAck(env.ctx, env.admin); err != nil {
		t.Fatalf("force ack: %v", err)
	}
	if got := env.phase(); got != models.PhasePreview {
		t.Fatalf("phase = %s, want %s after force", got, models.PhasePreview)
	}
}

func TestSessionCompletesOnLastItem(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)
	if err := env.engine.ForceAllAck(env.ctx, env.admin); err != nil {
		t.Fatalf("force ack: %v", err)
	}

	// Second (last) item: pass it through a zero-offer expiry, then ack.
	if err := env.engine.BeginReadyCheck(env.ctx, env.admin); err != nil {
		t.Fatalf("begin ready check: %v", err)
	}
	env.markAllReady(t, models.BarrierStart)
	env.clock.Advance(DefaultConfig().OfferTime)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("offer expiry: %v", err)
	}
	if err := env.engine.ForceAllAck(env.ctx, env.admin); err != nil {
		t.Fatalf("force ack: %v", err)
	}

	if got := env.phase(); got != models.PhaseCompleted {
		t.Fatalf("phase = %s, want %s", got, models.PhaseCompleted)
	}
}

func TestAppealBlocksAcksUntilDecided(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)

	if err := env.engine.Acknowledge(env.ctx, env.admin); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := env.engine.SubmitAppeal(env.ctx, env.seller, "price dispute"); err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if got := env.phase(); got != models.PhaseAppealReview {
		t.Fatalf("phase = %s, want %s", got, models.PhaseAppealReview)
	}

	wantKind(t, env.engine.Acknowledge(env.ctx, env.buyer), KindInvalidTransition)
	wantKind(t, env.engine.SubmitAppeal(env.ctx, env.buyer, "me too"), KindAppealAlreadyActive)

	// A participant who already acknowledged cannot later appeal.
	env2 := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env2, 12)
	if err := env2.engine.Acknowledge(env2.ctx, env2.seller); err != nil {
		t.Fatalf("ack: %v", err)
	}
	wantKind(t, env2.engine.SubmitAppeal(env2.ctx, env2.seller, "changed my mind"), KindInvalidTransition)
}

func TestRejectedAppealLetsResultStand(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)

	if err := env.engine.SubmitAppeal(env.ctx, env.seller, "dispute"); err != nil {
		t.Fatalf("appeal: %v", err)
	}
	wantKind(t, env.engine.DecideAppeal(env.ctx, env.seller, false, ""), KindNotAuthorized)
	if err := env.engine.DecideAppeal(env.ctx, env.admin, false, "result stands"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got := env.phase(); got != models.PhaseAwaitingAppealAck {
		t.Fatalf("phase = %s, want %s", got, models.PhaseAwaitingAppealAck)
	}

	for _, id := range env.participantIDs() {
		if err := env.engine.AcknowledgeAppeal(env.ctx, id); err != nil {
			t.Fatalf("appeal ack: %v", err)
		}
	}

	// Result stands: board advanced, budgets untouched by the appeal.
	if got := env.phase(); got != models.PhasePreview {
		t.Fatalf("phase = %s, want %s", got, models.PhasePreview)
	}
	if got := env.budget(env.buyer); got != 38 {
		t.Fatalf("winner budget = %d, want 38", got)
	}
	if got := env.budget(env.seller); got != 32 {
		t.Fatalf("seller budget = %d, want 32", got)
	}
}

func TestAcceptedAppealReversesClose(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 5) // buyer's opening offer at 5

	if err := env.engine.SubmitBid(env.ctx, env.admin, 12, ""); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := env.engine.CloseAuction(env.ctx, env.admin); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := env.budget(env.admin); got != 88 {
		t.Fatalf("winner budget = %d, want 88", got)
	}

	if err := env.engine.SubmitAppeal(env.ctx, env.buyer, "disputed bid"); err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if err := env.engine.DecideAppeal(env.ctx, env.admin, true, "bid invalid"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	for _, id := range env.participantIDs() {
		if err := env.engine.AcknowledgeAppeal(env.ctx, id); err != nil {
			t.Fatalf("appeal ack: %v", err)
		}
	}

	// Close reversed: budgets restored, item back with the seller.
	if got := env.budget(env.admin); got != 100 {
		t.Fatalf("winner budget = %d after reversal, want 100", got)
	}
	if got := env.budget(env.seller); got != 20 {
		t.Fatalf("seller budget = %d after reversal, want 20", got)
	}

	env.engine.mu.Lock()
	item := env.engine.board.CurrentItem()
	a := env.engine.auction
	env.engine.mu.Unlock()
	if item.Outcome != models.OutcomePending {
		t.Fatalf("outcome = %s, want %s", item.Outcome, models.OutcomePending)
	}
	if item.OwnerID == nil || *item.OwnerID != env.seller {
		t.Fatal("ownership not restored to seller")
	}

	// Bid log truncated to before the disputed bid; opening offer survives.
	if len(a.Bids) != 1 || a.Bids[0].ParticipantID != env.buyer {
		t.Fatalf("bid log = %+v, want only the opening offer", a.Bids)
	}
	if a.CurrentPrice != 5 {
		t.Fatalf("restored price = %d, want 5", a.CurrentPrice)
	}

	// The item waits on the resume barrier, then re-runs with a full window.
	if got := env.phase(); got != models.PhaseAwaitingResume {
		t.Fatalf("phase = %s, want %s", got, models.PhaseAwaitingResume)
	}
	env.markAllReady(t, models.BarrierResumeAppeal)
	if got := env.phase(); got != models.PhaseAuction {
		t.Fatalf("phase = %s, want %s after resume", got, models.PhaseAuction)
	}
	deadline, ok := env.engine.NextDeadline()
	if !ok {
		t.Fatal("auction timer not re-armed")
	}
	if got := deadline.Sub(env.clock.Now()); got != DefaultConfig().AuctionTime {
		t.Fatalf("re-armed window = %s, want a full %s", got, DefaultConfig().AuctionTime)
	}
}

func TestGoBackRestoresPreviousItem(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)
	if err := env.engine.ForceAllAck(env.ctx, env.admin); err != nil {
		t.Fatalf("force ack: %v", err)
	}

	wantKind(t, env.engine.GoBack(env.ctx, env.buyer), KindNotAuthorized)

	if err := env.engine.GoBack(env.ctx, env.admin); err != nil {
		t.Fatalf("go back: %v", err)
	}

	env.engine.mu.Lock()
	idx := env.engine.board.CurrentIndex
	item := env.engine.board.CurrentItem()
	env.engine.mu.Unlock()
	if idx != 0 {
		t.Fatalf("cursor = %d, want 0", idx)
	}
	if item.Outcome != models.OutcomePending {
		t.Fatalf("outcome = %s, want %s", item.Outcome, models.OutcomePending)
	}
	if item.OwnerID == nil || *item.OwnerID != env.seller {
		t.Fatal("ownership not restored")
	}
	if got := env.budget(env.buyer); got != 50 {
		t.Fatalf("buyer budget = %d, want refunded 50", got)
	}
	if got := env.budget(env.seller); got != 20 {
		t.Fatalf("seller budget = %d, want debited back to 20", got)
	}

	wantKind(t, env.engine.GoBack(env.ctx, env.admin), KindAtStart)
}

func TestGoBackRejectedMidItem(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toAuction(t, 10)

	wantKind(t, env.engine.GoBack(env.ctx, env.admin), KindInvalidTransition)
}

func TestFailedAdvanceRetriesViaAcknowledge(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	closeAt(t, env, 12)

	if err := env.engine.Acknowledge(env.ctx, env.admin); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := env.engine.Acknowledge(env.ctx, env.seller); err != nil {
		t.Fatalf("ack: %v", err)
	}

	// The gate fills but the cursor write fails.
	env.store.failNext = errors.New("connection reset")
	if err := env.engine.Acknowledge(env.ctx, env.buyer); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if got := env.phase(); got != models.PhasePendingAck {
		t.Fatalf("phase = %s after failed advance, want %s", got, models.PhasePendingAck)
	}
	env.engine.mu.Lock()
	ackIntact := env.engine.ack != nil && env.engine.ack.Satisfied()
	idx := env.engine.board.CurrentIndex
	env.engine.mu.Unlock()
	if !ackIntact {
		t.Fatal("ack gate lost on failed advance")
	}
	if idx != 0 {
		t.Fatalf("cursor = %d after failed advance, want 0", idx)
	}

	// Replaying the same acknowledgment completes the advance.
	if err := env.engine.Acknowledge(env.ctx, env.buyer); err != nil {
		t.Fatalf("retry ack: %v", err)
	}
	if got := env.phase(); got != models.PhasePreview {
		t.Fatalf("phase = %s after retry, want %s", got, models.PhasePreview)
	}
	env.engine.mu.Lock()
	idx = env.engine.board.CurrentIndex
	env.engine.mu.Unlock()
	if idx != 1 {
		t.Fatalf("cursor = %d after retry, want 1", idx)
	}
}

func TestGoBackAfterUnchangedCloseKeepsOwner(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 20, 50)
	env.toNomination(t)

	// No offer before the window expires: the item passes unchanged.
	env.clock.Advance(DefaultConfig().OfferTime + time.Second)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline: %v", err)
	}
	if err := env.engine.ForceAllAck(env.ctx, env.admin); err != nil {
		t.Fatalf("force ack: %v", err)
	}

	if err := env.engine.GoBack(env.ctx, env.admin); err != nil {
		t.Fatalf("go back: %v", err)
	}

	env.engine.mu.Lock()
	item := env.engine.board.CurrentItem()
	env.engine.mu.Unlock()
	if item.OwnerID == nil || *item.OwnerID != env.seller {
		t.Fatal("reverting an unchanged item must not touch its owner")
	}
	if got := env.budget(env.seller); got != 20 {
		t.Fatalf("seller budget = %d, want untouched 20", got)
	}

	// No transfer happened, so the revert carries no ownership or budget
	// reversal for the store to apply.
	env.store.mu.Lock()
	revert := env.store.reverts[len(env.store.reverts)-1]
	env.store.mu.Unlock()
	if revert.WinnerID != nil || revert.RestoreOwner != nil || revert.WinnerRefund != 0 {
		t.Fatalf("revert params carry a transfer reversal: %+v", revert)
	}
}
