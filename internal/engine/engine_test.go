package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dmaas/paddle/internal/models"
)

// fakeStore accepts every write and records call counts so tests can assert
// what was persisted without a database.
type fakeStore struct {
	mu        sync.Mutex
	sessions  []*models.Session
	closes    []CloseParams
	reversals []ReverseParams
	reverts   []RevertParams
	bids      []models.Bid
	failNext  error
}

func (s *fakeStore) takeErr() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *fakeStore) SaveSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *fakeStore) SaveItem(context.Context, uuid.UUID, *models.Item) error { return nil }

func (s *fakeStore) OpenAuction(_ context.Context, _ *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeErr()
}

func (s *fakeStore) AppendBid(_ context.Context, bid models.Bid, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.bids = append(s.bids, bid)
	return nil
}

func (s *fakeStore) CommitClose(_ context.Context, p CloseParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.closes = append(s.closes, p)
	return nil
}

func (s *fakeStore) ReverseClose(_ context.Context, p ReverseParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.reversals = append(s.reversals, p)
	return nil
}

func (s *fakeStore) RecordAck(context.Context, uuid.UUID, uuid.UUID) error       { return nil }
func (s *fakeStore) RecordAppeal(context.Context, *models.Appeal) error          { return nil }
func (s *fakeStore) UpdateAppeal(context.Context, *models.Appeal) error          { return nil }
func (s *fakeStore) RecordAppealAck(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *fakeStore) RevertItem(_ context.Context, p RevertParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.reverts = append(s.reverts, p)
	return nil
}

// recordingSink captures emitted event types in order.
type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingSink) Emit(_ context.Context, _ uuid.UUID, eventType string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingSink) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	sink   *recordingSink
	clock  *clockwork.FakeClock
	ctx    context.Context

	admin  uuid.UUID // also a bidder
	seller uuid.UUID // owns item 0 in steal mode
	buyer  uuid.UUID
	others []uuid.UUID
	itemID uuid.UUID
}

// budgets in test order: admin, seller, buyer, others...
func newTestEnv(t *testing.T, mode models.AuctionMode, budgets ...int64) *testEnv {
	t.Helper()

	env := &testEnv{
		store: &fakeStore{},
		sink:  &recordingSink{},
		clock: clockwork.NewFakeClock(),
		ctx:   context.Background(),
	}

	leagueID := uuid.New()
	env.admin = uuid.New()
	env.seller = uuid.New()
	env.buyer = uuid.New()

	ids := []uuid.UUID{env.admin, env.seller, env.buyer}
	participants := make([]models.Participant, 0, len(budgets))
	for i, budget := range budgets {
		if i >= len(ids) {
			id := uuid.New()
			env.others = append(env.others, id)
			ids = append(ids, id)
		}
		participants = append(participants, models.Participant{
			ID:          ids[i],
			LeagueID:    leagueID,
			DisplayName: "participant",
			Budget:      budget,
			IsAdmin:     i == 0,
			Active:      true,
		})
	}

	env.itemID = uuid.New()
	items := []models.Item{
		{ID: env.itemID, PlayerName: "First Player", BasePrice: 5, Outcome: models.OutcomePending},
		{ID: uuid.New(), PlayerName: "Second Player", BasePrice: 3, Outcome: models.OutcomePending},
	}
	if mode == models.ModeSteal {
		sellerID := env.seller
		items[0].OwnerID = &sellerID
	}
	board := &models.Board{LeagueID: leagueID, Items: items}

	env.engine = New(leagueID, mode, DefaultConfig(), board, participants, env.store, env.sink, env.clock)
	return env
}

func (env *testEnv) participantIDs() []uuid.UUID {
	ids := []uuid.UUID{env.admin, env.seller, env.buyer}
	return append(ids, env.others...)
}

func (env *testEnv) markAllReady(t *testing.T, name models.BarrierName) {
	t.Helper()
	for _, id := range env.participantIDs() {
		if err := env.engine.MarkReady(env.ctx, id, name); err != nil {
			t.Fatalf("mark ready %s: %v", name, err)
		}
	}
}

// toNomination drives a fresh engine to the offer window.
func (env *testEnv) toNomination(t *testing.T) {
	t.Helper()
	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.BeginReadyCheck(env.ctx, env.admin); err != nil {
		t.Fatalf("begin ready check: %v", err)
	}
	env.markAllReady(t, models.BarrierStart)
}

// toAuction drives a fresh engine into a live auction opened by the buyer's
// offer at the given amount.
func (env *testEnv) toAuction(t *testing.T, amount int64) {
	t.Helper()
	env.toNomination(t)
	if err := env.engine.Nominate(env.ctx, env.buyer, amount); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := env.engine.ConfirmNomination(env.ctx, env.buyer); err != nil {
		t.Fatalf("confirm nomination: %v", err)
	}
	env.markAllReady(t, models.BarrierAuctionStart)
}

func (env *testEnv) phase() models.SessionPhase {
	env.engine.mu.Lock()
	defer env.engine.mu.Unlock()
	return env.engine.phase
}

func (env *testEnv) budget(id uuid.UUID) int64 {
	env.engine.mu.Lock()
	defer env.engine.mu.Unlock()
	return env.engine.participants[id].Budget
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s rejection, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s rejection, got %s (%v)", kind, got, err)
	}
}

func TestStartRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)

	wantKind(t, env.engine.Start(env.ctx, env.buyer), KindNotAuthorized)

	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("admin start: %v", err)
	}
	if got := env.phase(); got != models.PhasePreview {
		t.Fatalf("phase = %s, want %s", got, models.PhasePreview)
	}
	wantKind(t, env.engine.Start(env.ctx, env.admin), KindInvalidTransition)
}

func TestStartBarrierGatesNomination(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.BeginReadyCheck(env.ctx, env.admin); err != nil {
		t.Fatalf("begin ready check: %v", err)
	}

	// Two of three ready: still gated.
	if err := env.engine.MarkReady(env.ctx, env.admin, models.BarrierStart); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if err := env.engine.MarkReady(env.ctx, env.seller, models.BarrierStart); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if got := env.phase(); got != models.PhaseReadyCheck {
		t.Fatalf("phase = %s, want %s before barrier fills", got, models.PhaseReadyCheck)
	}

	// Repeat ready is a no-op, not a second count.
	if err := env.engine.MarkReady(env.ctx, env.admin, models.BarrierStart); err != nil {
		t.Fatalf("repeat ready: %v", err)
	}
	if got := env.phase(); got != models.PhaseReadyCheck {
		t.Fatalf("phase = %s, repeat ready must not satisfy barrier", got)
	}

	if err := env.engine.MarkReady(env.ctx, env.buyer, models.BarrierStart); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if got := env.phase(); got != models.PhaseNomination {
		t.Fatalf("phase = %s, want %s after barrier fills", got, models.PhaseNomination)
	}
	if _, ok := env.engine.NextDeadline(); !ok {
		t.Fatal("offer timer not armed after barrier release")
	}
}

func TestForceAllReadyIsAdminOnly(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.BeginReadyCheck(env.ctx, env.admin); err != nil {
		t.Fatalf("begin ready check: %v", err)
	}

	wantKind(t, env.engine.ForceAllReady(env.ctx, env.buyer, models.BarrierStart), KindNotAuthorized)

	if err := env.engine.ForceAllReady(env.ctx, env.admin, models.BarrierStart); err != nil {
		t.Fatalf("force ready: %v", err)
	}
	if got := env.phase(); got != models.PhaseNomination {
		t.Fatalf("phase = %s, want %s after force", got, models.PhaseNomination)
	}
}

func TestBarrierInstancesAreIsolated(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	env.toNomination(t)

	// Readiness for the consumed start barrier does not leak into the
	// auction-start barrier of the same item.
	if err := env.engine.Nominate(env.ctx, env.buyer, 5); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := env.engine.ConfirmNomination(env.ctx, env.buyer); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	env.engine.mu.Lock()
	b := env.engine.barrier
	env.engine.mu.Unlock()
	if b == nil || b.Name != models.BarrierAuctionStart {
		t.Fatalf("barrier = %+v, want fresh %s barrier", b, models.BarrierAuctionStart)
	}
	if b.ReadyCount() != 0 {
		t.Fatalf("fresh barrier has %d ready entries, want 0", b.ReadyCount())
	}

	// Marking ready for the wrong barrier name is rejected.
	wantKind(t, env.engine.MarkReady(env.ctx, env.admin, models.BarrierStart), KindInvalidTransition)
}

func TestPauseFreezesRemainingTime(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	env.toAuction(t, 10)

	env.clock.Advance(10 * time.Second) // 20s of the 30s window left

	if err := env.engine.Pause(env.ctx, env.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := env.phase(); got != models.PhasePaused {
		t.Fatalf("phase = %s, want %s", got, models.PhasePaused)
	}
	if _, ok := env.engine.NextDeadline(); ok {
		t.Fatal("deadline still armed while paused")
	}

	// Bids are rejected while paused.
	wantKind(t, env.engine.SubmitBid(env.ctx, env.admin, 20, ""), KindAuctionClosed)

	// Time passing during the pause must not consume the frozen window.
	env.clock.Advance(5 * time.Minute)
	if err := env.engine.HandleDeadline(env.ctx); err != nil {
		t.Fatalf("handle deadline while paused: %v", err)
	}
	if got := env.phase(); got != models.PhasePaused {
		t.Fatalf("phase = %s, pause must not expire", got)
	}

	if err := env.engine.Resume(env.ctx, env.admin); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := env.phase(); got != models.PhasePaused {
		t.Fatalf("phase = %s, resume waits on the barrier", got)
	}
	env.markAllReady(t, models.BarrierResumePause)

	if got := env.phase(); got != models.PhaseAuction {
		t.Fatalf("phase = %s, want %s after resume barrier", got, models.PhaseAuction)
	}
	deadline, ok := env.engine.NextDeadline()
	if !ok {
		t.Fatal("deadline not re-armed after resume")
	}
	if got := deadline.Sub(env.clock.Now()); got != 20*time.Second {
		t.Fatalf("re-armed window = %s, want the frozen 20s", got)
	}
}

func TestHeartbeatNeverGates(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	env.toNomination(t)

	// No heartbeats at all: transitions still fire on readiness alone.
	if err := env.engine.Nominate(env.ctx, env.buyer, 5); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := env.engine.Heartbeat(env.buyer); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := env.engine.Heartbeat(uuid.New()); KindOf(err) != KindNotFound {
		t.Fatalf("heartbeat from stranger: %v", err)
	}

	snap := env.engine.Snapshot()
	for _, p := range snap.Participants {
		if p.ID == env.buyer && !p.Connected {
			t.Fatal("buyer heartbeat not reflected in snapshot")
		}
		if p.ID == env.admin && p.Connected {
			t.Fatal("admin shown connected without a heartbeat")
		}
	}
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)

	env.store.failNext = errors.New("connection reset")
	if err := env.engine.Start(env.ctx, env.admin); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if got := env.phase(); got != models.PhaseWaiting {
		t.Fatalf("phase = %s after failed start, want %s", got, models.PhaseWaiting)
	}

	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestPauseDuringReadyCheckResumesWithFreshBarrier(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	if err := env.engine.Start(env.ctx, env.admin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.BeginReadyCheck(env.ctx, env.admin); err != nil {
		t.Fatalf("begin ready check: %v", err)
	}
	if err := env.engine.MarkReady(env.ctx, env.admin, models.BarrierStart); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	if err := env.engine.Pause(env.ctx, env.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	// The mid-fill barrier is gone while paused; readiness cannot leak in.
	wantKind(t, env.engine.MarkReady(env.ctx, env.seller, models.BarrierStart), KindInvalidTransition)

	if err := env.engine.Resume(env.ctx, env.admin); err != nil {
		t.Fatalf("resume: %v", err)
	}
	env.markAllReady(t, models.BarrierResumePause)

	if got := env.phase(); got != models.PhaseReadyCheck {
		t.Fatalf("phase = %s, want %s after resume", got, models.PhaseReadyCheck)
	}
	env.engine.mu.Lock()
	b := env.engine.barrier
	env.engine.mu.Unlock()
	if b == nil || b.Name != models.BarrierStart {
		t.Fatalf("barrier = %+v, want a fresh %s barrier", b, models.BarrierStart)
	}
	if b.ReadyCount() != 0 {
		t.Fatalf("restored barrier has %d ready entries, want 0", b.ReadyCount())
	}

	// The restored ready check still gates and still releases.
	env.markAllReady(t, models.BarrierStart)
	if got := env.phase(); got != models.PhaseNomination {
		t.Fatalf("phase = %s, want %s after the restored barrier fills", got, models.PhaseNomination)
	}
}

func TestPauseDuringAuctionReadyCheckResumesWithFreshBarrier(t *testing.T) {
	env := newTestEnv(t, models.ModeSteal, 100, 100, 100)
	env.toNomination(t)
	if err := env.engine.Nominate(env.ctx, env.buyer, 10); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := env.engine.ConfirmNomination(env.ctx, env.buyer); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := env.engine.Pause(env.ctx, env.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.engine.Resume(env.ctx, env.admin); err != nil {
		t.Fatalf("resume: %v", err)
	}
	env.markAllReady(t, models.BarrierResumePause)

	if got := env.phase(); got != models.PhaseAuctionReadyCheck {
		t.Fatalf("phase = %s, want %s after resume", got, models.PhaseAuctionReadyCheck)
	}

	// Force works too: the restored barrier is a real, releasable instance.
	if err := env.engine.ForceAllReady(env.ctx, env.admin, models.BarrierAuctionStart); err != nil {
		t.Fatalf("force ready after resume: %v", err)
	}
	if got := env.phase(); got != models.PhaseAuction {
		t.Fatalf("phase = %s, want %s after force", got, models.PhaseAuction)
	}
	env.engine.mu.Lock()
	price := env.engine.auction.CurrentPrice
	env.engine.mu.Unlock()
	if price != 10 {
		t.Fatalf("auction opened at %d, want the confirmed offer 10", price)
	}
}
