//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/internal/testutil"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	m.Run()
}

func setup(t *testing.T) {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
}

// createTestUser is a helper that inserts a user and returns it.
func createTestUser(t *testing.T, repo *UserRepo, suffix string) *model.User {
	t.Helper()
	u, err := repo.Upsert(context.Background(), "google", "provider-"+suffix, "User "+suffix, "https://avatar/"+suffix)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

// createTestGame is a helper that inserts a forest game with two seats.
func createTestGame(t *testing.T, gameRepo *GameRepo, hostID, name string) *model.Game {
	t.Helper()
	g, err := gameRepo.Create(context.Background(), uuid.NewString(), name, hostID, "foret", nil)
	if err != nil {
		t.Fatalf("create test game: %v", err)
	}
	for seat := 1; seat <= 2; seat++ {
		p := model.Player{GameID: g.ID, Seat: seat, DisplayName: "Seat", IsBot: seat == 2, Alive: true, Tokens: 100, Health: 3}
		if seat == 1 {
			p.UserID = hostID
		}
		if err := gameRepo.AddPlayer(context.Background(), p); err != nil {
			t.Fatalf("add player: %v", err)
		}
	}
	return g
}

// --- UserRepo Tests ---

func TestUserUpsertCreates(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)

	u, err := repo.Upsert(context.Background(), "google", "goog-123", "Alice", "https://avatar/alice")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if u.Provider != "google" || u.ProviderID != "goog-123" {
		t.Fatalf("unexpected provider data: %s / %s", u.Provider, u.ProviderID)
	}
	if u.DisplayName != "Alice" {
		t.Fatalf("expected display name Alice, got %s", u.DisplayName)
	}
}

func TestUserUpsertUpdates(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)

	u1, err := repo.Upsert(context.Background(), "google", "goog-456", "Bob", "https://old")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	u2, err := repo.Upsert(context.Background(), "google", "goog-456", "Bobby", "https://new")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if u1.ID != u2.ID {
		t.Fatalf("upsert should return same ID: %s vs %s", u1.ID, u2.ID)
	}
	if u2.DisplayName != "Bobby" {
		t.Fatalf("expected updated name Bobby, got %s", u2.DisplayName)
	}
}

func TestUserFindByID(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)

	created, _ := repo.Upsert(context.Background(), "google", "goog-find", "FindMe", "")
	found, err := repo.FindByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatal("expected to find user by ID")
	}

	// Not found
	notFound, err := repo.FindByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if notFound != nil {
		t.Fatal("expected nil for missing user")
	}
}

// --- GameRepo Tests ---

func TestGameCreateDefaults(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)

	host := createTestUser(t, userRepo, "host")

	g, err := gameRepo.Create(context.Background(), uuid.NewString(), "Evening One", host.ID, "foret", json.RawMessage(`{"bots":{"bet_max":40}}`))
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if g.Status != "waiting" {
		t.Fatalf("expected waiting status, got %s", g.Status)
	}
	if g.Round != 0 || g.Phase != "" {
		t.Fatalf("expected zero round cursor, got round=%d phase=%q", g.Round, g.Phase)
	}
	if g.PhaseLocked {
		t.Fatal("expected phase unlocked on creation")
	}
}

func TestGameSeatsAndLedger(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)

	host := createTestUser(t, userRepo, "seats")
	g := createTestGame(t, gameRepo, host.ID, "Seats")

	next, err := gameRepo.NextSeat(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("next seat: %v", err)
	}
	if next != 3 {
		t.Fatalf("expected next seat 3, got %d", next)
	}

	if err := gameRepo.UpdateLedger(context.Background(), g.ID, 1, 60, 2, 5, true); err != nil {
		t.Fatalf("update ledger: %v", err)
	}
	players, _ := gameRepo.ListPlayers(context.Background(), g.ID)
	if players[0].Tokens != 60 || players[0].Health != 2 || players[0].Score != 5 {
		t.Fatalf("unexpected ledger after update: %+v", players[0])
	}
}

func TestGameStartAndPhaseCursor(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)

	host := createTestUser(t, userRepo, "cursor")
	g := createTestGame(t, gameRepo, host.ID, "Cursor")

	if err := gameRepo.Start(context.Background(), g.ID, "stakes"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	found, _ := gameRepo.FindByID(context.Background(), g.ID)
	if found.Status != "active" || found.Round != 1 || found.Phase != "stakes" {
		t.Fatalf("unexpected cursor after start: %+v", found)
	}
	if found.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	// Start is a no-op on an active game
	if err := gameRepo.Start(context.Background(), g.ID, "combat"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	found, _ = gameRepo.FindByID(context.Background(), g.ID)
	if found.Phase != "stakes" {
		t.Fatalf("second start should not move phase, got %s", found.Phase)
	}

	if err := gameRepo.SetPhase(context.Background(), g.ID, 2, "positions", true); err != nil {
		t.Fatalf("set phase: %v", err)
	}
	found, _ = gameRepo.FindByID(context.Background(), g.ID)
	if found.Round != 2 || found.Phase != "positions" || !found.PhaseLocked {
		t.Fatalf("unexpected cursor after set phase: %+v", found)
	}

	if err := gameRepo.SetPhaseLock(context.Background(), g.ID, false); err != nil {
		t.Fatalf("set phase lock: %v", err)
	}
	found, _ = gameRepo.FindByID(context.Background(), g.ID)
	if found.PhaseLocked {
		t.Fatal("expected phase unlocked")
	}
}

func TestGameAdvanceStep(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)

	host := createTestUser(t, userRepo, "step")
	g := createTestGame(t, gameRepo, host.ID, "Step")
	gameRepo.Start(context.Background(), g.ID, "stakes")
	gameRepo.SetPhase(context.Background(), g.ID, 4, "shop", false)

	if err := gameRepo.AdvanceStep(context.Background(), g.ID, 1, "rivieres", "crossing"); err != nil {
		t.Fatalf("advance step: %v", err)
	}
	found, _ := gameRepo.FindByID(context.Background(), g.ID)
	if found.Step != 1 || found.GameType != "rivieres" || found.Round != 1 || found.Phase != "crossing" {
		t.Fatalf("unexpected game after advance: %+v", found)
	}
}

// --- RoundRepo Tests ---

func TestRoundMarkResolvedOnce(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	roundRepo := NewRoundRepo(testDB)

	host := createTestUser(t, userRepo, "marker")
	g := createTestGame(t, gameRepo, host.ID, "Marker")

	first, err := roundRepo.MarkResolved(context.Background(), g.ID, 1, "bets")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if !first {
		t.Fatal("expected first mark to win")
	}

	second, err := roundRepo.MarkResolved(context.Background(), g.ID, 1, "bets")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second {
		t.Fatal("expected second mark to lose")
	}

	resolved, _ := roundRepo.IsResolved(context.Background(), g.ID, 1, "bets")
	if !resolved {
		t.Fatal("expected step resolved")
	}
	other, _ := roundRepo.IsResolved(context.Background(), g.ID, 1, "shop")
	if other {
		t.Fatal("expected other step unresolved")
	}
}

func TestRoundRankingRoundTrip(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	roundRepo := NewRoundRepo(testDB)

	host := createTestUser(t, userRepo, "rank")
	g := createTestGame(t, gameRepo, host.ID, "Rank")

	entries := []model.RankingEntry{
		{GameID: g.ID, Round: 1, Seat: 2, Rank: 1, EffectiveBid: 30, Submitted: true},
		{GameID: g.ID, Round: 1, Seat: 1, Rank: 2, EffectiveBid: 10, TieGroup: 0, Submitted: true},
	}
	if err := roundRepo.SaveRanking(context.Background(), entries); err != nil {
		t.Fatalf("save ranking: %v", err)
	}

	got, err := roundRepo.RankingForRound(context.Background(), g.ID, 1)
	if err != nil {
		t.Fatalf("ranking for round: %v", err)
	}
	if len(got) != 2 || got[0].Seat != 2 || got[1].Seat != 1 {
		t.Fatalf("unexpected ranking: %+v", got)
	}
}

func TestRoundSubmissionsAndPurchases(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	roundRepo := NewRoundRepo(testDB)

	host := createTestUser(t, userRepo, "locked")
	g := createTestGame(t, gameRepo, host.ID, "Locked")

	subs := []model.Submission{
		{GameID: g.ID, Round: 1, Seat: 1, Category: "bet", Requested: json.RawMessage(`{"amount":30}`), Effective: json.RawMessage(`{"amount":30}`)},
		{GameID: g.ID, Round: 1, Seat: 2, Category: "bet", Requested: json.RawMessage(`{"amount":120}`), Effective: json.RawMessage(`{"amount":0}`)},
	}
	if err := roundRepo.SaveSubmissions(context.Background(), subs); err != nil {
		t.Fatalf("save submissions: %v", err)
	}
	got, err := roundRepo.SubmissionsForRound(context.Background(), g.ID, 1, "bet")
	if err != nil {
		t.Fatalf("submissions for round: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(got))
	}

	purchases := []model.Purchase{
		{GameID: g.ID, Round: 1, Seat: 1, Item: "torch", Approved: true, Price: 20, Reason: "purchased"},
		{GameID: g.ID, Round: 1, Seat: 2, Approved: false, Reason: "insufficient tokens"},
	}
	if err := roundRepo.SavePurchases(context.Background(), purchases); err != nil {
		t.Fatalf("save purchases: %v", err)
	}
	gotP, err := roundRepo.PurchasesForRound(context.Background(), g.ID, 1)
	if err != nil {
		t.Fatalf("purchases for round: %v", err)
	}
	if len(gotP) != 2 || !gotP[0].Approved || gotP[1].Approved {
		t.Fatalf("unexpected purchases: %+v", gotP)
	}
}

func TestRoundInventoryLifecycle(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	roundRepo := NewRoundRepo(testDB)

	host := createTestUser(t, userRepo, "inv")
	g := createTestGame(t, gameRepo, host.ID, "Inventory")

	roundRepo.AddInventory(context.Background(), g.ID, 1, "stone", 1)
	roundRepo.AddInventory(context.Background(), g.ID, 1, "stone", 1)
	roundRepo.AddInventory(context.Background(), g.ID, 1, "shield", 1)

	items, err := roundRepo.Inventory(context.Background(), g.ID, 1)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 stacks, got %d", len(items))
	}
	for _, it := range items {
		if it.Item == "stone" && it.Quantity != 2 {
			t.Fatalf("expected 2 stones, got %d", it.Quantity)
		}
	}

	if err := roundRepo.ConsumeInventory(context.Background(), g.ID, 1, "shield"); err != nil {
		t.Fatalf("consume shield: %v", err)
	}
	if err := roundRepo.ConsumeInventory(context.Background(), g.ID, 1, "shield"); err == nil {
		t.Fatal("expected error consuming empty stack")
	}
}

// --- DuelRepo Tests ---

func TestDuelDecisionsAndResolve(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	duelRepo := NewDuelRepo(testDB)

	host := createTestUser(t, userRepo, "duel")
	g := createTestGame(t, gameRepo, host.ID, "Duel")

	d, err := duelRepo.Create(context.Background(), uuid.NewString(), g.ID, 1, 1, 2, false)
	if err != nil {
		t.Fatalf("create duel: %v", err)
	}
	if d.DecisionA != nil || d.DecisionB != nil {
		t.Fatal("expected no decisions on creation")
	}

	if err := duelRepo.SetDecision(context.Background(), d.ID, 1, true); err != nil {
		t.Fatalf("set decision A: %v", err)
	}
	if err := duelRepo.SetDecision(context.Background(), d.ID, 2, false); err != nil {
		t.Fatalf("set decision B: %v", err)
	}
	// Seat outside the pairing is rejected
	if err := duelRepo.SetDecision(context.Background(), d.ID, 9, true); err == nil {
		t.Fatal("expected error for foreign seat")
	}

	found, _ := duelRepo.FindByID(context.Background(), d.ID)
	if found.DecisionA == nil || !*found.DecisionA {
		t.Fatal("expected decision A true")
	}
	if found.DecisionB == nil || *found.DecisionB {
		t.Fatal("expected decision B false")
	}

	if err := duelRepo.Resolve(context.Background(), d.ID, 4, -2, 0, 2); err != nil {
		t.Fatalf("resolve duel: %v", err)
	}
	if err := duelRepo.Resolve(context.Background(), d.ID, 1, 1, 1, 1); err == nil {
		t.Fatal("expected error resolving twice")
	}
	// Decisions freeze once resolved
	if err := duelRepo.SetDecision(context.Background(), d.ID, 1, false); err == nil {
		t.Fatal("expected error deciding on resolved duel")
	}

	found, _ = duelRepo.FindByID(context.Background(), d.ID)
	if found.DeltaA != 4 || found.DeltaB != -2 || found.ConfiscatedB != 2 {
		t.Fatalf("unexpected outcome: %+v", found)
	}
	if found.ResolvedAt == nil {
		t.Fatal("expected resolved_at to be set")
	}
}

// --- RiverRepo Tests ---

func TestRiverStateLifecycle(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	riverRepo := NewRiverRepo(testDB)

	host := createTestUser(t, userRepo, "river")
	g := createTestGame(t, gameRepo, host.ID, "River")

	seats := []model.RiverSeat{{Seat: 1}, {Seat: 2}}
	if err := riverRepo.Init(context.Background(), g.ID, seats); err != nil {
		t.Fatalf("init river: %v", err)
	}
	// Init twice is a no-op
	if err := riverRepo.Init(context.Background(), g.ID, seats); err != nil {
		t.Fatalf("second init: %v", err)
	}

	st, err := riverRepo.State(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("river state: %v", err)
	}
	if st.Level != 1 || st.Pot != 0 || len(st.Seats) != 2 {
		t.Fatalf("unexpected initial state: %+v", st)
	}

	if err := riverRepo.SetLevel(context.Background(), g.ID, 2, 30); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if err := riverRepo.UpdateSeat(context.Background(), model.RiverSeat{
		GameID: g.ID, Seat: 2, Status: "out", Stake: 0, ValidatedLevels: 1, ExitOrder: 1,
	}); err != nil {
		t.Fatalf("update seat: %v", err)
	}

	st, _ = riverRepo.State(context.Background(), g.ID)
	if st.Level != 2 || st.Pot != 30 {
		t.Fatalf("unexpected state after level change: %+v", st)
	}
	if st.Seats[1].Status != "out" || st.Seats[1].ExitOrder != 1 {
		t.Fatalf("unexpected seat after update: %+v", st.Seats[1])
	}
}

// --- AuditRepo Tests ---

func TestAuditStreamsSeparation(t *testing.T) {
	setup(t)
	userRepo := NewUserRepo(testDB)
	gameRepo := NewGameRepo(testDB)
	auditRepo := NewAuditRepo(testDB)

	host := createTestUser(t, userRepo, "audit")
	g := createTestGame(t, gameRepo, host.ID, "Audit")

	auditRepo.Append(context.Background(), g.ID, 1, model.AudiencePublic, "The stakes are set.")
	auditRepo.Append(context.Background(), g.ID, 1, model.AudienceMaster, "Seat 1 bid 30, seat 2 bid 0.")

	public, err := auditRepo.ListByGame(context.Background(), g.ID, model.AudiencePublic)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 1 {
		t.Fatalf("expected 1 public entry, got %d", len(public))
	}

	master, err := auditRepo.ListByGame(context.Background(), g.ID, model.AudienceMaster)
	if err != nil {
		t.Fatalf("list master: %v", err)
	}
	if len(master) != 2 {
		t.Fatalf("expected master to include public rows, got %d", len(master))
	}
}
