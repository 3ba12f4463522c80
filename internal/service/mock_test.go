package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clemgrim/veillee/internal/model"
)

type mockGameRepo struct {
	games   map[string]*model.Game
	players map[string][]model.Player
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{
		games:   make(map[string]*model.Game),
		players: make(map[string][]model.Player),
	}
}

func (m *mockGameRepo) Create(_ context.Context, id, name, hostID, gameType string, settings json.RawMessage) (*model.Game, error) {
	g := &model.Game{
		ID:        id,
		Name:      name,
		HostID:    hostID,
		GameType:  gameType,
		Status:    "waiting",
		Settings:  settings,
		CreatedAt: time.Now(),
	}
	m.games[id] = g
	return g, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.Players = append([]model.Player(nil), m.players[id]...)
	return &cp, nil
}

func (m *mockGameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "waiting" {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	seen := make(map[string]bool)
	var result []model.Game
	for gameID, players := range m.players {
		for _, p := range players {
			if p.UserID == userID && !seen[gameID] {
				if g, ok := m.games[gameID]; ok {
					result = append(result, *g)
					seen[gameID] = true
				}
			}
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "active" {
			cp := *g
			cp.Players = append([]model.Player(nil), m.players[g.ID]...)
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockGameRepo) AddPlayer(_ context.Context, p model.Player) error {
	m.players[p.GameID] = append(m.players[p.GameID], p)
	return nil
}

func (m *mockGameRepo) ListPlayers(_ context.Context, gameID string) ([]model.Player, error) {
	return append([]model.Player(nil), m.players[gameID]...), nil
}

func (m *mockGameRepo) NextSeat(_ context.Context, gameID string) (int, error) {
	max := 0
	for _, p := range m.players[gameID] {
		if p.Seat > max {
			max = p.Seat
		}
	}
	return max + 1, nil
}

func (m *mockGameRepo) RemovePlayer(_ context.Context, gameID string, seat int) error {
	players := m.players[gameID]
	for i, p := range players {
		if p.Seat == seat {
			m.players[gameID] = append(players[:i], players[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("seat %d not found", seat)
}

func (m *mockGameRepo) UpdateLedger(_ context.Context, gameID string, seat, tokens, health, score int, alive bool) error {
	players := m.players[gameID]
	for i := range players {
		if players[i].Seat == seat {
			players[i].Tokens = tokens
			players[i].Health = health
			players[i].Score = score
			players[i].Alive = alive
			return nil
		}
	}
	return fmt.Errorf("seat %d not found", seat)
}

func (m *mockGameRepo) Start(_ context.Context, gameID, phase string) error {
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game not found")
	}
	g.Status = "active"
	g.Round = 1
	g.Phase = phase
	now := time.Now()
	g.StartedAt = &now
	return nil
}

func (m *mockGameRepo) SetPhase(_ context.Context, gameID string, round int, phase string, locked bool) error {
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game not found")
	}
	g.Round = round
	g.Phase = phase
	g.PhaseLocked = locked
	return nil
}

func (m *mockGameRepo) SetPhaseLock(_ context.Context, gameID string, locked bool) error {
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game not found")
	}
	g.PhaseLocked = locked
	return nil
}

func (m *mockGameRepo) AdvanceStep(_ context.Context, gameID string, step int, gameType, phase string) error {
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game not found")
	}
	g.Step = step
	g.GameType = gameType
	g.Round = 1
	g.Phase = phase
	g.PhaseLocked = false
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game not found")
	}
	g.Status = "finished"
	g.Winner = winner
	now := time.Now()
	g.FinishedAt = &now
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gameID string) error {
	delete(m.games, gameID)
	delete(m.players, gameID)
	return nil
}

// mockUserRepo implements repository.UserRepository for testing.
type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) addUser(id, name string, admin bool) {
	m.users[id] = &model.User{ID: id, DisplayName: name, IsAdmin: admin}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			return u, nil
		}
	}
	m.seq++
	u := &model.User{
		ID:          fmt.Sprintf("user-%d", m.seq),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

type resolvedKey struct {
	gameID string
	round  int
	step   string
}

type mockRoundRepo struct {
	resolved    map[resolvedKey]bool
	submissions []model.Submission
	rankings    map[string][]model.RankingEntry // "gameID:round"
	positions   map[string][]model.Position
	purchases   map[string][]model.Purchase
	inventory   map[string][]model.InventoryItem // "gameID:seat"

	// savePositionsErr is returned (once) by the next SavePositions call.
	savePositionsErr error
}

func newMockRoundRepo() *mockRoundRepo {
	return &mockRoundRepo{
		resolved:  make(map[resolvedKey]bool),
		rankings:  make(map[string][]model.RankingEntry),
		positions: make(map[string][]model.Position),
		purchases: make(map[string][]model.Purchase),
		inventory: make(map[string][]model.InventoryItem),
	}
}

func roundKey(gameID string, round int) string {
	return fmt.Sprintf("%s:%d", gameID, round)
}

func (m *mockRoundRepo) MarkResolved(_ context.Context, gameID string, round int, step string) (bool, error) {
	k := resolvedKey{gameID, round, step}
	if m.resolved[k] {
		return false, nil
	}
	m.resolved[k] = true
	return true, nil
}

func (m *mockRoundRepo) IsResolved(_ context.Context, gameID string, round int, step string) (bool, error) {
	return m.resolved[resolvedKey{gameID, round, step}], nil
}

func (m *mockRoundRepo) SaveSubmissions(_ context.Context, subs []model.Submission) error {
	m.submissions = append(m.submissions, subs...)
	return nil
}

func (m *mockRoundRepo) SubmissionsForRound(_ context.Context, gameID string, round int, category string) ([]model.Submission, error) {
	var result []model.Submission
	for _, s := range m.submissions {
		if s.GameID == gameID && s.Round == round && s.Category == category {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockRoundRepo) SaveRanking(_ context.Context, entries []model.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	k := roundKey(entries[0].GameID, entries[0].Round)
	m.rankings[k] = append([]model.RankingEntry(nil), entries...)
	return nil
}

func (m *mockRoundRepo) RankingForRound(_ context.Context, gameID string, round int) ([]model.RankingEntry, error) {
	return m.rankings[roundKey(gameID, round)], nil
}

func (m *mockRoundRepo) SavePositions(_ context.Context, positions []model.Position) error {
	if m.savePositionsErr != nil {
		err := m.savePositionsErr
		m.savePositionsErr = nil
		return err
	}
	if len(positions) == 0 {
		return nil
	}
	k := roundKey(positions[0].GameID, positions[0].Round)
	m.positions[k] = append([]model.Position(nil), positions...)
	return nil
}

func (m *mockRoundRepo) PositionsForRound(_ context.Context, gameID string, round int) ([]model.Position, error) {
	return m.positions[roundKey(gameID, round)], nil
}

func (m *mockRoundRepo) SavePurchases(_ context.Context, purchases []model.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	k := roundKey(purchases[0].GameID, purchases[0].Round)
	m.purchases[k] = append(m.purchases[k], purchases...)
	return nil
}

func (m *mockRoundRepo) PurchasesForRound(_ context.Context, gameID string, round int) ([]model.Purchase, error) {
	return m.purchases[roundKey(gameID, round)], nil
}

func seatKey(gameID string, seat int) string {
	return fmt.Sprintf("%s:%d", gameID, seat)
}

func (m *mockRoundRepo) AddInventory(_ context.Context, gameID string, seat int, item string, qty int) error {
	k := seatKey(gameID, seat)
	for i, it := range m.inventory[k] {
		if it.Item == item {
			m.inventory[k][i].Quantity += qty
			m.inventory[k][i].Available = true
			return nil
		}
	}
	m.inventory[k] = append(m.inventory[k], model.InventoryItem{
		GameID: gameID, Seat: seat, Item: item, Quantity: qty, Available: true,
	})
	return nil
}

func (m *mockRoundRepo) Inventory(_ context.Context, gameID string, seat int) ([]model.InventoryItem, error) {
	return append([]model.InventoryItem(nil), m.inventory[seatKey(gameID, seat)]...), nil
}

func (m *mockRoundRepo) ConsumeInventory(_ context.Context, gameID string, seat int, item string) error {
	k := seatKey(gameID, seat)
	for i, it := range m.inventory[k] {
		if it.Item == item && it.Quantity > 0 {
			m.inventory[k][i].Quantity--
			if m.inventory[k][i].Quantity == 0 {
				m.inventory[k][i].Available = false
			}
			return nil
		}
	}
	return fmt.Errorf("no %s in inventory of seat %d", item, seat)
}

type mockDuelRepo struct {
	duels map[string]*model.Duel
}

func newMockDuelRepo() *mockDuelRepo {
	return &mockDuelRepo{duels: make(map[string]*model.Duel)}
}

func (m *mockDuelRepo) Create(_ context.Context, id, gameID string, round, seatA, seatB int, final bool) (*model.Duel, error) {
	d := &model.Duel{
		ID: id, GameID: gameID, Round: round,
		SeatA: seatA, SeatB: seatB, Final: final,
		CreatedAt: time.Now(),
	}
	m.duels[id] = d
	return d, nil
}

func (m *mockDuelRepo) FindByID(_ context.Context, id string) (*model.Duel, error) {
	d, ok := m.duels[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *mockDuelRepo) ListByGame(_ context.Context, gameID string) ([]model.Duel, error) {
	var result []model.Duel
	for _, d := range m.duels {
		if d.GameID == gameID {
			result = append(result, *d)
		}
	}
	return result, nil
}

func (m *mockDuelRepo) SetDecision(_ context.Context, id string, seat int, searches bool) error {
	d, ok := m.duels[id]
	if !ok {
		return fmt.Errorf("duel not found")
	}
	v := searches
	switch seat {
	case d.SeatA:
		d.DecisionA = &v
	case d.SeatB:
		d.DecisionB = &v
	default:
		return fmt.Errorf("seat %d not in duel", seat)
	}
	return nil
}

func (m *mockDuelRepo) Resolve(_ context.Context, id string, deltaA, deltaB, confiscatedA, confiscatedB int) error {
	d, ok := m.duels[id]
	if !ok {
		return fmt.Errorf("duel not found")
	}
	if d.ResolvedAt != nil {
		return fmt.Errorf("duel already resolved")
	}
	d.DeltaA = deltaA
	d.DeltaB = deltaB
	d.ConfiscatedA = confiscatedA
	d.ConfiscatedB = confiscatedB
	now := time.Now()
	d.ResolvedAt = &now
	return nil
}

type mockRiverRepo struct {
	states map[string]*model.RiverState
}

func newMockRiverRepo() *mockRiverRepo {
	return &mockRiverRepo{states: make(map[string]*model.RiverState)}
}

func (m *mockRiverRepo) Init(_ context.Context, gameID string, seats []model.RiverSeat) error {
	m.states[gameID] = &model.RiverState{
		GameID: gameID,
		Level:  1,
		Seats:  append([]model.RiverSeat(nil), seats...),
	}
	return nil
}

func (m *mockRiverRepo) State(_ context.Context, gameID string) (*model.RiverState, error) {
	st, ok := m.states[gameID]
	if !ok {
		return nil, nil
	}
	cp := *st
	cp.Seats = append([]model.RiverSeat(nil), st.Seats...)
	return &cp, nil
}

func (m *mockRiverRepo) SetLevel(_ context.Context, gameID string, level, pot int) error {
	st, ok := m.states[gameID]
	if !ok {
		return fmt.Errorf("no river state")
	}
	st.Level = level
	st.Pot = pot
	return nil
}

func (m *mockRiverRepo) UpdateSeat(_ context.Context, s model.RiverSeat) error {
	st, ok := m.states[s.GameID]
	if !ok {
		return fmt.Errorf("no river state")
	}
	for i := range st.Seats {
		if st.Seats[i].Seat == s.Seat {
			st.Seats[i] = s
			return nil
		}
	}
	st.Seats = append(st.Seats, s)
	return nil
}

type mockAuditRepo struct {
	records []model.AuditRecord
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{}
}

func (m *mockAuditRepo) Append(_ context.Context, gameID string, round int, audience, message string) (*model.AuditRecord, error) {
	rec := model.AuditRecord{
		ID:        fmt.Sprintf("audit-%d", len(m.records)+1),
		GameID:    gameID,
		Round:     round,
		Audience:  audience,
		Message:   message,
		CreatedAt: time.Now(),
	}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *mockAuditRepo) ListByGame(_ context.Context, gameID, audience string) ([]model.AuditRecord, error) {
	var result []model.AuditRecord
	for _, r := range m.records {
		if r.GameID == gameID && r.Audience == audience {
			result = append(result, r)
		}
	}
	return result, nil
}

// mockCache implements repository.SubmissionCache for testing.
type mockCache struct {
	submissions map[string]json.RawMessage // "gameID:seat:category"
	ready       map[string]map[int]bool
	timers      map[string]time.Time
	auto        map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{
		submissions: make(map[string]json.RawMessage),
		ready:       make(map[string]map[int]bool),
		timers:      make(map[string]time.Time),
		auto:        make(map[string]bool),
	}
}

func subKey(gameID string, seat int, category string) string {
	return fmt.Sprintf("%s:%d:%s", gameID, seat, category)
}

func (c *mockCache) SetSubmission(_ context.Context, gameID string, seat int, category string, payload json.RawMessage) error {
	c.submissions[subKey(gameID, seat, category)] = payload
	return nil
}

func (c *mockCache) GetSubmission(_ context.Context, gameID string, seat int, category string) (json.RawMessage, error) {
	return c.submissions[subKey(gameID, seat, category)], nil
}

func (c *mockCache) GetAllSubmissions(_ context.Context, gameID string, category string, seats []int) (map[int]json.RawMessage, error) {
	result := make(map[int]json.RawMessage)
	for _, seat := range seats {
		if data, ok := c.submissions[subKey(gameID, seat, category)]; ok {
			result[seat] = data
		}
	}
	return result, nil
}

func (c *mockCache) MarkReady(_ context.Context, gameID string, seat int) error {
	if c.ready[gameID] == nil {
		c.ready[gameID] = make(map[int]bool)
	}
	c.ready[gameID][seat] = true
	return nil
}

func (c *mockCache) UnmarkReady(_ context.Context, gameID string, seat int) error {
	if c.ready[gameID] != nil {
		delete(c.ready[gameID], seat)
	}
	return nil
}

func (c *mockCache) ReadyCount(_ context.Context, gameID string) (int64, error) {
	return int64(len(c.ready[gameID])), nil
}

func (c *mockCache) ReadySeats(_ context.Context, gameID string) ([]int, error) {
	var result []int
	for seat := range c.ready[gameID] {
		result = append(result, seat)
	}
	return result, nil
}

func (c *mockCache) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	c.timers[gameID] = deadline
	return nil
}

func (c *mockCache) ClearTimer(_ context.Context, gameID string) error {
	delete(c.timers, gameID)
	return nil
}

func (c *mockCache) HasTimer(_ context.Context, gameID string) (bool, error) {
	_, ok := c.timers[gameID]
	return ok, nil
}

func (c *mockCache) SetAutoMode(_ context.Context, gameID string, enabled bool) error {
	c.auto[gameID] = enabled
	return nil
}

func (c *mockCache) AutoMode(_ context.Context, gameID string) (bool, error) {
	return c.auto[gameID], nil
}

func (c *mockCache) ClearPhaseData(_ context.Context, gameID string, seats []int) error {
	delete(c.ready, gameID)
	delete(c.timers, gameID)
	for _, seat := range seats {
		for _, cat := range []string{"bet", "action", "shop", "crossing", "duel"} {
			delete(c.submissions, subKey(gameID, seat, cat))
		}
	}
	return nil
}

func (c *mockCache) DeleteGameData(_ context.Context, gameID string, seats []int) error {
	if err := c.ClearPhaseData(context.Background(), gameID, seats); err != nil {
		return err
	}
	delete(c.auto, gameID)
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	gameID    string
	eventType string
	data      any
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID string, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{gameID, eventType, data})
}

func (b *recordingBroadcaster) has(eventType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}
