package game

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/player"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/terrain"
)

// mockSender captures sent messages for testing
type mockSender struct {
	mu       sync.Mutex
	messages []any
}

func (m *mockSender) SendJSON(msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockSender) all() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.messages...)
}

func (m *mockSender) reset() {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
}

// openGround has no solid tiles
type openGround struct{}

func (openGround) Chunk(cx, cy int) terrain.Chunk { return terrain.Chunk{X: cx, Y: cy} }
func (openGround) Solid(tx, ty int) bool          { return false }
func (openGround) Palette() terrain.Palette       { return terrain.Palette{} }

// wallGround is solid for every tile at or beyond x = 20
type wallGround struct{}

func (wallGround) Chunk(cx, cy int) terrain.Chunk { return terrain.Chunk{X: cx, Y: cy} }
func (wallGround) Solid(tx, ty int) bool          { return tx >= 20 }
func (wallGround) Palette() terrain.Palette       { return terrain.Palette{} }

func newTestInstance(gen terrain.Generator, capacity int) *Instance {
	return NewInstance(terrain.Planet{ID: 3, Name: "Kara"}, gen, capacity, zerolog.Nop())
}

func newPlayer(id int64) *player.Player {
	return player.New(player.Record{ID: id, Username: "p"}, nil)
}

func TestJoinSendsRosterAndBroadcasts(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a, b := &mockSender{}, &mockSender{}

	if err := g.Join(newPlayer(1), a); err != nil {
		t.Fatal(err)
	}
	a.reset()
	if err := g.Join(newPlayer(2), b); err != nil {
		t.Fatal(err)
	}

	bm := b.all()
	if len(bm) != 1 {
		t.Fatalf("expected joiner to get exactly the join response, got %d messages", len(bm))
	}
	resp, ok := bm[0].(protocol.JoinGameResponse)
	if !ok || !resp.Success || len(resp.PlayersInGame) != 2 || resp.GameID != "3" {
		t.Errorf("unexpected join response %+v", bm[0])
	}

	am := a.all()
	if len(am) != 1 {
		t.Fatalf("expected 1 broadcast to existing member, got %d", len(am))
	}
	if j, ok := am[0].(protocol.PlayerJoinedBroadcast); !ok || j.Player.PlayerID != 2 {
		t.Errorf("expected PLAYER_JOINED for 2, got %+v", am[0])
	}
}

func TestJoinResetsHealth(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	p := newPlayer(1)
	p.SetHealth(5)
	if err := g.Join(p, nil); err != nil {
		t.Fatal(err)
	}
	if p.Health() != player.StartingHealth {
		t.Errorf("expected health %f, got %f", player.StartingHealth, p.Health())
	}
}

func TestJoinRejectsWhenFull(t *testing.T) {
	g := newTestInstance(openGround{}, 2)
	g.Join(newPlayer(1), nil)
	g.Join(newPlayer(2), nil)

	s := &mockSender{}
	err := g.Join(newPlayer(3), s)
	if !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if g.PlayerCount() != 2 {
		t.Errorf("expected roster size 2, got %d", g.PlayerCount())
	}
	if len(s.all()) != 0 {
		t.Error("rejected joiner should not receive a roster")
	}
}

func TestJoinRejectsDuplicate(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	p := newPlayer(1)
	g.Join(p, nil)
	if err := g.Join(p, nil); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
	if g.PlayerCount() != 1 {
		t.Errorf("expected 1 player, got %d", g.PlayerCount())
	}
}

func TestLeaveBroadcastsToRemainder(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a, b := &mockSender{}, &mockSender{}
	g.Join(newPlayer(1), a)
	g.Join(newPlayer(2), b)
	a.reset()
	b.reset()

	if err := g.Leave(2); err != nil {
		t.Fatal(err)
	}
	if len(b.all()) != 0 {
		t.Error("leaver should not receive its own departure")
	}
	am := a.all()
	if len(am) != 1 {
		t.Fatalf("expected 1 message, got %d", len(am))
	}
	if l, ok := am[0].(protocol.PlayerLeftBroadcast); !ok || l.PlayerID != 2 {
		t.Errorf("expected PLAYER_LEFT for 2, got %+v", am[0])
	}
	if err := g.Leave(2); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestUpdatePositionUnknownPlayer(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	if err := g.UpdatePosition(9, 0, 0, 0, 0, 0); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestUpdateMovedNeverSentToSelf(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a, b := &mockSender{}, &mockSender{}
	g.Join(newPlayer(1), a)
	g.Join(newPlayer(2), b)
	a.reset()
	b.reset()

	g.Update(1.0 / 60)

	for _, msg := range a.all() {
		if mv, ok := msg.(protocol.PlayerMovedBroadcast); ok && mv.PlayerID == 1 {
			t.Error("player 1 received its own movement")
		}
	}
	var got bool
	for _, msg := range b.all() {
		if mv, ok := msg.(protocol.PlayerMovedBroadcast); ok && mv.PlayerID == 1 {
			got = true
		}
	}
	if !got {
		t.Error("player 2 should receive player 1's movement")
	}
}

func TestUpdateUnresolvedSessionBroadcastsToAll(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a := &mockSender{}
	g.Join(newPlayer(1), a)
	g.Join(newPlayer(2), nil)
	a.reset()

	g.Update(1.0 / 60)

	var got bool
	for _, msg := range a.all() {
		if mv, ok := msg.(protocol.PlayerMovedBroadcast); ok && mv.PlayerID == 2 {
			got = true
		}
	}
	if !got {
		t.Error("movement of a player without a session should reach the roster")
	}
}

func TestUpdateRollsBackIntoSolid(t *testing.T) {
	g := newTestInstance(wallGround{}, 4)
	p := newPlayer(1)
	g.Join(p, nil)

	// just left of the wall at x = 20 tiles
	x := 20*terrain.TileSize - HurtboxHalf - 1
	g.UpdatePosition(1, x, 100, 600, 0, 0)
	g.Update(0.1)

	px, _ := p.Position()
	if px != x {
		t.Errorf("expected rollback to %f, got %f", x, px)
	}
	g.mu.Lock()
	m := g.members[1]
	vx := m.VX
	g.mu.Unlock()
	if vx != 0 {
		t.Errorf("expected velocity zeroed, got %f", vx)
	}
}

func TestUpdateMovesFreely(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	p := newPlayer(1)
	g.Join(p, nil)
	g.UpdatePosition(1, 100, 100, 60, 0, 0)
	g.Update(0.5)
	x, _ := p.Position()
	if math.Abs(x-130) > 1e-9 {
		t.Errorf("expected x 130, got %f", x)
	}
}

func TestMeleeHitInFront(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a := &mockSender{}
	pa, pb := newPlayer(1), newPlayer(2)
	g.Join(pa, a)
	g.Join(pb, nil)
	g.UpdatePosition(1, 0, 0, 0, 0, 0)
	g.UpdatePosition(2, 10, 0, 0, 0, 0)
	a.reset()

	if err := g.Attack(1, 2); err != nil {
		t.Fatalf("expected hit, got %v", err)
	}
	if pb.Health() != player.StartingHealth-MeleeDamage {
		t.Errorf("expected health %f, got %f", player.StartingHealth-MeleeDamage, pb.Health())
	}
	var damaged bool
	for _, msg := range a.all() {
		if d, ok := msg.(protocol.PlayerDamagedBroadcast); ok && d.PlayerID == 2 && d.DealerID == 1 {
			damaged = true
		}
	}
	if !damaged {
		t.Error("expected PLAYER_DAMAGED broadcast")
	}
}

func TestMeleeBehindNeverHits(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	pa, pb := newPlayer(1), newPlayer(2)
	g.Join(pa, nil)
	g.Join(pb, nil)

	for _, d := range []float64{1, 10, 30, MeleeRange} {
		g.UpdatePosition(1, 100, 100, 0, 0, 0)
		g.UpdatePosition(2, 100-d, 100, 0, 0, 0)
		if err := g.Attack(1, 2); !errors.Is(err, ErrOutsideArc) {
			t.Errorf("distance %f: expected ErrOutsideArc, got %v", d, err)
		}
	}
	if pb.Health() != player.StartingHealth {
		t.Errorf("target behind attacker should be unharmed, got %f", pb.Health())
	}
}

func TestMeleeArcAcrossWraparound(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	g.Join(newPlayer(1), nil)
	g.Join(newPlayer(2), nil)
	// facing just below 2π, target slightly above the x axis
	g.UpdatePosition(1, 0, 0, 0, 0, physics.TwoPi-0.1)
	g.UpdatePosition(2, 20, 2, 0, 0, 0)
	if err := g.Attack(1, 2); err != nil {
		t.Errorf("expected hit across the wraparound, got %v", err)
	}
}

func TestMeleeOutOfRange(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	g.Join(newPlayer(1), nil)
	g.Join(newPlayer(2), nil)
	g.UpdatePosition(1, 0, 0, 0, 0, 0)
	g.UpdatePosition(2, MeleeRange+1, 0, 0, 0, 0)
	if err := g.Attack(1, 2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestMeleeKillRemovesTarget(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	a := &mockSender{}
	g.Join(newPlayer(1), a)
	g.Join(newPlayer(2), nil)
	g.UpdatePosition(1, 0, 0, 0, 0, 0)
	g.UpdatePosition(2, 10, 0, 0, 0, 0)

	var victim int64
	g.OnKilled = func(m *Member, killerID int64) { victim = m.Player.ID }

	for i := 0; i < 4; i++ {
		if err := g.Attack(1, 2); err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
	}
	if g.PlayerCount() != 1 {
		t.Errorf("killed player should leave the roster, got %d players", g.PlayerCount())
	}
	if victim != 2 {
		t.Errorf("expected kill hook for 2, got %d", victim)
	}

	var killed bool
	for _, msg := range a.all() {
		if k, ok := msg.(protocol.PlayerKilledBroadcast); ok && k.PlayerID == 2 && k.KillerID == 1 {
			killed = true
		}
	}
	if !killed {
		t.Error("expected PLAYER_KILLED broadcast")
	}

	a.reset()
	g.Update(1.0 / 60)
	for _, msg := range a.all() {
		if mv, ok := msg.(protocol.PlayerMovedBroadcast); ok && mv.PlayerID == 2 {
			t.Error("killed player should be absent from the next roster broadcast")
		}
	}
	if err := g.Attack(1, 2); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame for a removed target, got %v", err)
	}
}

type countingAI struct{ steps int }

func (c *countingAI) Step(float64) { c.steps++ }

func TestUpdateStepsAI(t *testing.T) {
	g := newTestInstance(openGround{}, 4)
	ai := &countingAI{}
	g.AI = ai
	g.Update(1.0 / 60)
	g.Update(1.0 / 60)
	if ai.steps != 2 {
		t.Errorf("expected 2 AI steps, got %d", ai.steps)
	}
	if g.Tick() != 2 {
		t.Errorf("expected tick 2, got %d", g.Tick())
	}
}
