package game

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/player"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/terrain"
)

const (
	DefaultCapacity = 16
	MeleeRange      = 48.0
	MeleeArc        = math.Pi / 4
	MeleeDamage     = 25.0
	HurtboxHalf     = 12.0 // half-size of the square ground hurtbox
)

var (
	ErrFull          = errors.New("game is full")
	ErrAlreadyJoined = errors.New("already in this game")
	ErrNotInGame     = errors.New("player not in this game")
	ErrSelfAttack    = errors.New("cannot attack yourself")
	ErrOutOfRange    = errors.New("target out of range")
	ErrOutsideArc    = errors.New("target outside attack arc")
)

// Sender delivers a message to one session without blocking.
type Sender interface {
	SendJSON(msg any)
}

// Stepper is planet-local AI advanced by the instance tick.
type Stepper interface {
	Step(dt float64)
}

// Member is one grounded player and its server-side kinematics.
type Member struct {
	Player  *player.Player
	Session Sender // nil when the session cannot be resolved

	X, Y       float64
	VX, VY     float64
	Direction  float64
	lastValidX float64
	lastValidY float64
}

func (m *Member) info() protocol.PlayerInfo {
	return protocol.PlayerInfo{
		PlayerID:  m.Player.ID,
		Username:  m.Player.Username,
		X:         m.X,
		Y:         m.Y,
		Health:    m.Player.Health(),
		Direction: m.Direction,
	}
}

// KilledFunc is called after a member was killed and removed from the roster.
type KilledFunc func(victim *Member, killerID int64)

// Instance is the authoritative ground state of one planet.
type Instance struct {
	GameID   string
	Planet   terrain.Planet
	Terrain  terrain.Generator
	Capacity int
	AI       Stepper
	OnKilled KilledFunc
	Logger   zerolog.Logger

	mu      sync.Mutex
	members map[int64]*Member
	tick    uint64
}

// NewInstance creates an empty instance for a planet
func NewInstance(p terrain.Planet, gen terrain.Generator, capacity int, logger zerolog.Logger) *Instance {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Instance{
		GameID:   p.GameID(),
		Planet:   p,
		Terrain:  gen,
		Capacity: capacity,
		Logger:   logger.With().Str("component", "game").Str("game", p.GameID()).Logger(),
		members:  make(map[int64]*Member),
	}
}

// Join adds p to the roster. On success the joiner receives the roster in its
// JOIN_GAME_RESPONSE and everyone else a PLAYER_JOINED_BROADCAST, both
// enqueued before any movement of the joiner can be broadcast.
func (g *Instance) Join(p *player.Player, s Sender) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[p.ID]; ok {
		return ErrAlreadyJoined
	}
	if len(g.members) >= g.Capacity {
		return ErrFull
	}

	p.SetHealth(player.StartingHealth)
	x, y := g.spawnPoint(p)
	m := &Member{Player: p, Session: s, X: x, Y: y, lastValidX: x, lastValidY: y}
	p.SetPosition(x, y)
	p.SetLastPlanet(g.GameID)

	roster := make([]protocol.PlayerInfo, 0, len(g.members)+1)
	for _, o := range g.sortedLocked() {
		roster = append(roster, o.info())
	}
	roster = append(roster, m.info())

	if s != nil {
		s.SendJSON(protocol.JoinGameResponse{
			Type:          protocol.MsgJoinGameResponse,
			Success:       true,
			Message:       "joined " + g.Planet.Name,
			GameID:        g.GameID,
			PlanetName:    g.Planet.Name,
			PlayersInGame: roster,
		})
	}
	g.broadcastLocked(protocol.PlayerJoinedBroadcast{
		Type:   protocol.MsgPlayerJoined,
		GameID: g.GameID,
		Player: m.info(),
	}, nil)

	g.members[p.ID] = m
	g.Logger.Info().Int64("player", p.ID).Int("players", len(g.members)).Msg("player joined")
	return nil
}

// spawnPoint reuses the last ground position on this planet when it is clear,
// otherwise the landing area at the centre.
func (g *Instance) spawnPoint(p *player.Player) (float64, float64) {
	if p.LastPlanet() == g.GameID {
		x, y := p.Position()
		if (x != 0 || y != 0) && !terrain.HitsSolid(g.Terrain, x, y, HurtboxHalf) {
			return x, y
		}
	}
	c := terrain.WorldSize() / 2
	return c, c
}

// Leave removes the player and tells the remaining members.
func (g *Instance) Leave(playerID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[playerID]
	if !ok {
		return ErrNotInGame
	}
	g.removeLocked(m)
	g.Logger.Info().Int64("player", playerID).Int("players", len(g.members)).Msg("player left")
	return nil
}

func (g *Instance) removeLocked(m *Member) {
	delete(g.members, m.Player.ID)
	m.Player.SetPosition(m.X, m.Y)
	g.broadcastLocked(protocol.PlayerLeftBroadcast{
		Type:     protocol.MsgPlayerLeft,
		GameID:   g.GameID,
		PlayerID: m.Player.ID,
	}, nil)
}

// UpdatePosition stores the client-reported state; the next tick validates it.
func (g *Instance) UpdatePosition(playerID int64, x, y, dx, dy, dir float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[playerID]
	if !ok {
		return ErrNotInGame
	}
	m.X, m.Y = x, y
	m.VX, m.VY = dx, dy
	m.Direction = physics.NormalizeAngle(dir)
	return nil
}

// Update advances every member, corrects terrain collisions, fans out the
// positions and steps planet-local AI.
func (g *Instance) Update(dt float64) {
	g.mu.Lock()
	g.tick++
	members := g.sortedLocked()

	for _, m := range members {
		g.integrateLocked(m, dt)
	}
	for _, m := range members {
		msg := protocol.PlayerMovedBroadcast{
			Type:      protocol.MsgPlayerMoved,
			PlayerID:  m.Player.ID,
			X:         m.X,
			Y:         m.Y,
			DX:        m.VX,
			DY:        m.VY,
			Direction: m.Direction,
			Tick:      g.tick,
		}
		if m.Session == nil {
			g.sendToLocked(members, msg, nil)
			continue
		}
		g.sendToLocked(members, msg, m)
	}
	ai := g.AI
	g.mu.Unlock()

	if ai != nil {
		ai.Step(dt)
	}
}

func (g *Instance) integrateLocked(m *Member, dt float64) {
	prevX, prevY := m.X, m.Y
	nx := m.X + m.VX*dt
	ny := m.Y + m.VY*dt

	if terrain.HitsSolid(g.Terrain, nx, ny, HurtboxHalf) {
		if terrain.HitsSolid(g.Terrain, prevX, prevY, HurtboxHalf) {
			prevX, prevY = m.lastValidX, m.lastValidY
		}
		m.X, m.Y = prevX, prevY
		m.VX, m.VY = 0, 0
	} else {
		m.X, m.Y = nx, ny
	}
	m.lastValidX, m.lastValidY = m.X, m.Y
	m.Player.SetPosition(m.X, m.Y)
}

// Attack resolves a melee swing from attacker at target.
func (g *Instance) Attack(attackerID, targetID int64) error {
	g.mu.Lock()
	attacker, ok := g.members[attackerID]
	if !ok {
		g.mu.Unlock()
		return ErrNotInGame
	}
	target, ok := g.members[targetID]
	if !ok {
		g.mu.Unlock()
		return ErrNotInGame
	}
	if attackerID == targetID {
		g.mu.Unlock()
		return ErrSelfAttack
	}
	if err := inReach(attacker, target); err != nil {
		g.mu.Unlock()
		return err
	}

	health := target.Player.Damage(MeleeDamage)
	g.broadcastLocked(protocol.PlayerDamagedBroadcast{
		Type:      protocol.MsgPlayerDamaged,
		PlayerID:  targetID,
		DealerID:  attackerID,
		Amount:    MeleeDamage,
		Health:    health,
		MaxHealth: player.StartingHealth,
	}, nil)

	var killed *Member
	if health <= 0 {
		g.broadcastLocked(protocol.PlayerKilledBroadcast{
			Type:     protocol.MsgPlayerKilled,
			PlayerID: targetID,
			KillerID: attackerID,
		}, nil)
		g.removeLocked(target)
		killed = target
		g.Logger.Info().Int64("player", targetID).Int64("killer", attackerID).Msg("player killed")
	}
	hook := g.OnKilled
	g.mu.Unlock()

	if killed != nil && hook != nil {
		hook(killed, attackerID)
	}
	return nil
}

// inReach checks range and the facing arc using the shortest angular difference.
func inReach(attacker, target *Member) error {
	if physics.Distance(attacker.X, attacker.Y, target.X, target.Y) > MeleeRange {
		return ErrOutOfRange
	}
	if attacker.X == target.X && attacker.Y == target.Y {
		return nil
	}
	bearing := physics.HeadingTo(attacker.X, attacker.Y, target.X, target.Y)
	if math.Abs(physics.AngleDiff(attacker.Direction, bearing)) > MeleeArc {
		return ErrOutsideArc
	}
	return nil
}

func (g *Instance) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Tick returns the number of updates run so far
func (g *Instance) Tick() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

func (g *Instance) sortedLocked() []*Member {
	out := make([]*Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player.ID < out[j].Player.ID })
	return out
}

// broadcastLocked sends to every member except exclude
func (g *Instance) broadcastLocked(msg any, exclude *Member) {
	g.sendToLocked(g.sortedLocked(), msg, exclude)
}

func (g *Instance) sendToLocked(members []*Member, msg any, exclude *Member) {
	for _, m := range members {
		if m == exclude || m.Session == nil {
			continue
		}
		m.Session.SendJSON(msg)
	}
}
