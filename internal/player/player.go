package player

import (
	"context"
	"errors"
	"sync"
)

const (
	StartingHealth = 100.0
	StartingCoins  = 0
)

// ErrNoSaver is returned by Save when the player has no persistence hook.
var ErrNoSaver = errors.New("player has no saver")

// Record is the persisted form of a player
type Record struct {
	ID         int64
	Username   string
	X, Y       float64 // last ground position
	Health     float64
	Coins      int64
	SpaceX     float64
	SpaceY     float64
	SpaceAngle float64
	LastPlanet string
}

// Saver persists player records
type Saver interface {
	SavePlayer(ctx context.Context, r Record) error
}

// Player is the live, authenticated identity. Sessions, game instances and
// the registry all reach it, so state is accessed through the methods.
type Player struct {
	ID       int64
	Username string

	mu    sync.RWMutex
	rec   Record
	saver Saver
}

// New wraps a loaded record
func New(r Record, saver Saver) *Player {
	if r.Health <= 0 {
		r.Health = StartingHealth
	}
	return &Player{ID: r.ID, Username: r.Username, rec: r, saver: saver}
}

// Record returns a copy of the current state
func (p *Player) Record() Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r := p.rec
	r.ID = p.ID
	r.Username = p.Username
	return r
}

func (p *Player) Position() (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec.X, p.rec.Y
}

func (p *Player) SetPosition(x, y float64) {
	p.mu.Lock()
	p.rec.X, p.rec.Y = x, y
	p.mu.Unlock()
}

func (p *Player) Health() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec.Health
}

func (p *Player) SetHealth(h float64) {
	p.mu.Lock()
	p.rec.Health = h
	p.mu.Unlock()
}

// Damage subtracts amount and returns the resulting health, floored at 0.
func (p *Player) Damage(amount float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.Health -= amount
	if p.rec.Health < 0 {
		p.rec.Health = 0
	}
	return p.rec.Health
}

func (p *Player) Coins() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec.Coins
}

func (p *Player) AddCoins(n int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.Coins += n
	return p.rec.Coins
}

// SpacePose returns the last known position and orientation in space
func (p *Player) SpacePose() (x, y, angle float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec.SpaceX, p.rec.SpaceY, p.rec.SpaceAngle
}

func (p *Player) SetSpacePose(x, y, angle float64) {
	p.mu.Lock()
	p.rec.SpaceX, p.rec.SpaceY, p.rec.SpaceAngle = x, y, angle
	p.mu.Unlock()
}

func (p *Player) LastPlanet() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec.LastPlanet
}

func (p *Player) SetLastPlanet(gameID string) {
	p.mu.Lock()
	p.rec.LastPlanet = gameID
	p.mu.Unlock()
}

// Save persists the current state. Called on landing, launching, logout
// and disconnect; failures are reported, never retried.
func (p *Player) Save(ctx context.Context) error {
	if p.saver == nil {
		return ErrNoSaver
	}
	return p.saver.SavePlayer(ctx, p.Record())
}
