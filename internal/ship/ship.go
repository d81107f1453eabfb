package ship

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/protocol"
)

// Ship is a live entity in space. Session workers and the tick worker both
// touch ships, so every field behind mu is reached through methods.
type Ship struct {
	ID            string
	Kind          Kind
	OwnerPlayerID int64 // 0 for NPC ships
	Stats         Stats

	mu        sync.RWMutex
	pose      physics.Pose
	health    float64
	thrusting bool
}

// New creates a ship of the given kind at full health
func New(id string, kind Kind, pose physics.Pose) *Ship {
	st := StatsFor(kind)
	pose.Angle = physics.NormalizeAngle(pose.Angle)
	return &Ship{
		ID:     id,
		Kind:   kind,
		Stats:  st,
		pose:   pose,
		health: st.MaxHealth,
	}
}

// PlayerShipID is the registry key of a player's ship
func PlayerShipID(playerID int64) string {
	return fmt.Sprintf("player-%d", playerID)
}

// NewPlayerShip creates the ship flown by a player
func NewPlayerShip(playerID int64, pose physics.Pose) *Ship {
	s := New(PlayerShipID(playerID), KindPlayer, pose)
	s.OwnerPlayerID = playerID
	return s
}

// NewLightCruiser creates an NPC capital ship
func NewLightCruiser(pose physics.Pose) *Ship {
	return New("cruiser-"+uuid.NewString(), KindLightCruiser, pose)
}

// NewAttackShip creates an NPC escort
func NewAttackShip(pose physics.Pose) *Ship {
	return New("attack-"+uuid.NewString(), KindAttackShip, pose)
}

// IsPlayer reports whether a player flies this ship
func (s *Ship) IsPlayer() bool {
	return s.Kind == KindPlayer
}

// Pose returns the current kinematic state
func (s *Ship) Pose() physics.Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

// SetPose replaces the kinematic state
func (s *Ship) SetPose(p physics.Pose, thrusting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Angle = physics.NormalizeAngle(p.Angle)
	s.pose = p
	s.thrusting = thrusting
}

// Steer moves the ship one step with the shared steering primitive
func (s *Ship) Steer(heading, throttle float64, b physics.Bounds, dt float64) physics.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = physics.Steer(s.pose, heading, throttle, s.Stats.Limits(), b, dt)
	s.thrusting = throttle > 0
	return s.pose
}

// Drift integrates the ship without steering input
func (s *Ship) Drift(b physics.Bounds, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = physics.Drift(s.pose, s.Stats.Limits(), b, dt)
}

// Health returns current hit points
func (s *Ship) Health() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// HealthRatio returns health / max health in [0, 1]
func (s *Ship) HealthRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Stats.MaxHealth <= 0 {
		return 0
	}
	return s.health / s.Stats.MaxHealth
}

// Alive reports whether the ship still has hit points
func (s *Ship) Alive() bool {
	return s.Health() > 0
}

// TakeDamage reduces health, clamped to [0, MaxHealth]. destroyed is true
// only on the call that brings health to zero.
func (s *Ship) TakeDamage(amount float64) (health float64, destroyed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health <= 0 {
		return 0, false
	}
	s.health = physics.Clamp(s.health-amount, 0, s.Stats.MaxHealth)
	return s.health, s.health == 0
}

// Heal restores health, clamped to MaxHealth. Destroyed ships stay destroyed.
func (s *Ship) Heal(amount float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health <= 0 {
		return 0
	}
	s.health = physics.Clamp(s.health+amount, 0, s.Stats.MaxHealth)
	return s.health
}

// State converts to protocol state
func (s *Ship) State() protocol.ShipState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.ShipState{
		ShipID:    s.ID,
		Kind:      s.Kind.String(),
		PlayerID:  s.OwnerPlayerID,
		X:         s.pose.X,
		Y:         s.pose.Y,
		Angle:     s.pose.Angle,
		DX:        s.pose.VX,
		DY:        s.pose.VY,
		Thrusting: s.thrusting,
		Health:    s.health,
		MaxHealth: s.Stats.MaxHealth,
	}
}
