package combat

import (
	"math"

	"github.com/google/uuid"

	"planetfall-server/internal/protocol"
	"planetfall-server/internal/ship"
)

const (
	HitRadius       = 40.0
	NoseClearance   = 10.0 // spawn distance beyond the firer's hull radius
	VelocityInherit = 0.3  // share of firer velocity added to the shot
)

// Projectile is a shot in flight. Damage and owner are fixed at spawn.
type Projectile struct {
	ID       string
	OwnerID  string
	Damage   float64
	Lifetime float64 // seconds

	X, Y   float64
	VX, VY float64
	Age    float64
}

// newProjectile spawns a shot along heading at the firer's hull edge,
// inheriting part of its velocity
func newProjectile(s *ship.Ship, heading float64) *Projectile {
	pose := s.Pose()
	fx, fy := math.Cos(heading), math.Sin(heading)
	offset := s.Stats.Radius + NoseClearance
	return &Projectile{
		ID:       uuid.NewString(),
		OwnerID:  s.ID,
		Damage:   s.Stats.ProjectileDamage,
		Lifetime: s.Stats.ProjectileLifetime,
		X:        pose.X + fx*offset,
		Y:        pose.Y + fy*offset,
		VX:       fx*s.Stats.ProjectileSpeed + pose.VX*VelocityInherit,
		VY:       fy*s.Stats.ProjectileSpeed + pose.VY*VelocityInherit,
	}
}

// advance moves the projectile one tick
func (p *Projectile) advance(dt float64) {
	p.X += p.VX * dt
	p.Y += p.VY * dt
	p.Age += dt
}

func (p *Projectile) expired() bool {
	return p.Age >= p.Lifetime
}

// State converts to protocol state
func (p *Projectile) State() protocol.ProjectileState {
	return protocol.ProjectileState{
		ProjectileID: p.ID,
		OwnerID:      p.OwnerID,
		X:            p.X,
		Y:            p.Y,
		DX:           p.VX,
		DY:           p.VY,
		Damage:       p.Damage,
	}
}
