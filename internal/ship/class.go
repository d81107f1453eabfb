package ship

import "planetfall-server/internal/physics"

// Kind identifies the ship variant
type Kind int

const (
	KindPlayer       Kind = 0
	KindLightCruiser Kind = 1
	KindAttackShip   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindLightCruiser:
		return "light_cruiser"
	case KindAttackShip:
		return "attack_ship"
	default:
		return "player"
	}
}

// Stats holds the movement and weapon parameters of a ship kind
type Stats struct {
	MaxHealth          float64
	MaxSpeed           float64
	Acceleration       float64
	TurnRate           float64
	FacingTolerance    float64
	FireRate           float64 // shots per second
	ProjectileDamage   float64
	ProjectileSpeed    float64
	ProjectileLifetime float64 // seconds
	Radius             float64
}

// FireCooldown is the minimum time between two shots, in seconds.
func (s Stats) FireCooldown() float64 {
	if s.FireRate <= 0 {
		return 0
	}
	return 1 / s.FireRate
}

// Limits returns the steering constraints for this kind.
func (s Stats) Limits() physics.Limits {
	return physics.Limits{
		MaxSpeed:        s.MaxSpeed,
		Acceleration:    s.Acceleration,
		TurnRate:        s.TurnRate,
		FacingTolerance: s.FacingTolerance,
	}
}

var classes = map[Kind]Stats{
	// Player: agile, medium hull, long-lived shots
	KindPlayer: {
		MaxHealth: 100, MaxSpeed: 400, Acceleration: 600, TurnRate: 5.0,
		FacingTolerance: 0.6, FireRate: 4, ProjectileDamage: 10,
		ProjectileSpeed: 700, ProjectileLifetime: 15, Radius: 20,
	},
	// Light cruiser: slow capital ship, heavy hull, wide broadside
	KindLightCruiser: {
		MaxHealth: 600, MaxSpeed: 120, Acceleration: 60, TurnRate: 0.8,
		FacingTolerance: 0.9, FireRate: 1.5, ProjectileDamage: 15,
		ProjectileSpeed: 550, ProjectileLifetime: 6, Radius: 60,
	},
	// Attack ship: fast escort, fragile, burst fire
	KindAttackShip: {
		MaxHealth: 60, MaxSpeed: 320, Acceleration: 500, TurnRate: 4.0,
		FacingTolerance: 0.5, FireRate: 5, ProjectileDamage: 6,
		ProjectileSpeed: 650, ProjectileLifetime: 4, Radius: 16,
	},
}

// StatsFor returns the stats of a ship kind
func StatsFor(k Kind) Stats {
	s, ok := classes[k]
	if !ok {
		return classes[KindPlayer]
	}
	return s
}
