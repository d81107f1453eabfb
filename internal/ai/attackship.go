package ai

import (
	"math"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/ship"
)

// AttackShipState is a state of the escort state machine
type AttackShipState int

const (
	AttackInitializing AttackShipState = iota
	AttackApproaching
	AttackDiving
	AttackRetreating
	AttackCooldown
	AttackEvading
	AttackReturningToCruiser
)

func (s AttackShipState) String() string {
	switch s {
	case AttackInitializing:
		return "INITIALIZING"
	case AttackApproaching:
		return "APPROACHING"
	case AttackDiving:
		return "DIVING"
	case AttackRetreating:
		return "RETREATING"
	case AttackCooldown:
		return "COOLDOWN"
	case AttackEvading:
		return "EVADING"
	case AttackReturningToCruiser:
		return "RETURNING_TO_CRUISER"
	default:
		return "UNKNOWN"
	}
}

const (
	DiveRange          = 200.0
	BurstShots         = 3
	BurstInterval      = 0.25 // seconds between shots in a burst
	FacingWindow       = 0.35 // radians
	AttackFireRange    = 350.0
	MinFiringDistance  = 60.0
	StandOffDistance   = 450.0
	AttackCooldownTime = 2.5
	EvadeHealthRatio   = 0.30
	EvadeDuration      = 3.0
	CruiserArrival     = 150.0
	EscortRepairRate   = 8.0 // hp/s while docked at the cruiser
	ReengageRatio      = 0.8
)

// AttackShip is the escort controller: dive, burst, retreat, repeat.
type AttackShip struct {
	fleet  *Fleet
	ship   *ship.Ship
	parent *LightCruiser

	state     AttackShipState
	target    string
	stateTime float64
	shots     int
	shotTimer float64
}

// NewAttackShip creates an escort for parent (may be nil) hunting targetID.
func NewAttackShip(f *Fleet, s *ship.Ship, parent *LightCruiser, targetID string) *AttackShip {
	return &AttackShip{fleet: f, ship: s, parent: parent, target: targetID}
}

func (a *AttackShip) Ship() *ship.Ship { return a.ship }

// Done is true once the escort's ship left play
func (a *AttackShip) Done() bool { return !a.fleet.alive(a.ship) }

func (a *AttackShip) State() AttackShipState {
	return a.state
}

func (a *AttackShip) TargetID() string {
	return a.target
}

// SetTarget hands the escort a new target
func (a *AttackShip) SetTarget(targetID string) {
	a.target = targetID
}

func (a *AttackShip) enter(s AttackShipState) {
	a.state = s
	a.stateTime = 0
	if s == AttackDiving {
		a.shots = 0
		a.shotTimer = 0
	}
}

func (a *AttackShip) Update(dt float64) {
	if a.Done() {
		return
	}
	a.stateTime += dt
	target := a.fleet.lookup(a.target)

	if a.ship.HealthRatio() < EvadeHealthRatio &&
		a.state != AttackEvading && a.state != AttackReturningToCruiser {
		a.enter(AttackEvading)
	}

	switch a.state {
	case AttackInitializing:
		a.enter(AttackApproaching)

	case AttackApproaching:
		if target == nil {
			a.enter(AttackReturningToCruiser)
			return
		}
		tp := target.Pose()
		a.fleet.seek(a.ship, tp.X, tp.Y, 1, dt)
		if distance(a.ship, target) <= DiveRange {
			a.enter(AttackDiving)
		}

	case AttackDiving:
		if target == nil {
			a.enter(AttackReturningToCruiser)
			return
		}
		tp := target.Pose()
		a.fleet.seek(a.ship, tp.X, tp.Y, 1, dt)
		a.burst(target, dt)
		if a.shots >= BurstShots || distance(a.ship, target) < MinFiringDistance {
			a.enter(AttackRetreating)
		}

	case AttackRetreating:
		if target == nil {
			a.enter(AttackCooldown)
			return
		}
		tp := target.Pose()
		a.fleet.flee(a.ship, tp.X, tp.Y, dt)
		if distance(a.ship, target) >= StandOffDistance {
			a.enter(AttackCooldown)
		}

	case AttackCooldown:
		a.fleet.brake(a.ship, dt)
		if a.stateTime >= AttackCooldownTime {
			if target != nil {
				a.enter(AttackApproaching)
			} else {
				a.enter(AttackReturningToCruiser)
			}
		}

	case AttackEvading:
		if target != nil {
			tp := target.Pose()
			a.fleet.flee(a.ship, tp.X, tp.Y, dt)
		} else {
			x, y := a.fleet.openSpace()
			a.fleet.seek(a.ship, x, y, 1, dt)
		}
		if a.stateTime >= EvadeDuration {
			if target != nil && a.ship.HealthRatio() >= EvadeHealthRatio {
				a.enter(AttackApproaching)
			} else {
				a.enter(AttackReturningToCruiser)
			}
		}

	case AttackReturningToCruiser:
		a.returnToCruiser(target, dt)
	}
}

// burst fires up to BurstShots, BurstInterval apart, while the target sits
// inside the facing and range windows.
func (a *AttackShip) burst(target *ship.Ship, dt float64) {
	if a.shotTimer > 0 {
		a.shotTimer -= dt
		return
	}
	if distance(a.ship, target) > AttackFireRange {
		return
	}
	if math.Abs(physics.AngleDiff(a.ship.Pose().Angle, bearing(a.ship, target))) > FacingWindow {
		return
	}
	if _, err := a.fleet.combat.Fire(a.ship); err != nil {
		return
	}
	a.shots++
	a.shotTimer = BurstInterval
}

func (a *AttackShip) returnToCruiser(target *ship.Ship, dt float64) {
	parent := a.parent
	if parent == nil || parent.Done() {
		// orphaned escorts fight on alone once healthy
		a.fleet.brake(a.ship, dt)
		if target != nil && a.ship.HealthRatio() >= EvadeHealthRatio {
			a.enter(AttackApproaching)
		}
		return
	}

	pp := parent.Ship().Pose()
	sp := a.ship.Pose()
	if physics.Distance(sp.X, sp.Y, pp.X, pp.Y) > CruiserArrival {
		a.fleet.seek(a.ship, pp.X, pp.Y, 1, dt)
		return
	}

	a.fleet.brake(a.ship, dt)
	a.ship.Heal(EscortRepairRate * dt)
	if target == nil {
		a.target = parent.TargetID()
		target = a.fleet.lookup(a.target)
	}
	if target != nil && a.ship.HealthRatio() >= ReengageRatio {
		a.enter(AttackApproaching)
	}
}
