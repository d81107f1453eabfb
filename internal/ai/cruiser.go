package ai

import (
	"math"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/ship"
)

// CruiserState is a state of the capital ship state machine
type CruiserState int

const (
	CruiserInitializing CruiserState = iota
	CruiserApproachingTarget
	CruiserEngagingTarget
	CruiserSpawningAttackShips
	CruiserRetreating
	CruiserEvading
	CruiserMaintainingPosition
)

func (s CruiserState) String() string {
	switch s {
	case CruiserInitializing:
		return "INITIALIZING"
	case CruiserApproachingTarget:
		return "APPROACHING_TARGET"
	case CruiserEngagingTarget:
		return "ENGAGING_TARGET"
	case CruiserSpawningAttackShips:
		return "SPAWNING_ATTACK_SHIPS"
	case CruiserRetreating:
		return "RETREATING"
	case CruiserEvading:
		return "EVADING"
	case CruiserMaintainingPosition:
		return "MAINTAINING_POSITION"
	default:
		return "UNKNOWN"
	}
}

const (
	OrbitMin         = 350.0
	OrbitMax         = 550.0
	OrbitThrottle    = 0.6
	CruiserFireArc   = math.Pi / 2
	CruiserFireRange = 700.0
	MaxEscorts       = 3
	CloseRange       = 200.0
	AcquireRange     = 1500.0
	AcquireRatio     = 0.6
	AnchorTolerance  = 50.0

	// seconds between escort launches
	EscortInterval = 8.0
	// hp/s while holding position
	SelfRepairRate = 4.0
	// escorts launch from behind the hull
	EscortLaunchAft = 90.0
)

// LightCruiser is the capital ship controller. It orbits its target at a
// stand-off band, fires a wide turret arc and launches escorts.
type LightCruiser struct {
	fleet *Fleet
	ship  *ship.Ship

	state      CruiserState
	target     string
	stateTime  float64
	spawnTimer float64
	anchorX    float64
	anchorY    float64
	escorts    []*AttackShip
}

// NewLightCruiser creates a cruiser holding position at its spawn point.
func NewLightCruiser(f *Fleet, s *ship.Ship) *LightCruiser {
	p := s.Pose()
	return &LightCruiser{fleet: f, ship: s, anchorX: p.X, anchorY: p.Y}
}

func (c *LightCruiser) Ship() *ship.Ship { return c.ship }

// Done is true once the cruiser's ship left play
func (c *LightCruiser) Done() bool { return !c.fleet.alive(c.ship) }

func (c *LightCruiser) State() CruiserState {
	return c.state
}

func (c *LightCruiser) TargetID() string {
	return c.target
}

// SetAnchor moves the point held while there is nothing to fight
func (c *LightCruiser) SetAnchor(x, y float64) {
	c.anchorX, c.anchorY = x, y
}

// Escorts returns the live escorts
func (c *LightCruiser) Escorts() []*AttackShip {
	live := c.escorts[:0]
	for _, e := range c.escorts {
		if !e.Done() {
			live = append(live, e)
		}
	}
	c.escorts = live
	return append([]*AttackShip(nil), live...)
}

func (c *LightCruiser) enter(s CruiserState) {
	c.state = s
	c.stateTime = 0
}

func (c *LightCruiser) Update(dt float64) {
	if c.Done() {
		return
	}
	c.stateTime += dt
	target := c.fleet.lookup(c.target)
	if target == nil {
		c.target = ""
	}

	// holding position is where the cruiser repairs, so it never evades from there
	if c.ship.HealthRatio() < EvadeHealthRatio && c.state != CruiserEvading &&
		c.state != CruiserRetreating && c.state != CruiserMaintainingPosition {
		c.enter(CruiserEvading)
	}

	switch c.state {
	case CruiserInitializing:
		if c.acquire() != nil {
			c.enter(CruiserApproachingTarget)
		} else {
			c.enter(CruiserMaintainingPosition)
		}

	case CruiserApproachingTarget:
		if target == nil {
			c.enter(CruiserMaintainingPosition)
			return
		}
		tp := target.Pose()
		c.fleet.seek(c.ship, tp.X, tp.Y, 1, dt)
		if distance(c.ship, target) <= OrbitMax {
			c.enter(CruiserEngagingTarget)
		}

	case CruiserEngagingTarget:
		if target == nil {
			c.enter(CruiserMaintainingPosition)
			return
		}
		d := distance(c.ship, target)
		if d < CloseRange {
			c.enter(CruiserRetreating)
			return
		}
		c.orbit(target, d, dt)
		c.fire(target, d)
		c.spawnTimer += dt
		if c.spawnTimer >= EscortInterval && len(c.Escorts()) < MaxEscorts {
			c.enter(CruiserSpawningAttackShips)
		}

	case CruiserSpawningAttackShips:
		c.launchEscort()
		c.spawnTimer = 0
		if target == nil {
			c.enter(CruiserMaintainingPosition)
		} else {
			c.enter(CruiserEngagingTarget)
		}

	case CruiserRetreating:
		if target == nil {
			c.enter(CruiserMaintainingPosition)
			return
		}
		tp := target.Pose()
		c.fleet.flee(c.ship, tp.X, tp.Y, dt)
		d := distance(c.ship, target)
		if c.ship.HealthRatio() < EvadeHealthRatio {
			// badly hurt: break off entirely and go home to repair
			if d >= AcquireRange {
				c.target = ""
				c.enter(CruiserMaintainingPosition)
			}
			return
		}
		if d >= OrbitMin {
			c.enter(CruiserEngagingTarget)
		}

	case CruiserEvading:
		if target != nil {
			tp := target.Pose()
			c.fleet.flee(c.ship, tp.X, tp.Y, dt)
		} else {
			x, y := c.fleet.openSpace()
			c.fleet.seek(c.ship, x, y, 1, dt)
		}
		if c.stateTime >= EvadeDuration {
			if target != nil {
				c.enter(CruiserRetreating)
			} else {
				c.enter(CruiserMaintainingPosition)
			}
		}

	case CruiserMaintainingPosition:
		c.hold(dt)
		c.ship.Heal(SelfRepairRate * dt)
		if c.ship.HealthRatio() >= AcquireRatio && c.acquire() != nil {
			c.enter(CruiserApproachingTarget)
		}
	}
}

// acquire picks the nearest player ship within AcquireRange and hands it to
// every escort.
func (c *LightCruiser) acquire() *ship.Ship {
	p := c.ship.Pose()
	t := c.fleet.reg.NearestPlayerShip(p.X, p.Y, AcquireRange)
	if t == nil {
		return nil
	}
	c.target = t.ID
	for _, e := range c.Escorts() {
		if e.TargetID() == "" || c.fleet.lookup(e.TargetID()) == nil {
			e.SetTarget(t.ID)
		}
	}
	return t
}

// orbit keeps the cruiser inside the stand-off band, circling when in it.
func (c *LightCruiser) orbit(target *ship.Ship, d, dt float64) {
	tp := target.Pose()
	switch {
	case d > OrbitMax:
		c.fleet.seek(c.ship, tp.X, tp.Y, 1, dt)
	case d < OrbitMin:
		c.fleet.flee(c.ship, tp.X, tp.Y, dt)
	default:
		tangent := bearing(c.ship, target) + math.Pi/2
		c.ship.Steer(tangent, OrbitThrottle, c.fleet.bounds(), dt)
	}
}

// fire shoots a turret at the target when it is inside the arc and range
func (c *LightCruiser) fire(target *ship.Ship, d float64) {
	if d > CruiserFireRange {
		return
	}
	b := bearing(c.ship, target)
	if math.Abs(physics.AngleDiff(c.ship.Pose().Angle, b)) > CruiserFireArc {
		return
	}
	if !c.fleet.combat.CanFire(c.ship) {
		return
	}
	c.fleet.combat.FireAt(c.ship, b)
}

func (c *LightCruiser) launchEscort() {
	if len(c.Escorts()) >= MaxEscorts {
		return
	}
	p := c.ship.Pose()
	fx, fy := p.Forward()
	pose := physics.Pose{
		X:     p.X - fx*EscortLaunchAft,
		Y:     p.Y - fy*EscortLaunchAft,
		VX:    p.VX,
		VY:    p.VY,
		Angle: p.Angle,
	}
	e := NewAttackShip(c.fleet, ship.NewAttackShip(pose), c, c.target)
	c.escorts = append(c.escorts, e)
	c.fleet.Spawn(e)
}

// hold returns to the anchor and sits there
func (c *LightCruiser) hold(dt float64) {
	p := c.ship.Pose()
	d := physics.Distance(p.X, p.Y, c.anchorX, c.anchorY)
	if d <= AnchorTolerance {
		c.fleet.brake(c.ship, dt)
		return
	}
	throttle := math.Min(1, d/(AnchorTolerance*4))
	c.fleet.seek(c.ship, c.anchorX, c.anchorY, throttle, dt)
}
