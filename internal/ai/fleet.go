package ai

import (
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/combat"
	"planetfall-server/internal/physics"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/ship"
)

// Controller drives one NPC ship, once per tick.
type Controller interface {
	Update(dt float64)
	Ship() *ship.Ship
	Done() bool
}

// Fleet owns a set of controllers and steps them every tick. A controller is
// dropped once its ship was destroyed or removed from the registry.
type Fleet struct {
	Logger zerolog.Logger

	reg    *registry.Registry
	combat *combat.Manager

	mu          sync.Mutex
	controllers []Controller
}

// NewFleet creates an empty fleet
func NewFleet(reg *registry.Registry, cm *combat.Manager, logger zerolog.Logger) *Fleet {
	return &Fleet{
		Logger: logger.With().Str("component", "ai").Logger(),
		reg:    reg,
		combat: cm,
	}
}

// Spawn registers the controller's ship and starts driving it
func (f *Fleet) Spawn(c Controller) {
	f.reg.Add(c.Ship())
	f.mu.Lock()
	f.controllers = append(f.controllers, c)
	f.mu.Unlock()
	f.Logger.Debug().Str("ship", c.Ship().ID).Str("kind", c.Ship().Kind.String()).Msg("npc spawned")
}

// Step updates every live controller and publishes its ship.
func (f *Fleet) Step(dt float64) {
	f.mu.Lock()
	snapshot := append([]Controller(nil), f.controllers...)
	f.mu.Unlock()

	for _, c := range snapshot {
		if c.Done() {
			continue
		}
		if f.update(c, dt) && !c.Done() {
			f.reg.Publish(c.Ship())
		}
	}

	f.mu.Lock()
	live := f.controllers[:0]
	for _, c := range f.controllers {
		if !c.Done() {
			live = append(live, c)
		}
	}
	for i := len(live); i < len(f.controllers); i++ {
		f.controllers[i] = nil
	}
	f.controllers = live
	f.mu.Unlock()
}

func (f *Fleet) update(c Controller, dt float64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.Logger.Error().Interface("panic", r).Str("ship", c.Ship().ID).Msg("controller update panicked")
			ok = false
		}
	}()
	c.Update(dt)
	return true
}

// Count returns the number of live controllers
func (f *Fleet) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.controllers {
		if !c.Done() {
			n++
		}
	}
	return n
}

// alive reports whether s is still in play
func (f *Fleet) alive(s *ship.Ship) bool {
	return s != nil && s.Alive() && f.reg.Get(s.ID) == s
}

// lookup resolves a target id to a live ship
func (f *Fleet) lookup(id string) *ship.Ship {
	if id == "" {
		return nil
	}
	s := f.reg.Get(id)
	if s == nil || !s.Alive() {
		return nil
	}
	return s
}

func (f *Fleet) bounds() physics.Bounds {
	return f.reg.Bounds()
}

// seek steers s toward (x, y)
func (f *Fleet) seek(s *ship.Ship, x, y, throttle, dt float64) {
	p := s.Pose()
	s.Steer(physics.HeadingTo(p.X, p.Y, x, y), throttle, f.bounds(), dt)
}

// flee steers s directly away from (x, y)
func (f *Fleet) flee(s *ship.Ship, x, y, dt float64) {
	p := s.Pose()
	away := physics.HeadingTo(x, y, p.X, p.Y)
	if p.X == x && p.Y == y {
		away = p.Angle
	}
	s.Steer(away, 1, f.bounds(), dt)
}

// brake holds the current heading and bleeds off speed
func (f *Fleet) brake(s *ship.Ship, dt float64) {
	s.Steer(s.Pose().Angle, 0, f.bounds(), dt)
}

// openSpace is where ships with nothing to flee from head: the middle of
// the operational area
func (f *Fleet) openSpace() (float64, float64) {
	return f.bounds().Center()
}

func distance(a, b *ship.Ship) float64 {
	pa, pb := a.Pose(), b.Pose()
	return physics.Distance(pa.X, pa.Y, pb.X, pb.Y)
}

func bearing(from, to *ship.Ship) float64 {
	pa, pb := from.Pose(), to.Pose()
	return physics.HeadingTo(pa.X, pa.Y, pb.X, pb.Y)
}
