package sim

import (
	"math"

	"github.com/rs/zerolog"

	"planetfall-server/internal/ai"
	"planetfall-server/internal/combat"
	"planetfall-server/internal/game"
	"planetfall-server/internal/physics"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/ship"
	"planetfall-server/internal/terrain"
)

const (
	PatrolRadius        = 2500.0
	DefaultRespawnDelay = 30.0
	// guardians hold station this far outside the planet's rim
	GuardianOffset = 400.0
)

// Patrol keeps a fixed number of deep-space cruisers alive. Each slot has
// its own anchor on a ring around the middle of space; a destroyed slot is
// refilled after Delay seconds.
type Patrol struct {
	Logger zerolog.Logger
	Delay  float64

	fleet   *ai.Fleet
	anchors [][2]float64
	slots   []*ai.LightCruiser
	waiting []float64
}

// NewPatrol creates a director for count cruisers in fleet's space
func NewPatrol(fleet *ai.Fleet, b physics.Bounds, count int, delay float64, logger zerolog.Logger) *Patrol {
	if delay <= 0 {
		delay = DefaultRespawnDelay
	}
	cx, cy := b.Center()
	p := &Patrol{
		Logger:  logger.With().Str("component", "patrol").Logger(),
		Delay:   delay,
		fleet:   fleet,
		slots:   make([]*ai.LightCruiser, count),
		waiting: make([]float64, count),
	}
	for i := 0; i < count; i++ {
		a := physics.TwoPi * float64(i) / float64(count)
		x, y := b.Clamp(cx+PatrolRadius*math.Cos(a), cy+PatrolRadius*math.Sin(a))
		p.anchors = append(p.anchors, [2]float64{x, y})
	}
	return p
}

// Step fills empty slots. Slots start empty, so the first step launches the
// whole patrol.
func (p *Patrol) Step(dt float64) {
	for i, c := range p.slots {
		if c != nil && !c.Done() {
			continue
		}
		if c != nil {
			p.Logger.Info().Int("slot", i).Str("ship", c.Ship().ID).Msg("patrol cruiser lost")
			p.slots[i] = nil
			p.waiting[i] = p.Delay
		}
		if p.waiting[i] > 0 {
			p.waiting[i] -= dt
			continue
		}
		p.slots[i] = p.launch(i)
	}
}

func (p *Patrol) launch(i int) *ai.LightCruiser {
	a := p.anchors[i]
	c := ai.NewLightCruiser(p.fleet, ship.NewLightCruiser(physics.Pose{X: a[0], Y: a[1]}))
	p.fleet.Spawn(c)
	return c
}

// Alive returns the number of patrol cruisers in play
func (p *Patrol) Alive() int {
	n := 0
	for _, c := range p.slots {
		if c != nil && !c.Done() {
			n++
		}
	}
	return n
}

// Guardians returns a game.GuardianFunc that posts one cruiser over each
// planet as soon as its ground instance is created. The cruiser's fleet is
// stepped by the instance.
func Guardians(reg *registry.Registry, cm *combat.Manager, logger zerolog.Logger) game.GuardianFunc {
	return func(pl terrain.Planet) game.Stepper {
		f := ai.NewFleet(reg, cm, logger.With().Str("game", pl.GameID()).Logger())
		x, y := reg.Bounds().Clamp(pl.X+pl.Radius+GuardianOffset, pl.Y)
		f.Spawn(ai.NewLightCruiser(f, ship.NewLightCruiser(physics.Pose{X: x, Y: y})))
		return f
	}
}
