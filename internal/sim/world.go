// Package sim runs the fixed-rate world tick.
package sim

import (
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/ai"
	"planetfall-server/internal/combat"
	"planetfall-server/internal/game"
	"planetfall-server/internal/registry"
)

// World is everything the tick advances. Patrol is optional.
type World struct {
	Logger   zerolog.Logger
	Registry *registry.Registry
	Combat   *combat.Manager
	Games    *game.Directory
	Fleet    *ai.Fleet
	Patrol   *Patrol

	mu     sync.Mutex
	timers []timer
}

type timer struct {
	left float64
	fn   func()
}

// NewWorld wires the tick order over already constructed components.
func NewWorld(reg *registry.Registry, cm *combat.Manager, games *game.Directory, fleet *ai.Fleet, logger zerolog.Logger) *World {
	return &World{
		Logger:   logger.With().Str("component", "sim").Logger(),
		Registry: reg,
		Combat:   cm,
		Games:    games,
		Fleet:    fleet,
	}
}

// After runs fn on the tick goroutine once delay seconds of simulated time
// have passed.
func (w *World) After(delay float64, fn func()) {
	w.mu.Lock()
	w.timers = append(w.timers, timer{left: delay, fn: fn})
	w.mu.Unlock()
}

// Pending returns the number of scheduled callbacks
func (w *World) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Step advances the world by dt seconds: projectiles, ground instances,
// deep-space NPCs, ship collisions, player ship dead reckoning and finally
// due callbacks. A panic in one stage is logged and the next stage still runs.
func (w *World) Step(dt float64) {
	if w.Combat != nil {
		w.run("combat", func() { w.Combat.Update(dt) })
	}
	if w.Games != nil {
		for _, g := range w.Games.Instances() {
			w.run("instance "+g.GameID, func() { g.Update(dt) })
		}
	}
	if w.Fleet != nil {
		w.run("fleet", func() { w.Fleet.Step(dt) })
	}
	if w.Patrol != nil {
		w.run("patrol", func() { w.Patrol.Step(dt) })
	}
	if w.Combat != nil {
		w.run("collisions", w.Combat.CollisionSweep)
	}
	if w.Registry != nil {
		w.run("drift", func() { w.drift(dt) })
	}
	w.run("timers", func() { w.fire(dt) })
}

func (w *World) run(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error().Interface("panic", r).Str("stage", stage).Msg("tick stage panicked")
		}
	}()
	fn()
}

// drift dead-reckons player ships between client updates
func (w *World) drift(dt float64) {
	b := w.Registry.Bounds()
	for _, s := range w.Registry.PlayerShips() {
		s.Drift(b, dt)
	}
}

func (w *World) fire(dt float64) {
	w.mu.Lock()
	var due []func()
	keep := w.timers[:0]
	for _, t := range w.timers {
		t.left -= dt
		if t.left <= 0 {
			due = append(due, t.fn)
			continue
		}
		keep = append(keep, t)
	}
	w.timers = keep
	w.mu.Unlock()

	for _, fn := range due {
		w.run("callback", fn)
	}
}
