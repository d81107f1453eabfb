package combat

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/ship"
	"planetfall-server/internal/telemetry"
)

const (
	SplashRadius    = 150.0
	ExplosionDamage = 40.0
	CollisionRadius = 80.0
	CollisionDamage = 10.0
	CollisionGrace  = time.Second
)

const (
	ReasonExpired = "expired"
	ReasonHit     = "hit"
)

var (
	// ErrOnCooldown is returned by Fire when the firer shot too recently.
	ErrOnCooldown    = errors.New("weapon on cooldown")
	ErrShipDestroyed = errors.New("ship destroyed")
)

// DestroyedFunc is called once per destroyed ship, after it left the registry.
type DestroyedFunc func(s *ship.Ship, destroyerID string)

// Manager owns every projectile in flight and the per-ship fire cooldowns.
type Manager struct {
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time

	reg *registry.Registry
	out registry.Broadcaster

	mu          sync.Mutex
	projectiles map[string]*Projectile
	lastFire    map[string]time.Time
	contacts    map[[2]string]time.Time

	hookMu sync.RWMutex
	hooks  []DestroyedFunc
}

// NewManager creates a combat manager bound to the registry
func NewManager(reg *registry.Registry, out registry.Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		Logger:      logger.With().Str("component", "combat").Logger(),
		Now:         time.Now,
		reg:         reg,
		out:         out,
		projectiles: make(map[string]*Projectile),
		lastFire:    make(map[string]time.Time),
		contacts:    make(map[[2]string]time.Time),
	}
}

// OnDestroyed registers a destruction hook
func (m *Manager) OnDestroyed(fn DestroyedFunc) {
	m.hookMu.Lock()
	m.hooks = append(m.hooks, fn)
	m.hookMu.Unlock()
}

// Fire spawns a projectile from the nose of s, or returns ErrOnCooldown.
func (m *Manager) Fire(s *ship.Ship) (*Projectile, error) {
	return m.FireAt(s, s.Pose().Angle)
}

// FireAt fires along heading instead of the hull facing (turrets).
func (m *Manager) FireAt(s *ship.Ship, heading float64) (*Projectile, error) {
	if !s.Alive() {
		return nil, ErrShipDestroyed
	}
	now := m.Now()
	cooldown := time.Duration(s.Stats.FireCooldown() * float64(time.Second))

	m.mu.Lock()
	if last, ok := m.lastFire[s.ID]; ok && now.Sub(last) < cooldown {
		m.mu.Unlock()
		return nil, ErrOnCooldown
	}
	m.lastFire[s.ID] = now
	p := newProjectile(s, heading)
	m.projectiles[p.ID] = p
	m.out.BroadcastAll(protocol.ProjectileSpawnedBroadcast{
		Type:            protocol.MsgProjectileSpawned,
		ProjectileState: p.State(),
	})
	m.mu.Unlock()

	m.Metrics.ProjectileFired(s.Kind.String())
	return p, nil
}

// CanFire reports whether s is off cooldown
func (m *Manager) CanFire(s *ship.Ship) bool {
	cooldown := time.Duration(s.Stats.FireCooldown() * float64(time.Second))
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.lastFire[s.ID]
	return !ok || m.Now().Sub(last) >= cooldown
}

// ProjectileCount returns the number of projectiles in flight
func (m *Manager) ProjectileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projectiles)
}

type hit struct {
	target *ship.Ship
	damage float64
	dealer string
}

// Update advances every projectile by dt. Each projectile gets exactly one
// outcome per call: expired, hit, or a position update.
func (m *Manager) Update(dt float64) {
	ships, poses, grid := m.snapshot()
	var hits []hit
	var buf []int

	m.mu.Lock()
	ids := make([]string, 0, len(m.projectiles))
	for id := range m.projectiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := m.projectiles[id]
		p.advance(dt)

		if p.expired() {
			delete(m.projectiles, id)
			m.out.BroadcastAll(protocol.ProjectileRemovedBroadcast{
				Type:         protocol.MsgProjectileRemoved,
				ProjectileID: id,
				Reason:       ReasonExpired,
			})
			continue
		}

		var target *ship.Ship
		if target, buf = firstHit(p, ships, poses, grid, buf); target != nil {
			delete(m.projectiles, id)
			m.out.BroadcastAll(protocol.ProjectileRemovedBroadcast{
				Type:         protocol.MsgProjectileRemoved,
				ProjectileID: id,
				Reason:       ReasonHit,
				HitShipID:    target.ID,
			})
			hits = append(hits, hit{target: target, damage: p.Damage, dealer: p.OwnerID})
			continue
		}

		m.out.BroadcastAll(protocol.ProjectileUpdateBroadcast{
			Type:            protocol.MsgProjectileUpdated,
			ProjectileState: p.State(),
		})
	}
	m.mu.Unlock()

	for _, h := range hits {
		m.ApplyDamage(h.target, h.damage, h.dealer)
	}
}

// snapshot indexes the live ships by position for one pass
func (m *Manager) snapshot() ([]*ship.Ship, []physics.Pose, *Grid) {
	ships := m.reg.Ships()
	poses := make([]physics.Pose, len(ships))
	grid := NewGrid()
	for i, s := range ships {
		poses[i] = s.Pose()
		grid.Insert(poses[i].X, poses[i].Y, i)
	}
	return ships, poses, grid
}

// firstHit returns the first ship in registry order within HitRadius of p
// that p may damage. buf is scratch space returned for reuse.
func firstHit(p *Projectile, ships []*ship.Ship, poses []physics.Pose, g *Grid, buf []int) (*ship.Ship, []int) {
	buf = g.QueryBuf(p.X, p.Y, HitRadius, buf[:0])
	for _, i := range buf {
		s := ships[i]
		if s.ID == p.OwnerID || !s.Alive() {
			continue
		}
		if physics.DistanceSq(p.X, p.Y, poses[i].X, poses[i].Y) <= HitRadius*HitRadius {
			return s, buf
		}
	}
	return nil, buf
}

// ApplyDamage damages target on behalf of dealerID and resolves destruction.
// Returns true when this call destroyed the target.
func (m *Manager) ApplyDamage(target *ship.Ship, amount float64, dealerID string) bool {
	if amount <= 0 || !target.Alive() {
		return false
	}
	health, destroyed := target.TakeDamage(amount)
	m.out.BroadcastAll(protocol.ShipDamagedBroadcast{
		Type:      protocol.MsgShipDamaged,
		ShipID:    target.ID,
		DealerID:  dealerID,
		Amount:    amount,
		Health:    health,
		MaxHealth: target.Stats.MaxHealth,
	})
	if destroyed {
		m.destroy(target, dealerID)
	}
	return destroyed
}

func (m *Manager) destroy(s *ship.Ship, destroyerID string) {
	pose := s.Pose()
	m.out.BroadcastAll(protocol.ShipDestroyedBroadcast{
		Type:        protocol.MsgShipDestroyed,
		ShipID:      s.ID,
		DestroyerID: destroyerID,
		X:           pose.X,
		Y:           pose.Y,
	})
	m.reg.Destroy(s.ID)
	m.Forget(s.ID)
	m.Metrics.ShipDestroyed(s.Kind.String())
	m.Logger.Info().Str("ship", s.ID).Str("destroyer", destroyerID).Msg("ship destroyed")

	m.hookMu.RLock()
	hooks := append([]DestroyedFunc(nil), m.hooks...)
	m.hookMu.RUnlock()
	for _, fn := range hooks {
		m.runHook(fn, s, destroyerID)
	}

	m.splash(s.ID, pose.X, pose.Y, destroyerID)
}

func (m *Manager) runHook(fn DestroyedFunc, s *ship.Ship, destroyerID string) {
	defer func() {
		if r := recover(); r != nil {
			m.Logger.Error().Interface("panic", r).Str("ship", s.ID).Msg("destroyed hook panicked")
		}
	}()
	fn(s, destroyerID)
}

// splash applies linear falloff damage around an explosion
func (m *Manager) splash(sourceID string, x, y float64, destroyerID string) {
	for _, other := range m.reg.Ships() {
		if other.ID == sourceID {
			continue
		}
		p := other.Pose()
		d := physics.Distance(x, y, p.X, p.Y)
		if d >= SplashRadius {
			continue
		}
		m.ApplyDamage(other, SplashDamage(d), destroyerID)
	}
}

// SplashDamage returns explosion damage at distance d from the blast.
func SplashDamage(d float64) float64 {
	if d >= SplashRadius {
		return 0
	}
	return ExplosionDamage * (1 - d/SplashRadius)
}

// Forget drops cooldown and contact state for a ship that left play.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastFire, id)
	for k := range m.contacts {
		if k[0] == id || k[1] == id {
			delete(m.contacts, k)
		}
	}
}

// CollisionSweep damages every pair of ships closer than CollisionRadius.
// A pair is damaged at most once per CollisionGrace while they overlap.
func (m *Manager) CollisionSweep() {
	ships, poses, grid := m.snapshot()
	now := m.Now()
	var buf []int

	type pair struct{ a, b *ship.Ship }
	var contacts []pair

	m.mu.Lock()
	for i := 0; i < len(ships); i++ {
		a := ships[i]
		if !a.Alive() {
			continue
		}
		pa := poses[i]
		buf = grid.QueryBuf(pa.X, pa.Y, CollisionRadius, buf[:0])
		for _, j := range buf {
			b := ships[j]
			if j <= i || !b.Alive() {
				continue
			}
			pb := poses[j]
			if physics.DistanceSq(pa.X, pa.Y, pb.X, pb.Y) >= CollisionRadius*CollisionRadius {
				continue
			}
			key := [2]string{a.ID, b.ID}
			if last, ok := m.contacts[key]; ok && now.Sub(last) < CollisionGrace {
				continue
			}
			m.contacts[key] = now
			contacts = append(contacts, pair{a, b})
		}
	}
	m.mu.Unlock()

	for _, c := range contacts {
		m.ApplyDamage(c.a, CollisionDamage, c.b.ID)
		m.ApplyDamage(c.b, CollisionDamage, c.a.ID)
	}
}
