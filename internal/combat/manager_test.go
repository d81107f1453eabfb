package combat

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/ship"
)

// mockBroadcaster captures broadcast messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []any
}

func (m *mockBroadcaster) BroadcastAll(msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockBroadcaster) snapshot() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.messages...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var testBounds = physics.Bounds{MinX: -50000, MinY: -50000, MaxX: 50000, MaxY: 50000}

func newTestManager() (*Manager, *registry.Registry, *mockBroadcaster, *fakeClock) {
	b := &mockBroadcaster{}
	reg := registry.New(testBounds, b, zerolog.Nop())
	m := NewManager(reg, b, zerolog.Nop())
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m.Now = clock.Now
	return m, reg, b, clock
}

func TestFireCooldown(t *testing.T) {
	m, reg, _, clock := newTestManager()
	s := reg.SetLaunched(1, physics.Pose{})

	if _, err := m.Fire(s); err != nil {
		t.Fatalf("first shot: %v", err)
	}
	if _, err := m.Fire(s); !errors.Is(err, ErrOnCooldown) {
		t.Errorf("expected ErrOnCooldown, got %v", err)
	}

	clock.Advance(time.Duration(s.Stats.FireCooldown() * float64(time.Second)))
	if _, err := m.Fire(s); err != nil {
		t.Errorf("expected shot after cooldown, got %v", err)
	}
	if m.ProjectileCount() != 2 {
		t.Errorf("expected 2 projectiles, got %d", m.ProjectileCount())
	}
}

func TestCooldownIsPerShip(t *testing.T) {
	m, reg, _, _ := newTestManager()
	a := reg.SetLaunched(1, physics.Pose{})
	b := reg.SetLaunched(2, physics.Pose{X: 1000})

	if _, err := m.Fire(a); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Fire(b); err != nil {
		t.Errorf("second ship should not share the first ship's cooldown: %v", err)
	}
}

func TestProjectileSpawnPose(t *testing.T) {
	m, reg, _, _ := newTestManager()
	s := reg.SetLaunched(1, physics.Pose{X: 100, Y: 100, VX: 100, Angle: 0})

	p, err := m.Fire(s)
	if err != nil {
		t.Fatal(err)
	}
	wantX := 100 + s.Stats.Radius + NoseClearance
	if math.Abs(p.X-wantX) > 1e-9 || math.Abs(p.Y-100) > 1e-9 {
		t.Errorf("expected spawn at (%f, 100), got (%f, %f)", wantX, p.X, p.Y)
	}
	wantVX := s.Stats.ProjectileSpeed + 100*VelocityInherit
	if math.Abs(p.VX-wantVX) > 1e-9 {
		t.Errorf("expected VX %f, got %f", wantVX, p.VX)
	}
}

func TestProjectileExpiresExactlyOnce(t *testing.T) {
	m, reg, b, _ := newTestManager()
	s := reg.SetLaunched(1, physics.Pose{})
	p, err := m.Fire(s)
	if err != nil {
		t.Fatal(err)
	}

	const dt = 1.0 / 60
	removedAt := -1
	for tick := 1; tick <= 1000; tick++ {
		before := len(b.snapshot())
		m.Update(dt)
		msgs := b.snapshot()[before:]

		updates, removals := 0, 0
		for _, msg := range msgs {
			switch v := msg.(type) {
			case protocol.ProjectileUpdateBroadcast:
				if v.ProjectileID == p.ID {
					updates++
				}
			case protocol.ProjectileRemovedBroadcast:
				if v.ProjectileID == p.ID {
					removals++
					if v.Reason != ReasonExpired {
						t.Errorf("expected reason %s, got %s", ReasonExpired, v.Reason)
					}
				}
			}
		}
		if updates+removals > 1 {
			t.Fatalf("tick %d: projectile had %d outcomes", tick, updates+removals)
		}
		if removedAt >= 0 && updates+removals > 0 {
			t.Fatalf("tick %d: projectile seen after removal", tick)
		}
		if removals == 1 {
			removedAt = tick
		}
	}

	want := int(s.Stats.ProjectileLifetime * 60)
	if removedAt < want-1 || removedAt > want+1 {
		t.Errorf("expected expiry near tick %d, got %d", want, removedAt)
	}
	if m.ProjectileCount() != 0 {
		t.Errorf("expected no projectiles left, got %d", m.ProjectileCount())
	}
}

func TestProjectileHitsNonOwner(t *testing.T) {
	m, reg, b, _ := newTestManager()
	shooter := reg.SetLaunched(1, physics.Pose{})
	target := ship.NewAttackShip(physics.Pose{X: 100})
	reg.Add(target)

	p, err := m.Fire(shooter)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30 && m.ProjectileCount() > 0; i++ {
		m.Update(1.0 / 60)
	}

	if m.ProjectileCount() != 0 {
		t.Fatal("expected projectile to be consumed by the hit")
	}
	want := target.Stats.MaxHealth - shooter.Stats.ProjectileDamage
	if target.Health() != want {
		t.Errorf("expected target health %f, got %f", want, target.Health())
	}

	var hitSeen, damagedSeen bool
	for _, msg := range b.snapshot() {
		switch v := msg.(type) {
		case protocol.ProjectileRemovedBroadcast:
			if v.ProjectileID == p.ID && v.Reason == ReasonHit && v.HitShipID == target.ID {
				hitSeen = true
			}
		case protocol.ShipDamagedBroadcast:
			if v.ShipID == target.ID && v.DealerID == shooter.ID {
				damagedSeen = true
			}
		}
	}
	if !hitSeen || !damagedSeen {
		t.Errorf("expected hit and damage broadcasts, got hit=%v damaged=%v", hitSeen, damagedSeen)
	}
	if shooter.Health() != shooter.Stats.MaxHealth {
		t.Error("owner should never be hit by its own projectile")
	}
}

func TestDestructionSplashAndHooks(t *testing.T) {
	m, reg, b, _ := newTestManager()
	victim := ship.NewAttackShip(physics.Pose{})
	near := ship.NewLightCruiser(physics.Pose{X: 75})
	far := ship.NewLightCruiser(physics.Pose{X: 1000})
	reg.Add(victim)
	reg.Add(near)
	reg.Add(far)

	var hooked []string
	m.OnDestroyed(func(s *ship.Ship, destroyerID string) {
		hooked = append(hooked, s.ID+"/"+destroyerID)
	})
	m.OnDestroyed(func(*ship.Ship, string) { panic("boom") })

	if !m.ApplyDamage(victim, 1e6, "player-9") {
		t.Fatal("expected destruction")
	}
	if reg.Get(victim.ID) != nil {
		t.Error("destroyed ship should leave the registry")
	}
	if len(hooked) != 1 || hooked[0] != victim.ID+"/player-9" {
		t.Errorf("expected one hook call, got %v", hooked)
	}

	wantNear := near.Stats.MaxHealth - SplashDamage(75)
	if math.Abs(near.Health()-wantNear) > 1e-9 {
		t.Errorf("expected near health %f, got %f", wantNear, near.Health())
	}
	if far.Health() != far.Stats.MaxHealth {
		t.Error("ship beyond splash radius should be untouched")
	}

	var splashDealer string
	for _, msg := range b.snapshot() {
		if v, ok := msg.(protocol.ShipDamagedBroadcast); ok && v.ShipID == near.ID {
			splashDealer = v.DealerID
		}
	}
	if splashDealer != "player-9" {
		t.Errorf("expected splash attributed to player-9, got %q", splashDealer)
	}

	if m.ApplyDamage(victim, 10, "player-9") {
		t.Error("destroyed ship should not be destroyed twice")
	}
}

func TestSplashDamageFalloff(t *testing.T) {
	if SplashDamage(0) != ExplosionDamage {
		t.Errorf("expected full damage at the center, got %f", SplashDamage(0))
	}
	if math.Abs(SplashDamage(SplashRadius/2)-ExplosionDamage/2) > 1e-9 {
		t.Errorf("expected half damage at half radius, got %f", SplashDamage(SplashRadius/2))
	}
	if SplashDamage(SplashRadius) != 0 || SplashDamage(SplashRadius*2) != 0 {
		t.Error("expected no damage at or beyond the radius")
	}
}

func TestCollisionSweepGrace(t *testing.T) {
	m, reg, _, clock := newTestManager()
	a := reg.SetLaunched(1, physics.Pose{})
	c := ship.NewLightCruiser(physics.Pose{X: 50})
	reg.Add(c)

	m.CollisionSweep()
	if a.Health() != a.Stats.MaxHealth-CollisionDamage {
		t.Errorf("expected collision damage, got health %f", a.Health())
	}
	if c.Health() != c.Stats.MaxHealth-CollisionDamage {
		t.Errorf("expected collision damage on both ships, got %f", c.Health())
	}

	m.CollisionSweep()
	if a.Health() != a.Stats.MaxHealth-CollisionDamage {
		t.Error("expected no damage inside the grace period")
	}

	clock.Advance(CollisionGrace)
	m.CollisionSweep()
	if a.Health() != a.Stats.MaxHealth-2*CollisionDamage {
		t.Errorf("expected second collision after grace, got %f", a.Health())
	}
}

func TestCollisionSweepIgnoresDistantShips(t *testing.T) {
	m, reg, _, _ := newTestManager()
	a := reg.SetLaunched(1, physics.Pose{})
	b := reg.SetLaunched(2, physics.Pose{X: CollisionRadius + 1})
	m.CollisionSweep()
	if a.Health() != a.Stats.MaxHealth || b.Health() != b.Stats.MaxHealth {
		t.Error("ships outside the collision radius should not take damage")
	}
}

func TestDestroyedPlayerShipNotRecreatedByUpdate(t *testing.T) {
	m, reg, _, _ := newTestManager()
	s := reg.SetLaunched(7, physics.Pose{X: 100})

	// the owner's update lands after the tick destroyed the ship but before
	// any respawn hook has run
	m.ApplyDamage(s, 1e6, "cruiser-1")
	if got := reg.UpdateShip(7, registry.ShipUpdate{X: 120}, true); got != nil {
		t.Fatalf("expected update to be ignored, got ship at %v", got.Pose())
	}
	if reg.Count() != 0 {
		t.Errorf("expected 0 ships after destruction, got %d", reg.Count())
	}

	relaunched := reg.SetLaunched(7, physics.Pose{X: 500})
	if got := reg.UpdateShip(7, registry.ShipUpdate{X: 520}, true); got != relaunched {
		t.Error("expected updates to reach the relaunched ship")
	}
}
