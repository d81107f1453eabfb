package ship

import (
	"math"
	"strings"
	"testing"

	"planetfall-server/internal/physics"
)

func TestNewPlayerShip(t *testing.T) {
	s := NewPlayerShip(42, physics.Pose{X: 10, Y: 20, Angle: -math.Pi / 2})
	if s.ID != "player-42" {
		t.Errorf("expected ID player-42, got %s", s.ID)
	}
	if s.OwnerPlayerID != 42 {
		t.Errorf("expected owner 42, got %d", s.OwnerPlayerID)
	}
	if s.Health() != s.Stats.MaxHealth {
		t.Errorf("expected full health, got %f", s.Health())
	}
	if a := s.Pose().Angle; a < 0 || a >= physics.TwoPi {
		t.Errorf("expected normalized angle, got %f", a)
	}
}

func TestNPCShipIDsUnique(t *testing.T) {
	a := NewAttackShip(physics.Pose{})
	b := NewAttackShip(physics.Pose{})
	if a.ID == b.ID {
		t.Error("attack ship ids should be unique")
	}
	if !strings.HasPrefix(NewLightCruiser(physics.Pose{}).ID, "cruiser-") {
		t.Error("cruiser id should carry the cruiser- prefix")
	}
}

func TestTakeDamageClamped(t *testing.T) {
	s := NewAttackShip(physics.Pose{})
	max := s.Stats.MaxHealth

	h, destroyed := s.TakeDamage(-1000)
	if h != max || destroyed {
		t.Errorf("negative damage should clamp at max, got %f destroyed=%v", h, destroyed)
	}

	h, destroyed = s.TakeDamage(max + 500)
	if h != 0 {
		t.Errorf("expected health 0, got %f", h)
	}
	if !destroyed {
		t.Error("expected destroyed on the killing blow")
	}

	_, destroyed = s.TakeDamage(10)
	if destroyed {
		t.Error("destroyed ship should not report destruction twice")
	}
	if s.Health() < 0 || s.Health() > max {
		t.Errorf("health %f outside [0, %f]", s.Health(), max)
	}
}

func TestHealClamped(t *testing.T) {
	s := NewLightCruiser(physics.Pose{})
	s.TakeDamage(100)
	if h := s.Heal(1e6); h != s.Stats.MaxHealth {
		t.Errorf("expected heal to clamp at %f, got %f", s.Stats.MaxHealth, h)
	}
	s.TakeDamage(1e6)
	if h := s.Heal(50); h != 0 {
		t.Errorf("destroyed ship should not heal, got %f", h)
	}
}

func TestFireCooldown(t *testing.T) {
	st := StatsFor(KindPlayer)
	if math.Abs(st.FireCooldown()-1/st.FireRate) > 1e-12 {
		t.Errorf("expected cooldown %f, got %f", 1/st.FireRate, st.FireCooldown())
	}
	if (Stats{}).FireCooldown() != 0 {
		t.Error("zero fire rate should have no cooldown")
	}
}

func TestShipState(t *testing.T) {
	s := NewPlayerShip(7, physics.Pose{X: 1, Y: 2, VX: 3, VY: 4, Angle: 0.5})
	st := s.State()
	if st.ShipID != "player-7" || st.PlayerID != 7 || st.Kind != "player" {
		t.Error("state identity mismatch")
	}
	if st.X != 1 || st.Y != 2 || st.DX != 3 || st.DY != 4 || st.Angle != 0.5 {
		t.Error("state pose mismatch")
	}
}
