package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithGlobalNoopMeter(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.Tick(16 * time.Millisecond)
		m.Broadcast(2)
		m.Dropped()
		m.SessionOpened()
		m.SessionClosed()
		m.ProjectileFired("player")
		m.ShipDestroyed("attack_ship")
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick(time.Millisecond)
		m.Broadcast(1)
		m.Dropped()
		m.SessionOpened()
		m.SessionClosed()
		m.ProjectileFired("player")
		m.ShipDestroyed("player")
	})
}
