package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "planetfall-server/internal/telemetry"

// Metrics groups the server instruments. A nil *Metrics is valid and records
// nothing, so packages under test can skip wiring it.
type Metrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	broadcasts   metric.Int64Counter
	dropped      metric.Int64Counter
	sessions     metric.Int64UpDownCounter
	projectiles  metric.Int64Counter
	destroyed    metric.Int64Counter
}

// New creates the instruments from the global OTel meter (no-op if not configured).
func New() (*Metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &Metrics{}
	var err error

	if out.ticks, err = m.Int64Counter("sim.ticks",
		metric.WithDescription("Simulation ticks executed")); err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	if out.tickDuration, err = m.Float64Histogram("sim.tick.duration",
		metric.WithDescription("Wall time spent in one simulation step"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}
	if out.broadcasts, err = m.Int64Counter("net.broadcasts",
		metric.WithDescription("Messages fanned out to sessions")); err != nil {
		return nil, fmt.Errorf("creating broadcast counter: %w", err)
	}
	if out.dropped, err = m.Int64Counter("net.sends.dropped",
		metric.WithDescription("Messages dropped because a session queue was full or closed")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if out.sessions, err = m.Int64UpDownCounter("net.sessions",
		metric.WithDescription("Live sessions")); err != nil {
		return nil, fmt.Errorf("creating session counter: %w", err)
	}
	if out.projectiles, err = m.Int64Counter("combat.projectiles",
		metric.WithDescription("Projectiles fired")); err != nil {
		return nil, fmt.Errorf("creating projectile counter: %w", err)
	}
	if out.destroyed, err = m.Int64Counter("combat.ships.destroyed",
		metric.WithDescription("Ships destroyed, by kind")); err != nil {
		return nil, fmt.Errorf("creating destroyed counter: %w", err)
	}
	return out, nil
}

// Tick records one simulation step
func (m *Metrics) Tick(d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.ticks.Add(ctx, 1)
	m.tickDuration.Record(ctx, float64(d.Microseconds())/1000)
}

// Broadcast records a fan-out of one message, and how many recipients dropped it.
func (m *Metrics) Broadcast(dropped int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.broadcasts.Add(ctx, 1)
	if dropped > 0 {
		m.dropped.Add(ctx, int64(dropped))
	}
}

// Dropped records a single send that could not be enqueued
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Add(context.Background(), 1)
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), 1)
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), -1)
}

func (m *Metrics) ProjectileFired(kind string) {
	if m == nil {
		return
	}
	m.projectiles.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ShipDestroyed(kind string) {
	if m == nil {
		return
	}
	m.destroyed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}
