package physics

import "math"

// Pose is the kinematic state of a point-mass ship.
type Pose struct {
	X, Y   float64
	VX, VY float64
	Angle  float64 // radians, [0, 2π)
}

// Speed returns the magnitude of the velocity.
func (p Pose) Speed() float64 {
	return math.Sqrt(p.VX*p.VX + p.VY*p.VY)
}

// Forward returns the unit vector the pose is facing.
func (p Pose) Forward() (float64, float64) {
	return math.Cos(p.Angle), math.Sin(p.Angle)
}

// Limits are the per-ship movement constraints.
type Limits struct {
	MaxSpeed        float64 // units/s
	Acceleration    float64 // units/s²
	TurnRate        float64 // radians/s
	FacingTolerance float64 // radians; thrust only applies inside this cone
}

// Steer advances p by dt seconds while turning toward heading.
//
// throttle in (0, 1] accelerates toward heading×MaxSpeed×throttle, but only
// once the ship faces within FacingTolerance of heading. throttle <= 0 brakes
// toward zero velocity. Speed is clamped to MaxSpeed and the final position
// to b. This is the only movement primitive; AI and player ships share it.
func Steer(p Pose, heading, throttle float64, lim Limits, b Bounds, dt float64) Pose {
	heading = NormalizeAngle(heading)

	diff := AngleDiff(p.Angle, heading)
	maxTurn := lim.TurnRate * dt
	if diff > maxTurn {
		diff = maxTurn
	} else if diff < -maxTurn {
		diff = -maxTurn
	}
	p.Angle = NormalizeAngle(p.Angle + diff)

	var wantVX, wantVY float64
	accelerate := true
	if throttle > 0 {
		if math.Abs(AngleDiff(p.Angle, heading)) <= lim.FacingTolerance {
			throttle = math.Min(throttle, 1)
			fx, fy := p.Forward()
			wantVX = fx * lim.MaxSpeed * throttle
			wantVY = fy * lim.MaxSpeed * throttle
		} else {
			accelerate = false
		}
	}

	if accelerate {
		dvx := wantVX - p.VX
		dvy := wantVY - p.VY
		dv := math.Sqrt(dvx*dvx + dvy*dvy)
		step := lim.Acceleration * dt
		if dv > step && dv > 0 {
			dvx *= step / dv
			dvy *= step / dv
		}
		p.VX += dvx
		p.VY += dvy
	}

	p = clampSpeed(p, lim.MaxSpeed)
	p.X += p.VX * dt
	p.Y += p.VY * dt
	return clampPosition(p, b)
}

// Drift integrates p without steering input (dead reckoning).
func Drift(p Pose, lim Limits, b Bounds, dt float64) Pose {
	p = clampSpeed(p, lim.MaxSpeed)
	p.X += p.VX * dt
	p.Y += p.VY * dt
	return clampPosition(p, b)
}

// Constrain normalizes the angle and clamps speed and position of a pose
// reported from outside the simulation.
func Constrain(p Pose, lim Limits, b Bounds) Pose {
	p.Angle = NormalizeAngle(p.Angle)
	p = clampSpeed(p, lim.MaxSpeed)
	return clampPosition(p, b)
}

func clampSpeed(p Pose, maxSpeed float64) Pose {
	speed := p.Speed()
	if speed > maxSpeed && speed > 0 {
		scale := maxSpeed / speed
		p.VX *= scale
		p.VY *= scale
	}
	return p
}

func clampPosition(p Pose, b Bounds) Pose {
	x, y := b.Clamp(p.X, p.Y)
	if x != p.X {
		p.VX = 0
	}
	if y != p.Y {
		p.VY = 0
	}
	p.X, p.Y = x, y
	return p
}
