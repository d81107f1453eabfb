package physics

import "math"

const TwoPi = 2 * math.Pi

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// DistanceSq returns the squared distance between two points
func DistanceSq(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return dx*dx + dy*dy
}

// HeadingTo returns the angle from (x1,y1) toward (x2,y2), normalized to [0, 2π).
func HeadingTo(x1, y1, x2, y2 float64) float64 {
	return NormalizeAngle(math.Atan2(y2-y1, x2-x1))
}

// NormalizeAngle wraps angle to [0, 2π)
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	// math.Mod of a tiny negative value can round back up to exactly 2π
	if a >= TwoPi {
		a = 0
	}
	return a
}

// AngleDiff returns the shortest signed turn from `from` to `to`, in (-π, π].
func AngleDiff(from, to float64) float64 {
	d := NormalizeAngle(to - from)
	if d > math.Pi {
		d -= TwoPi
	}
	return d
}

// CirclesOverlap checks if two circles overlap
func CirclesOverlap(x1, y1, r1, x2, y2, r2 float64) bool {
	radSum := r1 + r2
	return DistanceSq(x1, y1, x2, y2) <= radSum*radSum
}

// Bounds is the operational rectangle every ship is clamped to.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Clamp returns (x, y) pulled inside the rectangle.
func (b Bounds) Clamp(x, y float64) (float64, float64) {
	return Clamp(x, b.MinX, b.MaxX), Clamp(y, b.MinY, b.MaxY)
}

// Contains reports whether (x, y) lies inside the rectangle.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Center returns the middle of the rectangle.
func (b Bounds) Center() (float64, float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}
