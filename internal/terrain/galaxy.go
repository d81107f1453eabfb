package terrain

import (
	"sort"
	"strconv"

	"planetfall-server/internal/physics"
)

const (
	PlanetRadius  = 300.0
	PlanetSpacing = 4000.0
)

// Planet is a landing target in space. Its game id is the decimal ID.
type Planet struct {
	ID     int
	Name   string
	X, Y   float64
	Radius float64
	Seed   uint64
}

// GameID returns the id clients use in JOIN_GAME_REQUEST
func (p Planet) GameID() string {
	return strconv.Itoa(p.ID)
}

// Galaxy is a fixed grid of planets centred in the space bounds.
type Galaxy struct {
	planets []Planet
	byID    map[int]Planet
}

var syllables = []string{"ka", "ra", "to", "vin", "el", "dor", "mu", "zen", "ta", "lo", "qua", "ris"}

// NewGalaxy lays out planets on a grid spaced PlanetSpacing apart inside b.
func NewGalaxy(seed uint64, b physics.Bounds) *Galaxy {
	g := &Galaxy{byID: make(map[int]Planet)}
	cx, cy := b.Center()
	cols := int((b.MaxX - b.MinX) / PlanetSpacing)
	rows := int((b.MaxY - b.MinY) / PlanetSpacing)
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	x0 := cx - float64(cols-1)*PlanetSpacing/2
	y0 := cy - float64(rows-1)*PlanetSpacing/2

	id := 1
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ps := mix(seed, uint64(r), uint64(c))
			p := Planet{
				ID:     id,
				Name:   planetName(ps),
				X:      x0 + float64(c)*PlanetSpacing,
				Y:      y0 + float64(r)*PlanetSpacing,
				Radius: PlanetRadius,
				Seed:   ps,
			}
			g.planets = append(g.planets, p)
			g.byID[id] = p
			id++
		}
	}
	return g
}

func planetName(h uint64) string {
	n := 2 + int(h%2)
	name := ""
	for i := 0; i < n; i++ {
		name += syllables[(h>>(8*uint(i+1)))%uint64(len(syllables))]
	}
	return string(name[0]-'a'+'A') + name[1:]
}

// Planet looks up a planet by id
func (g *Galaxy) Planet(id int) (Planet, bool) {
	p, ok := g.byID[id]
	return p, ok
}

// Planets returns every planet
func (g *Galaxy) Planets() []Planet {
	return append([]Planet(nil), g.planets...)
}

// PlanetsInArea returns planets whose centre lies within radius of (x, y),
// nearest first.
func (g *Galaxy) PlanetsInArea(x, y, radius float64) []Planet {
	var out []Planet
	r2 := radius * radius
	for _, p := range g.planets {
		if physics.DistanceSq(x, y, p.X, p.Y) <= r2 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return physics.DistanceSq(x, y, out[i].X, out[i].Y) < physics.DistanceSq(x, y, out[j].X, out[j].Y)
	})
	return out
}
