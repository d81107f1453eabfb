package terrain

import "math"

const (
	ChunkSize   = 16   // tiles per chunk side
	TileSize    = 32.0 // world units per tile
	WorldChunks = 8    // chunks per planet side
	WorldTiles  = ChunkSize * WorldChunks
)

// InWorld reports whether chunk (cx, cy) lies on the planet surface
func InWorld(cx, cy int) bool {
	return cx >= 0 && cy >= 0 && cx < WorldChunks && cy < WorldChunks
}

// Tile values index into the palette
const (
	TileGround  = 0
	TileDirt    = 1
	TileGrass   = 2
	TileShallow = 3
	TileRock    = 4 // solid
	TileBoulder = 5 // solid
)

// Chunk is a square block of tiles, row-major [y][x].
type Chunk struct {
	X     int     `msgpack:"x"`
	Y     int     `msgpack:"y"`
	Tiles [][]int `msgpack:"tiles"`
}

// Palette holds six RGB triples, one per tile value.
type Palette [6][3]int

// Generator produces the ground of one planet.
type Generator interface {
	Chunk(cx, cy int) Chunk
	Solid(tx, ty int) bool
	Palette() Palette
}

// IsSolid reports whether a tile value blocks movement
func IsSolid(tile int) bool {
	return tile >= TileRock
}

// WorldSize is the ground extent in world units
func WorldSize() float64 {
	return WorldTiles * TileSize
}

// TileAt converts a world position to tile coordinates
func TileAt(x, y float64) (int, int) {
	return int(math.Floor(x / TileSize)), int(math.Floor(y / TileSize))
}

// HitsSolid reports whether a square hurtbox of half-size r centred at
// (x, y) overlaps any solid tile.
func HitsSolid(g Generator, x, y, r float64) bool {
	x0, y0 := TileAt(x-r, y-r)
	x1, y1 := TileAt(x+r, y+r)
	for ty := y0; ty <= y1; ty++ {
		for tx := x0; tx <= x1; tx++ {
			if g.Solid(tx, ty) {
				return true
			}
		}
	}
	return false
}

// Hashed is a deterministic boulder field inside a solid border ring.
type Hashed struct {
	Seed    uint64
	density uint64 // boulders per 1024 tiles
}

// NewHashed creates a generator for a planet seed
func NewHashed(seed uint64) *Hashed {
	return &Hashed{Seed: seed, density: 40}
}

func (h *Hashed) tile(tx, ty int) int {
	if tx <= 0 || ty <= 0 || tx >= WorldTiles-1 || ty >= WorldTiles-1 {
		return TileRock
	}
	// keep the landing area around the centre clear
	c := WorldTiles / 2
	if abs(tx-c) < 4 && abs(ty-c) < 4 {
		return TileGround
	}
	v := mix(h.Seed, uint64(tx), uint64(ty))
	if v%1024 < h.density {
		return TileBoulder
	}
	return int((v >> 10) % 4)
}

// Solid is true outside the world and on rock/boulder tiles
func (h *Hashed) Solid(tx, ty int) bool {
	if tx < 0 || ty < 0 || tx >= WorldTiles || ty >= WorldTiles {
		return true
	}
	return IsSolid(h.tile(tx, ty))
}

func (h *Hashed) Chunk(cx, cy int) Chunk {
	c := Chunk{X: cx, Y: cy, Tiles: make([][]int, ChunkSize)}
	for y := 0; y < ChunkSize; y++ {
		row := make([]int, ChunkSize)
		for x := 0; x < ChunkSize; x++ {
			tx, ty := cx*ChunkSize+x, cy*ChunkSize+y
			if tx < 0 || ty < 0 || tx >= WorldTiles || ty >= WorldTiles {
				row[x] = TileRock
				continue
			}
			row[x] = h.tile(tx, ty)
		}
		c.Tiles[y] = row
	}
	return c
}

// Palette derives six colours from the seed. Solid tiles are always darker.
func (h *Hashed) Palette() Palette {
	var p Palette
	for i := range p {
		v := mix(h.Seed, uint64(i), 0xC0FFEE)
		base := 90
		if IsSolid(i) {
			base = 30
		}
		p[i] = [3]int{
			base + int(v%110),
			base + int((v>>8)%110),
			base + int((v>>16)%110),
		}
	}
	return p
}

// mix is a splitmix64-style hash of three values
func mix(seed, a, b uint64) uint64 {
	z := seed ^ (a * 0x9E3779B97F4A7C15) ^ (b * 0xC2B2AE3D27D4EB4F)
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
