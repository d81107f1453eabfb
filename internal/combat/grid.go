package combat

import (
	"math"
	"sort"
)

// GridCellSize is about twice the largest contact radius, so a query never
// spans more than a 3x3 block of cells.
const GridCellSize = 160.0

type cell struct{ x, y int }

// Grid is a sparse broad-phase index over ship positions. Space is large and
// mostly empty, so cells only exist while something is in them.
type Grid struct {
	cells map[cell][]int
}

func NewGrid() *Grid {
	return &Grid{cells: make(map[cell][]int)}
}

func cellOf(x, y float64) cell {
	return cell{int(math.Floor(x / GridCellSize)), int(math.Floor(y / GridCellSize))}
}

// Insert adds idx at the given position
func (g *Grid) Insert(x, y float64, idx int) {
	c := cellOf(x, y)
	g.cells[c] = append(g.cells[c], idx)
}

// QueryBuf appends the indices in every cell overlapping the box of the
// given radius around (x, y) to buf. The result is sorted ascending so that
// callers scanning for a first match see the same order as a linear scan.
func (g *Grid) QueryBuf(x, y, radius float64, buf []int) []int {
	lo := cellOf(x-radius, y-radius)
	hi := cellOf(x+radius, y+radius)
	start := len(buf)
	for cy := lo.y; cy <= hi.y; cy++ {
		for cx := lo.x; cx <= hi.x; cx++ {
			buf = append(buf, g.cells[cell{cx, cy}]...)
		}
	}
	sort.Ints(buf[start:])
	return buf
}
