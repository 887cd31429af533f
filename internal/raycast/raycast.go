package raycast

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/grid"
)

// DefaultThreshold is the density above which a cell blocks a ray.
const DefaultThreshold = 0.5

// Hit describes one solid cell crossed by a ray.
type Hit struct {
	Voxel    grid.Coord
	Normal   grid.Coord // face entered, opposite the step direction; zero when the ray starts inside
	Distance float32
	Point    mgl32.Vec3
	Density  float32
}

type traversal struct {
	origin  mgl32.Vec3
	dir     mgl32.Vec3
	cell    [3]int
	step    [3]int
	tMax    [3]float64
	tDelta  [3]float64
	t       float64
	normal  grid.Coord
	maxDist float64
}

func newTraversal(origin, dir mgl32.Vec3, maxDistance float32) (traversal, bool) {
	tr := traversal{origin: origin, maxDist: float64(maxDistance)}
	length := dir.Len()
	if length > 0 && !math.IsNaN(float64(length)) {
		tr.dir = dir.Mul(1 / length)
	}
	for axis := 0; axis < 3; axis++ {
		o := float64(origin[axis])
		d := float64(tr.dir[axis])
		tr.cell[axis] = int(math.Floor(o))
		switch {
		case d > 0:
			tr.step[axis] = 1
			tr.tDelta[axis] = 1 / d
			tr.tMax[axis] = (float64(tr.cell[axis]+1) - o) / d
		case d < 0:
			tr.step[axis] = -1
			tr.tDelta[axis] = -1 / d
			tr.tMax[axis] = (float64(tr.cell[axis]) - o) / d
		default:
			tr.tDelta[axis] = math.Inf(1)
			tr.tMax[axis] = math.Inf(1)
		}
	}
	return tr, length > 0
}

// next advances to the following cell. It reports false once the ray passes
// maxDistance.
func (tr *traversal) next() bool {
	axis := 0
	if tr.tMax[1] < tr.tMax[axis] {
		axis = 1
	}
	if tr.tMax[2] < tr.tMax[axis] {
		axis = 2
	}
	t := tr.tMax[axis]
	if math.IsInf(t, 1) || t > tr.maxDist {
		return false
	}
	tr.t = t
	tr.cell[axis] += tr.step[axis]
	tr.tMax[axis] += tr.tDelta[axis]
	tr.normal = grid.Coord{}
	switch axis {
	case 0:
		tr.normal.X = -tr.step[0]
	case 1:
		tr.normal.Y = -tr.step[1]
	default:
		tr.normal.Z = -tr.step[2]
	}
	return true
}

func (tr *traversal) hit(density float32) Hit {
	return Hit{
		Voxel:    grid.Coord{X: tr.cell[0], Y: tr.cell[1], Z: tr.cell[2]},
		Normal:   tr.normal,
		Distance: float32(tr.t),
		Point:    tr.origin.Add(tr.dir.Mul(float32(tr.t))),
		Density:  density,
	}
}

// CastRay walks the grid cell by cell from origin along dir and returns the
// first cell whose value exceeds threshold. A ray starting inside a solid
// cell hits it at distance zero.
func CastRay(g *grid.Grid[float32], origin, dir mgl32.Vec3, maxDistance, threshold float32) (Hit, bool) {
	tr, moving := newTraversal(origin, dir, maxDistance)
	if v := g.Get(tr.cell[0], tr.cell[1], tr.cell[2]); v > threshold {
		return tr.hit(v), true
	}
	if !moving || maxDistance <= 0 {
		return Hit{}, false
	}
	for tr.next() {
		if v := g.Get(tr.cell[0], tr.cell[1], tr.cell[2]); v > threshold {
			return tr.hit(v), true
		}
	}
	return Hit{}, false
}

// CastRayAll returns every solid cell crossed within maxDistance, in travel order.
func CastRayAll(g *grid.Grid[float32], origin, dir mgl32.Vec3, maxDistance, threshold float32) []Hit {
	tr, moving := newTraversal(origin, dir, maxDistance)
	var hits []Hit
	if v := g.Get(tr.cell[0], tr.cell[1], tr.cell[2]); v > threshold {
		hits = append(hits, tr.hit(v))
	}
	if !moving || maxDistance <= 0 {
		return hits
	}
	for tr.next() {
		if v := g.Get(tr.cell[0], tr.cell[1], tr.cell[2]); v > threshold {
			hits = append(hits, tr.hit(v))
		}
	}
	return hits
}
