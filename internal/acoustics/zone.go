// Package acoustics estimates the enclosed air volume around a listener and
// derives reverb parameters from it.
package acoustics

import "voxelsim/internal/grid"

// DefaultThreshold is the density at which a voxel reflects sound.
const DefaultThreshold float32 = 0.5

// ZoneEstimate is a snapshot of one breadth-first pass through air voxels.
type ZoneEstimate struct {
	Volume      int
	SurfaceArea int
	Openness    float32
	Complete    bool
}

// ZoneEstimator walks air voxels from a start position in bounded steps. The
// queue, visited set and accumulators persist between AdvanceBFS calls.
type ZoneEstimator struct {
	threshold float32

	start   grid.Coord
	queue   []grid.Coord
	head    int
	visited map[uint64]struct{}

	volume   int
	surface  int
	complete bool
}

func NewZoneEstimator(threshold float32) *ZoneEstimator {
	return &ZoneEstimator{
		threshold: threshold,
		visited:   make(map[uint64]struct{}),
		complete:  true,
	}
}

func (e *ZoneEstimator) Threshold() float32 {
	return e.threshold
}

func (e *ZoneEstimator) Start() grid.Coord {
	return e.start
}

// Reset drops all progress and seeds the walk at (x,y,z).
func (e *ZoneEstimator) Reset(x, y, z int) {
	e.start = grid.Coord{X: x, Y: y, Z: z}
	e.queue = append(e.queue[:0], e.start)
	e.head = 0
	clear(e.visited)
	e.visited[grid.CellKey(x, y, z)] = struct{}{}
	e.volume = 0
	e.surface = 0
	e.complete = false
}

// AdvanceBFS pops up to budget air voxels and reports whether the walk has
// run out of reachable air. A solid start voxel is discarded without counting.
func (e *ZoneEstimator) AdvanceBFS(density *grid.Grid[float32], budget int) bool {
	if e.complete || budget <= 0 || density == nil {
		return e.complete
	}

	for popped := 0; popped < budget && e.head < len(e.queue); {
		c := e.queue[e.head]
		e.head++
		if e.solid(density, c) {
			continue
		}
		popped++
		e.volume++
		for _, off := range grid.Offsets6 {
			n := c.Add(off)
			if e.solid(density, n) {
				e.surface++
				continue
			}
			key := grid.CellKey(n.X, n.Y, n.Z)
			if _, seen := e.visited[key]; seen {
				continue
			}
			e.visited[key] = struct{}{}
			e.queue = append(e.queue, n)
		}
	}

	if e.head >= len(e.queue) {
		e.complete = true
		e.queue = e.queue[:0]
		e.head = 0
		clear(e.visited)
	}
	return e.complete
}

// Estimate returns the current accumulators. Openness is only meaningful while
// the walk is still escaping; a completed walk is sealed.
func (e *ZoneEstimator) Estimate() ZoneEstimate {
	est := ZoneEstimate{
		Volume:      e.volume,
		SurfaceArea: e.surface,
		Complete:    e.complete,
	}
	if !e.complete && e.volume > 0 {
		est.Openness = clamp(1-float32(e.surface)/float32(6*e.volume), 0, 1)
	}
	return est
}

func (e *ZoneEstimator) solid(density *grid.Grid[float32], c grid.Coord) bool {
	return density.Get(c.X, c.Y, c.Z) >= e.threshold
}

// EstimateZone runs a fresh walk from (x,y,z) limited to maxVoxels air voxels.
func EstimateZone(density *grid.Grid[float32], x, y, z, maxVoxels int, threshold float32) ZoneEstimate {
	est := NewZoneEstimator(threshold)
	est.Reset(x, y, z)
	est.AdvanceBFS(density, maxVoxels)
	return est.Estimate()
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
