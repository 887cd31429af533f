package structure

import "voxelsim/internal/grid"

// chunkJob is the resumable state of one chunk's connectivity check.
type chunkJob struct {
	key   grid.ChunkKey
	coord grid.ChunkCoord

	scanIndex int
	scanned   bool
	dense     []grid.Coord
	cursor    int

	// component search for dense[cursor]
	searching bool
	queue     []grid.Coord
	head      int
	visited   map[uint64]struct{}
	order     []uint64
}

func newChunkJob(cc grid.ChunkCoord) *chunkJob {
	return &chunkJob{key: cc.Key(), coord: cc}
}

type verdict int

const (
	unresolved verdict = iota
	grounded
	floating
)

// floodFillChunk classifies every dense voxel of one chunk. It reports false
// when the budget ran out first; the job keeps its progress.
func (s *Integrity) floodFillChunk(density *grid.Grid[float32], job *chunkJob, m *meter, stats *UpdateStats) bool {
	ch := density.Chunk(job.coord.X, job.coord.Y, job.coord.Z)
	if ch == nil {
		return true
	}

	for !job.scanned {
		end := job.scanIndex + grid.ChunkSize
		for i := job.scanIndex; i < end; i++ {
			if ch.At(i) >= s.threshold {
				job.dense = append(job.dense, ch.CellAt(i))
			}
		}
		job.scanIndex = end
		if job.scanIndex >= grid.ChunkVolume {
			job.scanned = true
			break
		}
		if !m.tick(1) {
			return false
		}
	}

	for job.cursor < len(job.dense) {
		v := job.dense[job.cursor]
		if !job.searching && density.Get(v.X, v.Y, v.Z) < s.threshold {
			// removed since the scan
			job.cursor++
			continue
		}
		key := grid.CellKey(v.X, v.Y, v.Z)
		result := s.classified(v, key)
		if result == unresolved {
			if !job.searching {
				job.begin(v, key)
			}
			var done bool
			result, done = s.search(density, job, m, stats)
			if !done {
				return false
			}
		}
		if result == floating {
			stats.Debris++
			if s.onDebris != nil {
				s.onDebris(DebrisEvent{X: v.X, Y: v.Y, Z: v.Z, Density: density.Get(v.X, v.Y, v.Z)})
			}
		}
		job.cursor++
		if !m.tick(1) {
			return false
		}
	}
	return true
}

func (s *Integrity) classified(v grid.Coord, key uint64) verdict {
	if v.Y <= 0 {
		return grounded
	}
	if _, ok := s.grounded[key]; ok {
		return grounded
	}
	if _, ok := s.floating[key]; ok {
		return floating
	}
	return unresolved
}

func (j *chunkJob) begin(v grid.Coord, key uint64) {
	j.searching = true
	j.queue = append(j.queue[:0], v)
	j.head = 0
	j.visited = map[uint64]struct{}{key: {}}
	j.order = append(j.order[:0], key)
}

func (j *chunkJob) end() {
	j.searching = false
	j.queue = j.queue[:0]
	j.head = 0
	j.visited = nil
	j.order = j.order[:0]
}

// search expands the current component breadth first through dense voxels,
// crossing chunk boundaries, until it meets ground, a known classification,
// or runs dry. The second result is false when the budget ran out.
func (s *Integrity) search(density *grid.Grid[float32], job *chunkJob, m *meter, stats *UpdateStats) (verdict, bool) {
	result := floating
	for job.head < len(job.queue) {
		u := job.queue[job.head]
		job.head++
		stats.CellsVisited++

		if known := s.classified(u, grid.CellKey(u.X, u.Y, u.Z)); known != unresolved {
			result = known
			break
		}
		for _, off := range grid.Offsets6 {
			n := u.Add(off)
			if density.Get(n.X, n.Y, n.Z) < s.threshold {
				continue
			}
			key := grid.CellKey(n.X, n.Y, n.Z)
			if _, seen := job.visited[key]; seen {
				continue
			}
			job.visited[key] = struct{}{}
			job.order = append(job.order, key)
			job.queue = append(job.queue, n)
		}
		if job.head < len(job.queue) && !m.tick(1) {
			return unresolved, false
		}
	}

	target := s.floating
	if result == grounded {
		target = s.grounded
	}
	for _, key := range job.order {
		target[key] = struct{}{}
	}
	job.end()
	return result, true
}
