package structure

import (
	"time"

	"voxelsim/internal/grid"
)

const (
	// DefaultDensityThreshold marks a voxel as load-bearing matter.
	DefaultDensityThreshold float32 = 0.5
	// DefaultPerFrameBudget is the wall-clock allowance for one Update.
	DefaultPerFrameBudget = time.Millisecond

	// the clock is read once per this many units of work
	checkInterval = 64
)

// DebrisEvent reports one dense voxel with no path to the ground.
type DebrisEvent struct {
	X       int
	Y       int
	Z       int
	Density float32
}

// DebrisCallback is invoked synchronously during Update. It must not call back
// into the Integrity instance.
type DebrisCallback func(DebrisEvent)

// UpdateStats summarises one Update call.
type UpdateStats struct {
	ChunksVerified int
	CellsVisited   int
	Debris         int
	Pending        int
	SweepComplete  bool
}

// Integrity finds dense voxels that are not 6-connected to any dense voxel at
// y <= 0. Work is resumable at cell granularity: a chunk whose search does not
// fit in one call continues where it stopped on the next call.
type Integrity struct {
	threshold float32
	budget    time.Duration
	now       func() time.Time
	onDebris  DebrisCallback

	checked  map[grid.ChunkKey]struct{}
	grounded map[uint64]struct{}
	floating map[uint64]struct{}
	job      *chunkJob
	sweeps   uint64
	version  uint64
}

func NewIntegrity() *Integrity {
	return &Integrity{
		threshold: DefaultDensityThreshold,
		budget:    DefaultPerFrameBudget,
		now:       time.Now,
		checked:   make(map[grid.ChunkKey]struct{}),
		grounded:  make(map[uint64]struct{}),
		floating:  make(map[uint64]struct{}),
	}
}

// SetPerFrameBudget bounds the wall-clock time of one Update. A non-positive
// budget makes Update a no-op.
func (s *Integrity) SetPerFrameBudget(d time.Duration) {
	s.budget = d
}

func (s *Integrity) PerFrameBudget() time.Duration {
	return s.budget
}

func (s *Integrity) SetDensityThreshold(threshold float32) {
	s.threshold = threshold
}

// SetClock replaces the time source used for budgeting.
func (s *Integrity) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *Integrity) OnDebris(cb DebrisCallback) {
	s.onDebris = cb
}

// Sweeps counts completed full passes over the active chunks.
func (s *Integrity) Sweeps() uint64 {
	return s.sweeps
}

// Verified reports whether a chunk is cached as checked in the current sweep.
func (s *Integrity) Verified(cc grid.ChunkCoord) bool {
	_, ok := s.checked[cc.Key()]
	return ok
}

type meter struct {
	now      func() time.Time
	deadline time.Time
	units    int
}

// tick charges n units of work and reports whether budget remains.
func (m *meter) tick(n int) bool {
	m.units += n
	if m.units < checkInterval {
		return true
	}
	m.units = 0
	return m.now().Before(m.deadline)
}

func (m *meter) expired() bool {
	return !m.now().Before(m.deadline)
}

// Update advances the sweep over density's active chunks until the budget is
// spent. Chunks already verified in this sweep are skipped; a chunk that left
// the active set loses its cached result. A write to density since the last
// call drops the per-voxel verdicts and restarts any component search in
// flight, so stale classifications are never reported. Once every active chunk
// has been verified the caches are dropped so the next call starts a fresh
// sweep.
func (s *Integrity) Update(density *grid.Grid[float32]) UpdateStats {
	var stats UpdateStats
	if s.budget <= 0 || density == nil {
		return stats
	}

	if v := density.Version(); v != s.version {
		s.version = v
		clear(s.grounded)
		clear(s.floating)
		if s.job != nil && s.job.searching {
			s.job.end()
		}
	}

	active := density.ActiveChunks()
	live := make(map[grid.ChunkKey]struct{}, len(active))
	for _, cc := range active {
		live[cc.Key()] = struct{}{}
	}
	for key := range s.checked {
		if _, ok := live[key]; !ok {
			delete(s.checked, key)
		}
	}
	if s.job != nil {
		if _, ok := live[s.job.key]; !ok {
			s.job = nil
		}
	}

	m := &meter{now: s.now, deadline: s.now().Add(s.budget)}

	if s.job != nil && !s.runJob(density, m, &stats) {
		stats.Pending = s.pending(active)
		return stats
	}

	for _, cc := range active {
		key := cc.Key()
		if _, done := s.checked[key]; done {
			continue
		}
		if m.expired() {
			stats.Pending = s.pending(active)
			return stats
		}
		s.job = newChunkJob(cc)
		if !s.runJob(density, m, &stats) {
			stats.Pending = s.pending(active)
			return stats
		}
	}

	s.sweeps++
	stats.SweepComplete = true
	clear(s.checked)
	clear(s.grounded)
	clear(s.floating)
	return stats
}

func (s *Integrity) pending(active []grid.ChunkCoord) int {
	n := 0
	for _, cc := range active {
		if _, ok := s.checked[cc.Key()]; !ok {
			n++
		}
	}
	return n
}

func (s *Integrity) runJob(density *grid.Grid[float32], m *meter, stats *UpdateStats) bool {
	if !s.floodFillChunk(density, s.job, m, stats) {
		return false
	}
	s.checked[s.job.key] = struct{}{}
	s.job = nil
	stats.ChunksVerified++
	return true
}
