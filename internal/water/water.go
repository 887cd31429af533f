package water

import (
	"math"

	"voxelsim/internal/grid"
)

const (
	// MinWaterLevel is the level below which a cell counts as dry.
	MinWaterLevel float32 = 0.001
	// GravityFlowRate is the share of a cell's water that may fall per step.
	GravityFlowRate float32 = 0.5
	// SolidThreshold is the density at which a cell blocks water.
	SolidThreshold float32 = 0.5
	// DefaultPerFrameBudget is the number of active cells processed per step.
	DefaultPerFrameBudget = 4096
)

// ChangeEvent reports a cell whose level moved by more than MinWaterLevel in
// one step.
type ChangeEvent struct {
	Coord    grid.Coord
	Previous float32
	Level    float32
}

// ChangeCallback is invoked synchronously during Step. It must not call back
// into the simulation.
type ChangeCallback func(ChangeEvent)

// StepStats summarises one Step call.
type StepStats struct {
	ActiveCells    int
	ProcessedCells int
	Changes        int
	TotalWater     float64
}

// Simulation is a double-buffered cellular water solver over a read-only
// density grid. It owns the water level field.
type Simulation struct {
	density *grid.Grid[float32]
	current *grid.FieldLayer[float32]
	next    *grid.FieldLayer[float32]

	budget   int
	onChange ChangeCallback

	active    []grid.Coord
	activeSet map[uint64]struct{}
	cursor    int
	steps     uint64
	total     float64
}

func NewSimulation(density *grid.Grid[float32]) *Simulation {
	if density == nil {
		density = grid.New[float32]()
	}
	return &Simulation{
		density:   density,
		current:   grid.NewFieldLayer[float32](grid.LayerWater),
		next:      grid.NewFieldLayer[float32](grid.LayerWater),
		budget:    DefaultPerFrameBudget,
		activeSet: make(map[uint64]struct{}),
	}
}

// SetPerFrameBudget bounds the number of active cells processed per Step.
// A non-positive budget makes Step a no-op.
func (s *Simulation) SetPerFrameBudget(cells int) {
	s.budget = cells
}

func (s *Simulation) PerFrameBudget() int {
	return s.budget
}

func (s *Simulation) OnChange(cb ChangeCallback) {
	s.onChange = cb
}

// Levels exposes the current water field for readers such as renderers.
// Writes through it are not reflected in Total.
func (s *Simulation) Levels() *grid.FieldLayer[float32] {
	return s.current
}

func (s *Simulation) Level(x, y, z int) float32 {
	return s.current.Get(x, y, z)
}

func (s *Simulation) Steps() uint64 {
	return s.steps
}

// SetLevel overwrites a cell's level, clamped to [0,1]. Solid cells are left dry.
func (s *Simulation) SetLevel(x, y, z int, level float32) bool {
	if s.solid(x, y, z) {
		return false
	}
	level = clampLevel(level)
	s.total += float64(level - s.current.Get(x, y, z))
	s.current.Set(x, y, z, level)
	return true
}

// AddWater adds up to amount to a non-solid cell and returns what was accepted.
func (s *Simulation) AddWater(x, y, z int, amount float32) float32 {
	if amount <= 0 || s.solid(x, y, z) {
		return 0
	}
	level := s.current.Get(x, y, z)
	accepted := amount
	if space := 1 - level; accepted > space {
		accepted = space
	}
	if accepted <= 0 {
		return 0
	}
	s.current.Set(x, y, z, level+accepted)
	s.total += float64(accepted)
	return accepted
}

// RemoveWater empties a cell and returns the level it held.
func (s *Simulation) RemoveWater(x, y, z int) float32 {
	level := s.current.Get(x, y, z)
	if level == 0 {
		return 0
	}
	s.current.Set(x, y, z, 0)
	s.total -= float64(level)
	return level
}

// Total is the running sum of every level, kept up to date by SetLevel,
// AddWater, RemoveWater and Step.
func (s *Simulation) Total() float64 {
	return s.total
}

// TotalWater recounts every materialized level.
func (s *Simulation) TotalWater() float64 {
	var total float64
	g := s.current.Grid()
	for _, cc := range g.ActiveChunks() {
		ch := g.Chunk(cc.X, cc.Y, cc.Z)
		for i := 0; i < grid.ChunkVolume; i++ {
			total += float64(ch.At(i))
		}
	}
	return total
}

// ActiveCells returns the active set gathered by the most recent Step.
func (s *Simulation) ActiveCells() []grid.Coord {
	return append([]grid.Coord(nil), s.active...)
}

func (s *Simulation) solid(x, y, z int) bool {
	return s.density.Get(x, y, z) >= SolidThreshold
}

// Step advances the field by one budgeted pass and swaps buffers.
func (s *Simulation) Step() StepStats {
	if s.budget <= 0 {
		return StepStats{}
	}
	s.collectActiveCells()
	s.next.Grid().CopyFrom(s.current.Grid())

	stats := StepStats{ActiveCells: len(s.active)}
	if n := len(s.active); n > 0 {
		work := s.budget
		if work > n {
			work = n
		}
		start := s.cursor % n
		for i := 0; i < work; i++ {
			c := s.active[(start+i)%n]
			s.applyWaterRules(c.X, c.Y, c.Z)
		}
		s.cursor = (start + work) % n
		stats.ProcessedCells = work
	}

	for _, c := range s.active {
		prev := s.current.Get(c.X, c.Y, c.Z)
		level := s.next.Get(c.X, c.Y, c.Z)
		if snapped := snapLevel(level); snapped != level {
			s.next.Set(c.X, c.Y, c.Z, snapped)
			level = snapped
		}
		s.total += float64(level - prev)
		if absf(level-prev) > MinWaterLevel {
			stats.Changes++
			if s.onChange != nil {
				s.onChange(ChangeEvent{Coord: c, Previous: prev, Level: level})
			}
		}
	}

	s.current, s.next = s.next, s.current
	s.steps++
	stats.TotalWater = s.total
	return stats
}

// collectActiveCells rebuilds the active set from wet cells plus their lateral
// and lower neighbours.
func (s *Simulation) collectActiveCells() {
	s.active = s.active[:0]
	clear(s.activeSet)
	g := s.current.Grid()
	for _, cc := range g.ActiveChunks() {
		ch := g.Chunk(cc.X, cc.Y, cc.Z)
		for i := 0; i < grid.ChunkVolume; i++ {
			if ch.At(i) <= MinWaterLevel {
				continue
			}
			c := ch.CellAt(i)
			s.markActive(c)
			for _, off := range grid.Lateral {
				s.markActive(c.Add(off))
			}
			s.markActive(grid.Coord{X: c.X, Y: c.Y - 1, Z: c.Z})
		}
	}
}

func (s *Simulation) markActive(c grid.Coord) {
	key := grid.CellKey(c.X, c.Y, c.Z)
	if _, ok := s.activeSet[key]; ok {
		return
	}
	s.activeSet[key] = struct{}{}
	s.active = append(s.active, c)
}

// applyWaterRules moves water out of one cell into next. Targets are capped
// by their space in next so several sources cannot overfill one cell.
func (s *Simulation) applyWaterRules(x, y, z int) {
	if s.solid(x, y, z) {
		return
	}
	remaining := s.current.Get(x, y, z)
	if remaining <= MinWaterLevel {
		return
	}

	if !s.solid(x, y-1, z) {
		below := s.next.Get(x, y-1, z)
		transfer := minf(remaining*GravityFlowRate, 1-below)
		if transfer > 0 {
			s.move(x, y, z, x, y-1, z, transfer)
			remaining -= transfer
		}
	}
	if remaining <= MinWaterLevel {
		return
	}

	var targets [4]grid.Coord
	var levels [4]float32
	count := 0
	for _, off := range grid.Lateral {
		nx, nz := x+off.X, z+off.Z
		if s.solid(nx, y, nz) {
			continue
		}
		level := s.current.Get(nx, y, nz)
		if level >= remaining {
			continue
		}
		targets[count] = grid.Coord{X: nx, Y: y, Z: nz}
		levels[count] = level
		count++
	}
	if count == 0 {
		return
	}
	share := float32(count + 1)
	for i := 0; i < count; i++ {
		t := targets[i]
		flow := (remaining - levels[i]) / share
		if space := 1 - s.next.Get(t.X, t.Y, t.Z); flow > space {
			flow = space
		}
		if flow <= 0 {
			continue
		}
		s.move(x, y, z, t.X, t.Y, t.Z, flow)
	}
}

func (s *Simulation) move(fx, fy, fz, tx, ty, tz int, amount float32) {
	s.next.Set(fx, fy, fz, s.next.Get(fx, fy, fz)-amount)
	s.next.Set(tx, ty, tz, s.next.Get(tx, ty, tz)+amount)
}

func clampLevel(v float32) float32 {
	if v < 0 || math.IsNaN(float64(v)) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func snapLevel(v float32) float32 {
	v = clampLevel(v)
	if v < MinWaterLevel {
		return 0
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
