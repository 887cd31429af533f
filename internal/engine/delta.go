package engine

import (
	"sort"
	"time"

	"voxelsim/internal/grid"
	"voxelsim/internal/network"
)

type cellChange struct {
	before float32
	after  float32
	reason network.ChangeReasonCode
}

// deltaAccumulator batches per-cell changes of one layer between flushes.
type deltaAccumulator struct {
	layer network.Layer
	data  map[grid.ChunkCoord]map[grid.Coord]cellChange
}

var deltaPriority = map[network.ChangeReasonCode]int{
	network.ChangeReasonFlow:     1,
	network.ChangeReasonEdit:     2,
	network.ChangeReasonCollapse: 3,
}

func newDeltaAccumulator(layer network.Layer) *deltaAccumulator {
	return &deltaAccumulator{
		layer: layer,
		data:  make(map[grid.ChunkCoord]map[grid.Coord]cellChange),
	}
}

func (d *deltaAccumulator) add(c grid.Coord, before, after float32, reason network.ChangeReasonCode) {
	if d.data == nil {
		d.data = make(map[grid.ChunkCoord]map[grid.Coord]cellChange)
	}
	chunk, _, _, _ := grid.ChunkOf(c.X, c.Y, c.Z)

	byCell := d.data[chunk]
	if byCell == nil {
		byCell = make(map[grid.Coord]cellChange)
		d.data[chunk] = byCell
	}

	change := cellChange{before: before, after: after, reason: reason}
	if existing, ok := byCell[c]; ok {
		if priority(existing.reason) > priority(reason) {
			return
		}
		if priority(existing.reason) == priority(reason) {
			change.before = existing.before
		}
	}
	byCell[c] = change
}

// flush returns one delta per touched chunk, ordered by chunk and then by
// cell, and assigns consecutive sequence numbers starting at *seq.
func (d *deltaAccumulator) flush(seq *uint64) []network.ChunkDelta {
	if len(d.data) == 0 {
		return nil
	}

	chunks := make([]grid.ChunkCoord, 0, len(d.data))
	for chunk, cells := range d.data {
		if len(cells) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return lessCoord(grid.Coord(chunks[i]), grid.Coord(chunks[j])) })

	now := time.Now().UTC()
	deltas := make([]network.ChunkDelta, 0, len(chunks))
	for _, chunk := range chunks {
		cells := d.data[chunk]
		delta := network.ChunkDelta{
			Layer:     d.layer,
			ChunkX:    chunk.X,
			ChunkY:    chunk.Y,
			ChunkZ:    chunk.Z,
			Seq:       *seq,
			Timestamp: now,
			Cells:     make([]network.CellChange, 0, len(cells)),
		}
		*seq++
		for coord, change := range cells {
			delta.Cells = append(delta.Cells, network.CellChange{
				X:      coord.X,
				Y:      coord.Y,
				Z:      coord.Z,
				Before: change.before,
				After:  change.after,
				Reason: change.reason,
			})
		}
		sort.Slice(delta.Cells, func(i, j int) bool {
			a, b := delta.Cells[i], delta.Cells[j]
			return lessCoord(grid.Coord{X: a.X, Y: a.Y, Z: a.Z}, grid.Coord{X: b.X, Y: b.Y, Z: b.Z})
		})
		deltas = append(deltas, delta)
	}

	d.data = make(map[grid.ChunkCoord]map[grid.Coord]cellChange)
	return deltas
}

func priority(reason network.ChangeReasonCode) int {
	if v, ok := deltaPriority[reason]; ok {
		return v
	}
	return 0
}

func lessCoord(a, b grid.Coord) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	return a.X < b.X
}
