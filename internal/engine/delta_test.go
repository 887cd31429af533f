package engine

import (
	"testing"

	"voxelsim/internal/grid"
	"voxelsim/internal/network"
)

func TestDeltaAccumulatorFlushProducesNetworkDeltas(t *testing.T) {
	accumulator := newDeltaAccumulator(network.LayerWater)

	accumulator.add(grid.Coord{X: 40, Y: 1, Z: 0}, 0, 0.5, network.ChangeReasonFlow)
	accumulator.add(grid.Coord{X: 2, Y: 1, Z: 0}, 0.25, 0.75, network.ChangeReasonFlow)
	accumulator.add(grid.Coord{X: 1, Y: 1, Z: 0}, 0, 0.1, network.ChangeReasonFlow)

	seq := uint64(100)
	deltas := accumulator.flush(&seq)

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if seq != 102 {
		t.Fatalf("expected sequence pointer advanced to 102, got %d", seq)
	}
	if len(accumulator.data) != 0 {
		t.Fatalf("expected accumulator to reset after flush, but still has %d entries", len(accumulator.data))
	}

	first, second := deltas[0], deltas[1]
	if first.ChunkX != 0 || second.ChunkX != 1 {
		t.Fatalf("unexpected chunk order: %d then %d", first.ChunkX, second.ChunkX)
	}
	if first.Seq != 100 || second.Seq != 101 {
		t.Fatalf("unexpected sequence numbers: %d %d", first.Seq, second.Seq)
	}
	if first.Layer != network.LayerWater || first.Timestamp.IsZero() {
		t.Fatalf("unexpected delta header: %+v", first)
	}
	if len(first.Cells) != 2 || first.Cells[0].X != 1 || first.Cells[1].X != 2 {
		t.Fatalf("expected cells sorted by position, got %+v", first.Cells)
	}
	want := network.CellChange{X: 2, Y: 1, Z: 0, Before: 0.25, After: 0.75, Reason: network.ChangeReasonFlow}
	if first.Cells[1] != want {
		t.Fatalf("unexpected cell change: got %+v want %+v", first.Cells[1], want)
	}
}

func TestDeltaAccumulatorPriorities(t *testing.T) {
	c := grid.Coord{X: 3, Y: 4, Z: 5}
	tests := []struct {
		name string
		adds []network.CellChange
		want network.CellChange
	}{
		{
			name: "same reason keeps original before",
			adds: []network.CellChange{
				{Before: 0.1, After: 0.2, Reason: network.ChangeReasonFlow},
				{Before: 0.2, After: 0.3, Reason: network.ChangeReasonFlow},
			},
			want: network.CellChange{Before: 0.1, After: 0.3, Reason: network.ChangeReasonFlow},
		},
		{
			name: "collapse overrides edit",
			adds: []network.CellChange{
				{Before: 0, After: 1, Reason: network.ChangeReasonEdit},
				{Before: 1, After: 0, Reason: network.ChangeReasonCollapse},
			},
			want: network.CellChange{Before: 1, After: 0, Reason: network.ChangeReasonCollapse},
		},
		{
			name: "flow cannot override collapse",
			adds: []network.CellChange{
				{Before: 1, After: 0, Reason: network.ChangeReasonCollapse},
				{Before: 0, After: 0.5, Reason: network.ChangeReasonFlow},
			},
			want: network.CellChange{Before: 1, After: 0, Reason: network.ChangeReasonCollapse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accumulator := newDeltaAccumulator(network.LayerDensity)
			for _, change := range tt.adds {
				accumulator.add(c, change.Before, change.After, change.Reason)
			}
			seq := uint64(0)
			deltas := accumulator.flush(&seq)
			if len(deltas) != 1 || len(deltas[0].Cells) != 1 {
				t.Fatalf("expected one cell change, got %+v", deltas)
			}
			got := deltas[0].Cells[0]
			want := tt.want
			want.X, want.Y, want.Z = c.X, c.Y, c.Z
			if got != want {
				t.Fatalf("unexpected change: got %+v want %+v", got, want)
			}
		})
	}
}

func TestDeltaAccumulatorFlushEmptyReturnsNil(t *testing.T) {
	accumulator := newDeltaAccumulator(network.LayerDensity)
	seq := uint64(5)
	if deltas := accumulator.flush(&seq); deltas != nil {
		t.Fatalf("expected nil deltas for empty accumulator, got %#v", deltas)
	}
	if seq != 5 {
		t.Fatalf("expected sequence unchanged for empty flush, got %d", seq)
	}
}
