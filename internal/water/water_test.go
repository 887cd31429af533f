package water

import (
	"math"
	"testing"

	"voxelsim/internal/grid"
)

// basin builds a solid floor at y=0 with walls enclosing the interior
// x,z in [1,size] at y=1..height.
func basin(size, height int) *grid.Grid[float32] {
	density := grid.New[float32]()
	for x := 0; x <= size+1; x++ {
		for z := 0; z <= size+1; z++ {
			density.Set(x, 0, z, 1)
			if x == 0 || z == 0 || x == size+1 || z == size+1 {
				for y := 1; y <= height; y++ {
					density.Set(x, y, z, 1)
				}
			}
		}
	}
	return density
}

func TestGravityMovesWaterDown(t *testing.T) {
	density := grid.New[float32]()
	density.Set(0, 0, 0, 1)
	sim := NewSimulation(density)
	sim.SetLevel(0, 2, 0, 1)

	sim.Step()
	if got := sim.Level(0, 1, 0); math.Abs(float64(got-GravityFlowRate)) > 1e-6 {
		t.Fatalf("unexpected level below source: got %v want %v", got, GravityFlowRate)
	}
	for i := 0; i < 20; i++ {
		sim.Step()
	}
	if got := sim.Level(0, 0, 0); got != 0 {
		t.Fatalf("water must never enter a solid cell, got %v", got)
	}
	if got := sim.Level(0, 2, 0); got > MinWaterLevel {
		t.Fatalf("expected source to drain, got %v", got)
	}
}

func TestGravityDoesNotOverfillSharedTarget(t *testing.T) {
	density := grid.New[float32]()
	for x := -1; x <= 1; x++ {
		density.Set(x, -1, 0, 1)
	}
	sim := NewSimulation(density)
	sim.SetLevel(0, 0, 0, 0.9)
	sim.SetLevel(0, 1, 0, 1)

	sim.Step()
	if got := sim.Level(0, 0, 0); got > 1 {
		t.Fatalf("target overfilled: %v", got)
	}
}

func TestStepConservesMass(t *testing.T) {
	density := basin(6, 4)
	sim := NewSimulation(density)
	sim.SetLevel(1, 3, 1, 1)
	sim.SetLevel(3, 2, 4, 0.6)
	sim.SetLevel(6, 1, 6, 0.3)
	before := sim.TotalWater()

	var tolerance float64
	for i := 0; i < 30; i++ {
		stats := sim.Step()
		// snapping may shed at most MinWaterLevel per active cell
		tolerance += float64(MinWaterLevel) * float64(stats.ActiveCells)
		if math.Abs(stats.TotalWater-before) > tolerance+1e-4 {
			t.Fatalf("step %d: mass drifted from %v to %v", i, before, stats.TotalWater)
		}
	}
}

func TestWaterNeverEntersSolidCells(t *testing.T) {
	density := basin(4, 3)
	density.Set(2, 1, 2, 1)
	sim := NewSimulation(density)
	sim.SetLevel(2, 2, 2, 1)
	if sim.SetLevel(2, 1, 2, 1) {
		t.Fatalf("SetLevel on a solid cell should be refused")
	}
	for i := 0; i < 50; i++ {
		sim.Step()
	}
	for _, c := range []grid.Coord{{X: 2, Y: 1, Z: 2}, {X: 0, Y: 1, Z: 2}, {X: 2, Y: 0, Z: 2}} {
		if got := sim.Level(c.X, c.Y, c.Z); got != 0 {
			t.Fatalf("solid cell %v holds water %v", c, got)
		}
	}
}

func TestClosedBasinLevelsOut(t *testing.T) {
	density := basin(4, 2)
	sim := NewSimulation(density)
	sim.SetLevel(1, 1, 1, 1)
	sim.SetLevel(2, 1, 1, 1)
	sim.SetLevel(1, 1, 2, 1)
	sim.SetLevel(2, 1, 2, 1)

	for i := 0; i < 600; i++ {
		sim.Step()
	}
	mean := float32(4.0 / 16.0)
	for x := 1; x <= 4; x++ {
		for z := 1; z <= 4; z++ {
			got := sim.Level(x, 1, z)
			if math.Abs(float64(got-mean)) > 0.05 {
				t.Fatalf("cell (%d,1,%d) not levelled: got %v want ~%v", x, z, got, mean)
			}
		}
	}
}

func TestBudgetSpreadsWorkAcrossSteps(t *testing.T) {
	density := basin(10, 2)
	sim := NewSimulation(density)
	for x := 1; x <= 10; x++ {
		sim.SetLevel(x, 1, 1, 1)
	}
	sim.SetPerFrameBudget(8)

	stats := sim.Step()
	if stats.ProcessedCells != 8 {
		t.Fatalf("unexpected processed cells: got %d want 8", stats.ProcessedCells)
	}
	if stats.ActiveCells <= 8 {
		t.Fatalf("expected more active cells than budget, got %d", stats.ActiveCells)
	}

	for i := 0; i < 600; i++ {
		sim.Step()
	}
	if got := sim.Level(10, 1, 3); got <= MinWaterLevel {
		t.Fatalf("rotating budget should eventually reach the far row, got %v", got)
	}
}

func TestNonPositiveBudgetDoesNothing(t *testing.T) {
	sim := NewSimulation(nil)
	sim.SetLevel(0, 5, 0, 1)
	sim.SetPerFrameBudget(0)
	stats := sim.Step()
	if stats != (StepStats{}) {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	if sim.Steps() != 0 || sim.Level(0, 5, 0) != 1 {
		t.Fatalf("zero budget must not advance the field")
	}
}

func TestChangeEventsReported(t *testing.T) {
	density := grid.New[float32]()
	density.Set(0, 0, 0, 1)
	sim := NewSimulation(density)
	sim.SetLevel(0, 1, 0, 1)

	var events []ChangeEvent
	sim.OnChange(func(ev ChangeEvent) {
		events = append(events, ev)
	})
	stats := sim.Step()
	if stats.Changes != len(events) {
		t.Fatalf("stats and callback disagree: %d vs %d", stats.Changes, len(events))
	}
	if len(events) != 5 {
		t.Fatalf("expected source plus four lateral receivers, got %d events: %+v", len(events), events)
	}
	for _, ev := range events {
		if math.Abs(float64(ev.Level-ev.Previous)) <= float64(MinWaterLevel) {
			t.Fatalf("event below reporting threshold: %+v", ev)
		}
	}
}

func TestWaterFlowsIntoUnmaterializedChunks(t *testing.T) {
	density := grid.New[float32]()
	density.Set(31, 0, 0, 1)
	density.Set(32, 0, 0, 1)
	sim := NewSimulation(density)
	sim.SetLevel(31, 1, 0, 1)

	sim.Step()
	if !sim.Levels().Grid().HasChunk(1, 0, 0) {
		t.Fatalf("lateral flow across x=32 should materialize chunk (1,0,0)")
	}
	if got := sim.Level(32, 1, 0); got <= 0 {
		t.Fatalf("expected water in neighbour chunk, got %v", got)
	}
}

func TestAddWaterCapsAtFull(t *testing.T) {
	sim := NewSimulation(nil)
	if got := sim.AddWater(0, 0, 0, 0.7); got != 0.7 {
		t.Fatalf("unexpected accepted amount: %v", got)
	}
	if got := sim.AddWater(0, 0, 0, 0.7); math.Abs(float64(got-0.3)) > 1e-6 {
		t.Fatalf("unexpected accepted amount when nearly full: %v", got)
	}
	if got := sim.Level(0, 0, 0); got != 1 {
		t.Fatalf("unexpected level: %v", got)
	}
}

func TestRunningTotalMatchesRecount(t *testing.T) {
	density := basin(6, 4)
	sim := NewSimulation(density)
	sim.SetLevel(1, 3, 1, 1)
	sim.SetLevel(1, 3, 1, 0.7)
	sim.SetLevel(3, 2, 4, 0.6)
	sim.AddWater(6, 1, 6, 0.3)
	if got := sim.RemoveWater(3, 2, 4); got != 0.6 {
		t.Fatalf("unexpected removed level: got %v want 0.6", got)
	}
	if got, want := sim.Total(), sim.TotalWater(); math.Abs(got-want) > 1e-6 {
		t.Fatalf("unexpected running total after edits: got %v want %v", got, want)
	}

	for i := 0; i < 20; i++ {
		stats := sim.Step()
		if want := sim.TotalWater(); math.Abs(stats.TotalWater-want) > 1e-4 {
			t.Fatalf("step %d: unexpected running total: got %v want %v", i, stats.TotalWater, want)
		}
	}
}
