package raycast

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/grid"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestCastRayEmptyGridNeverHits(t *testing.T) {
	g := grid.New[float32]()
	dirs := []mgl32.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0.3, -0.7, 0.2}, {0, 0, 0}}
	for _, dir := range dirs {
		if _, ok := CastRay(g, mgl32.Vec3{0.5, 0.5, 0.5}, dir, 200, DefaultThreshold); ok {
			t.Fatalf("unexpected hit on empty grid for dir %v", dir)
		}
		if hits := CastRayAll(g, mgl32.Vec3{0.5, 0.5, 0.5}, dir, 200, DefaultThreshold); len(hits) != 0 {
			t.Fatalf("unexpected hits on empty grid for dir %v: %v", dir, hits)
		}
	}
}

func TestCastRayAxisAlignedHits(t *testing.T) {
	tests := []struct {
		name       string
		solid      grid.Coord
		origin     mgl32.Vec3
		dir        mgl32.Vec3
		wantDist   float32
		wantNormal grid.Coord
	}{
		{
			name:       "positive x",
			solid:      grid.Coord{X: 5},
			origin:     mgl32.Vec3{0, 0.5, 0.5},
			dir:        mgl32.Vec3{1, 0, 0},
			wantDist:   5,
			wantNormal: grid.Coord{X: -1},
		},
		{
			name:       "negative y across chunk boundary",
			solid:      grid.Coord{Y: -40},
			origin:     mgl32.Vec3{0.5, 0, 0.5},
			dir:        mgl32.Vec3{0, -1, 0},
			wantDist:   39,
			wantNormal: grid.Coord{Y: 1},
		},
		{
			name:       "positive z unnormalized direction",
			solid:      grid.Coord{Z: 3},
			origin:     mgl32.Vec3{0.5, 0.5, 0},
			dir:        mgl32.Vec3{0, 0, 10},
			wantDist:   3,
			wantNormal: grid.Coord{Z: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := grid.New[float32]()
			g.SetAt(tt.solid, 1)
			hit, ok := CastRay(g, tt.origin, tt.dir, 100, DefaultThreshold)
			if !ok {
				t.Fatalf("expected hit")
			}
			if hit.Voxel != tt.solid {
				t.Fatalf("unexpected voxel: got %v want %v", hit.Voxel, tt.solid)
			}
			if !approx(hit.Distance, tt.wantDist) {
				t.Fatalf("unexpected distance: got %v want %v", hit.Distance, tt.wantDist)
			}
			if hit.Normal != tt.wantNormal {
				t.Fatalf("unexpected normal: got %v want %v", hit.Normal, tt.wantNormal)
			}
		})
	}
}

func TestCastRayRespectsMaxDistanceAndThreshold(t *testing.T) {
	g := grid.New[float32]()
	g.Set(10, 0, 0, 1)
	g.Set(4, 0, 0, 0.4)

	if _, ok := CastRay(g, mgl32.Vec3{0, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 8, DefaultThreshold); ok {
		t.Fatalf("hit beyond max distance should be ignored")
	}
	hit, ok := CastRay(g, mgl32.Vec3{0, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 20, 0.3)
	if !ok || hit.Voxel != (grid.Coord{X: 4}) {
		t.Fatalf("lower threshold should stop at x=4, got %v ok=%v", hit.Voxel, ok)
	}
}

func TestCastRayStartsInsideSolid(t *testing.T) {
	g := grid.New[float32]()
	g.Set(-1, -1, -1, 1)
	hit, ok := CastRay(g, mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{1, 0, 0}, 10, DefaultThreshold)
	if !ok {
		t.Fatalf("expected immediate hit")
	}
	if hit.Distance != 0 || hit.Voxel != (grid.Coord{X: -1, Y: -1, Z: -1}) {
		t.Fatalf("unexpected hit: %+v", hit)
	}
	if hit.Normal != (grid.Coord{}) {
		t.Fatalf("inside hit should carry zero normal, got %v", hit.Normal)
	}
}

func TestCastRayDiagonalVisitsEveryCrossedCell(t *testing.T) {
	g := grid.New[float32]()
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			g.Set(x, y, 0, 1)
		}
	}
	hits := CastRayAll(g, mgl32.Vec3{0.25, 0.5, 0.5}, mgl32.Vec3{1, 1, 0}, 6, DefaultThreshold)
	if len(hits) < 2 {
		t.Fatalf("expected several hits, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		prev, cur := hits[i-1], hits[i]
		if cur.Distance < prev.Distance {
			t.Fatalf("hits out of travel order at %d: %v then %v", i, prev.Distance, cur.Distance)
		}
		dx := cur.Voxel.X - prev.Voxel.X
		dy := cur.Voxel.Y - prev.Voxel.Y
		if dx+dy != 1 || dx < 0 || dy < 0 {
			t.Fatalf("traversal skipped or repeated a cell: %v -> %v", prev.Voxel, cur.Voxel)
		}
	}
}

func TestCastRayAllCollectsInOrder(t *testing.T) {
	g := grid.New[float32]()
	g.Set(2, 0, 0, 1)
	g.Set(5, 0, 0, 1)
	g.Set(9, 0, 0, 1)

	hits := CastRayAll(g, mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 20, DefaultThreshold)
	if len(hits) != 3 {
		t.Fatalf("unexpected hit count: got %d want 3", len(hits))
	}
	for i, want := range []int{2, 5, 9} {
		if hits[i].Voxel.X != want {
			t.Fatalf("hit %d: got x=%d want %d", i, hits[i].Voxel.X, want)
		}
	}
}
