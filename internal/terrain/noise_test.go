package terrain

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/config"
	"voxelsim/internal/grid"
)

func testConfig() config.TerrainConfig {
	return config.TerrainConfig{
		Seed:        7,
		Frequency:   0.05,
		Amplitude:   4,
		Octaves:     3,
		Persistence: 0.5,
		Lacunarity:  2,
		BaseHeight:  10,
		Workers:     3,
	}
}

func TestGenerateLogsProgress(t *testing.T) {
	var buf bytes.Buffer
	gen := NewNoiseGenerator(testConfig(), log.New(&buf, "", 0))

	region := grid.Bounds{Min: grid.Coord{X: 0, Y: 0, Z: 0}, Max: grid.Coord{X: 1, Y: 31, Z: 1}}
	if err := gen.Generate(context.Background(), grid.New[float32](), nil, region); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs := buf.String()
	for _, marker := range []string{"0%", "25%", "50%", "75%", "100%"} {
		if !strings.Contains(logs, marker) {
			t.Fatalf("expected logs to contain progress %s, got: %s", marker, logs)
		}
	}
}

func TestGenerateFillsColumnsToSurface(t *testing.T) {
	gen := NewNoiseGenerator(testConfig(), log.New(&bytes.Buffer{}, "", 0))
	density := grid.New[float32]()
	essence := grid.NewFieldLayer[mgl32.Vec4](grid.LayerEssence)
	region := grid.Bounds{Min: grid.Coord{X: -20, Y: 0, Z: -20}, Max: grid.Coord{X: 20, Y: 40, Z: 20}}

	if err := gen.Generate(context.Background(), density, essence, region); err != nil {
		t.Fatalf("generate: %v", err)
	}

	for x := region.Min.X; x <= region.Max.X; x++ {
		for z := region.Min.Z; z <= region.Max.Z; z++ {
			surface := gen.SurfaceHeight(x, z, region.Min.Y-1, region.Max.Y)
			if surface < 4 || surface > 16 {
				t.Fatalf("surface of (%d,%d) outside amplitude: %d", x, z, surface)
			}
			if got := density.Get(x, 0, z); got != 1 {
				t.Fatalf("bedrock at (%d,0,%d) not solid: %v", x, z, got)
			}
			if got := density.Get(x, surface, z); got < 0.75 {
				t.Fatalf("surface cell (%d,%d,%d) too soft: %v", x, surface, z, got)
			}
			if got := density.Get(x, surface+1, z); got != 0 {
				t.Fatalf("air above (%d,%d,%d) filled: %v", x, surface, z, got)
			}
			if got := essence.Get(x, surface, z); got != Grass {
				t.Fatalf("unexpected surface material at (%d,%d): %v", x, z, got)
			}
			if got := essence.Get(x, surface-2, z); got != Dirt {
				t.Fatalf("unexpected subsoil material at (%d,%d): %v", x, z, got)
			}
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	region := grid.Bounds{Min: grid.Coord{X: -8, Y: 0, Z: -8}, Max: grid.Coord{X: 40, Y: 20, Z: 8}}
	run := func(workers int) *grid.Grid[float32] {
		cfg := testConfig()
		cfg.Workers = workers
		density := grid.New[float32]()
		if err := NewNoiseGenerator(cfg, log.New(&bytes.Buffer{}, "", 0)).Generate(context.Background(), density, nil, region); err != nil {
			t.Fatalf("generate: %v", err)
		}
		return density
	}

	a, b := run(1), run(8)
	for x := region.Min.X; x <= region.Max.X; x++ {
		for y := region.Min.Y; y <= region.Max.Y; y++ {
			for z := region.Min.Z; z <= region.Max.Z; z++ {
				if a.Get(x, y, z) != b.Get(x, y, z) {
					t.Fatalf("cell (%d,%d,%d) differs between runs", x, y, z)
				}
			}
		}
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := NewNoiseGenerator(testConfig(), log.New(&bytes.Buffer{}, "", 0))
	region := grid.Bounds{Max: grid.Coord{X: 63, Y: 31, Z: 63}}
	err := gen.Generate(ctx, grid.New[float32](), nil, region)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestEmptyRegionIsNoop(t *testing.T) {
	gen := NewNoiseGenerator(testConfig(), log.New(&bytes.Buffer{}, "", 0))
	density := grid.New[float32]()
	region := grid.Bounds{Min: grid.Coord{X: 1}, Max: grid.Coord{X: 0}}
	if err := gen.Generate(context.Background(), density, nil, region); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if density.ChunkCount() != 0 {
		t.Fatalf("empty region materialized %d chunks", density.ChunkCount())
	}
}
