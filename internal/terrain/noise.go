package terrain

import (
	"context"
	"log"
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/config"
	"voxelsim/internal/grid"
)

// Material colours written to the essence layer.
var (
	Grass = mgl32.Vec4{0.32, 0.58, 0.24, 1}
	Dirt  = mgl32.Vec4{0.45, 0.32, 0.2, 1}
	Stone = mgl32.Vec4{0.5, 0.5, 0.52, 1}
)

const (
	topsoilDepth = 1
	subsoilDepth = 4
	// pockets are only carved this far below the surface
	caveMinDepth = 4
)

// NoiseGenerator fills density and essence fields with repeatable hashed
// value-noise terrain. Y is up.
type NoiseGenerator struct {
	cfg    config.TerrainConfig
	seed   int64
	logger *log.Logger
}

func NewNoiseGenerator(cfg config.TerrainConfig, logger *log.Logger) *NoiseGenerator {
	if logger == nil {
		logger = log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds)
	}
	return &NoiseGenerator{cfg: cfg, seed: cfg.Seed, logger: logger}
}

// Region converts the configured inclusive region into grid bounds.
func Region(cfg config.TerrainConfig) grid.Bounds {
	r := cfg.Region
	return grid.Bounds{
		Min: grid.Coord{X: r.Min.X, Y: r.Min.Y, Z: r.Min.Z},
		Max: grid.Coord{X: r.Max.X, Y: r.Max.Y, Z: r.Max.Z},
	}
}

// SurfaceHeight is the y of the topmost solid cell of column (x,z) before caves
// are carved, clamped to [minY,maxY].
func (g *NoiseGenerator) SurfaceHeight(x, z, minY, maxY int) int {
	noise := g.fractalNoise(float64(x), float64(z))
	return clampInt(g.cfg.BaseHeight+int(math.Round(noise*g.cfg.Amplitude)), minY, maxY)
}

type columnCell struct {
	density float32
	essence mgl32.Vec4
}

// Generate populates every column of region. Columns are computed by a worker
// pool and stored by the calling goroutine, so the fields see a single writer.
// Cells above the surface are left untouched.
func (g *NoiseGenerator) Generate(ctx context.Context, density *grid.Grid[float32], essence *grid.FieldLayer[mgl32.Vec4], region grid.Bounds) error {
	width := region.Max.X - region.Min.X + 1
	depth := region.Max.Z - region.Min.Z + 1
	totalColumns := width * depth
	if region.Empty() || totalColumns <= 0 {
		g.logger.Printf("terrain region %v..%v generation progress: 100%%", region.Min, region.Max)
		return nil
	}

	g.logger.Printf("terrain region %v..%v generation progress: 0%%", region.Min, region.Max)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type columnTask struct {
		x int
		z int
	}

	type columnResult struct {
		x      int
		z      int
		column []columnCell
		err    error
	}

	workers := g.workerCount(totalColumns)
	tasks := make(chan columnTask, workers)
	results := make(chan columnResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if err := ctx.Err(); err != nil {
					select {
					case results <- columnResult{err: err}:
					default:
					}
					return
				}
				column := g.populateColumn(task.x, task.z, region)
				select {
				case results <- columnResult{x: task.x, z: task.z, column: column}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(tasks)
		for x := region.Min.X; x <= region.Max.X; x++ {
			for z := region.Min.Z; z <= region.Max.Z; z++ {
				select {
				case <-ctx.Done():
					return
				case tasks <- columnTask{x: x, z: z}:
				}
			}
		}
	}()

	generated := 0
	nextLogPercent := 10
	loggedComplete := false

	for result := range results {
		if result.err != nil {
			cancel()
			return result.err
		}
		for i, cell := range result.column {
			if cell.density == 0 {
				continue
			}
			y := region.Min.Y + i
			density.Set(result.x, y, result.z, cell.density)
			if essence != nil {
				essence.Set(result.x, y, result.z, cell.essence)
			}
		}

		generated++
		progress := generated * 100 / totalColumns
		if progress >= nextLogPercent {
			g.logger.Printf("terrain region %v..%v generation progress: %d%%", region.Min, region.Max, progress)
			if progress >= 100 {
				loggedComplete = true
				nextLogPercent = 110
			} else {
				nextLogPercent = ((progress / 10) + 1) * 10
			}
		}
	}

	if err := ctx.Err(); err != nil && generated < totalColumns {
		return err
	}
	if !loggedComplete {
		g.logger.Printf("terrain region %v..%v generation progress: 100%%", region.Min, region.Max)
	}
	return nil
}

// populateColumn returns the cells of one column from region.Min.Y up to the
// surface. Index i holds y = region.Min.Y + i.
func (g *NoiseGenerator) populateColumn(x, z int, region grid.Bounds) []columnCell {
	surface := g.SurfaceHeight(x, z, region.Min.Y-1, region.Max.Y)
	height := surface - region.Min.Y + 1
	if height <= 0 {
		return nil
	}

	column := make([]columnCell, height)
	for i := range column {
		y := region.Min.Y + i
		below := surface - y
		cell := columnCell{density: 1, essence: Stone}
		switch {
		case below < topsoilDepth:
			cell.essence = Grass
			// the surface cell carries a partial fill so samplers see a soft edge
			cell.density = 0.75 + 0.25*float32(random2D(x, z, g.seed+1)+1)/2
		case below < topsoilDepth+subsoilDepth:
			cell.essence = Dirt
		}
		column[i] = cell
	}
	g.carvePockets(column, x, z, region.Min.Y, surface)
	return column
}

// carvePockets hollows a few deterministic cells well below the surface.
// Cells at y <= 0 are never carved so the bedrock stays grounded.
func (g *NoiseGenerator) carvePockets(column []columnCell, x, z, minY, surface int) {
	rangeSize := surface - caveMinDepth - minY
	if rangeSize <= 0 {
		return
	}
	rng := newDeterministicRNG(x, z, g.seed)
	pockets := rng.nextInt(3)
	for i := 0; i < pockets; i++ {
		idx := rng.nextInt(rangeSize)
		if minY+idx <= 0 {
			continue
		}
		column[idx] = columnCell{}
	}
}

type deterministicRNG struct {
	state uint64
}

func newDeterministicRNG(x, z int, seed int64) *deterministicRNG {
	state := uint64(uint32(x))<<32 ^ uint64(uint32(z))<<1 ^ uint64(seed)
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}
	return &deterministicRNG{state: state}
}

func (r *deterministicRNG) next() uint64 {
	r.state ^= r.state << 7
	r.state ^= r.state >> 9
	r.state ^= r.state << 8
	return r.state
}

func (r *deterministicRNG) nextInt(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}

func (g *NoiseGenerator) fractalNoise(x, z float64) float64 {
	frequency := g.cfg.Frequency
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < g.cfg.Octaves; i++ {
		noise := g.valueNoise(x*frequency, z*frequency)
		noiseSum += noise * amplitude
		maxAmplitude += amplitude
		amplitude *= g.cfg.Persistence
		frequency *= g.cfg.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return noiseSum / maxAmplitude
}

func (g *NoiseGenerator) valueNoise(x, z float64) float64 {
	x0 := int(math.Floor(x))
	z0 := int(math.Floor(z))
	x1 := x0 + 1
	z1 := z0 + 1

	sx := smooth(x - float64(x0))
	sz := smooth(z - float64(z0))

	ix0 := lerp(random2D(x0, z0, g.seed), random2D(x1, z0, g.seed), sx)
	ix1 := lerp(random2D(x0, z1, g.seed), random2D(x1, z1, g.seed), sx)
	return lerp(ix0, ix1, sz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// random2D maps a lattice point to [-1,1).
func random2D(x, z int, seed int64) float64 {
	return float64(hash3(x, z, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (g *NoiseGenerator) workerCount(totalColumns int) int {
	if totalColumns <= 0 {
		return 1
	}
	workers := g.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) * 2
	}
	if workers > totalColumns {
		workers = totalColumns
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}
