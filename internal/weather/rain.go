package weather

import (
	"math"
	"math/rand"

	"voxelsim/internal/grid"
	"voxelsim/internal/water"
)

// Waterer accepts water into a cell and reports how much it took.
type Waterer interface {
	AddWater(x, y, z int, amount float32) float32
}

// RainEmitter drops precipitation on random columns of a region. Each drop
// lands in the first air cell above the highest solid cell of its column.
type RainEmitter struct {
	region grid.Bounds
	rate   float32
	drops  int
	rng    *rand.Rand
}

func NewRainEmitter(region grid.Bounds, rate float32, seed int64) *RainEmitter {
	columns := (region.Max.X - region.Min.X + 1) * (region.Max.Z - region.Min.Z + 1)
	drops := columns / 64
	if drops < 1 {
		drops = 1
	}
	return &RainEmitter{
		region: region,
		rate:   rate,
		drops:  drops,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// DropsPerFrame is the number of columns wetted at full precipitation.
func (r *RainEmitter) DropsPerFrame() int {
	return r.drops
}

// Fall emits one frame of rain and returns the water accepted.
func (r *RainEmitter) Fall(density *grid.Grid[float32], sink Waterer, precipitation float64) float32 {
	if precipitation <= 0 || r.rate <= 0 || r.region.Empty() || sink == nil {
		return 0
	}
	precipitation = clamp01(precipitation)
	count := int(math.Ceil(precipitation * float64(r.drops)))
	amount := r.rate * float32(precipitation)

	width := r.region.Max.X - r.region.Min.X + 1
	depth := r.region.Max.Z - r.region.Min.Z + 1
	var accepted float32
	for i := 0; i < count; i++ {
		x := r.region.Min.X + r.rng.Intn(width)
		z := r.region.Min.Z + r.rng.Intn(depth)
		y, ok := r.landing(density, x, z)
		if !ok {
			continue
		}
		accepted += sink.AddWater(x, y, z, amount)
	}
	return accepted
}

func (r *RainEmitter) landing(density *grid.Grid[float32], x, z int) (int, bool) {
	if density == nil {
		return 0, false
	}
	for y := r.region.Max.Y; y >= r.region.Min.Y; y-- {
		if density.Get(x, y, z) >= water.SolidThreshold {
			if y == r.region.Max.Y {
				return 0, false
			}
			return y + 1, true
		}
	}
	return 0, false
}
