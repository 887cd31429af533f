package grid

import "github.com/go-gl/mathgl/mgl32"

// Well-known layer names.
const (
	LayerDensity = "density"
	LayerWater   = "water"
	LayerEssence = "essence"
)

// Scalar constrains the element types Sample can average.
type Scalar interface {
	~float32 | ~float64 | ~int | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
}

// FieldLayer names one world field and adds region helpers on top of its grid.
type FieldLayer[T any] struct {
	Name string
	grid *Grid[T]
}

func NewFieldLayer[T any](name string) *FieldLayer[T] {
	return &FieldLayer[T]{Name: name, grid: New[T]()}
}

// WrapLayer names an existing grid.
func WrapLayer[T any](name string, g *Grid[T]) *FieldLayer[T] {
	if g == nil {
		g = New[T]()
	}
	return &FieldLayer[T]{Name: name, grid: g}
}

func (l *FieldLayer[T]) Grid() *Grid[T] {
	return l.grid
}

func (l *FieldLayer[T]) Get(x, y, z int) T {
	return l.grid.Get(x, y, z)
}

func (l *FieldLayer[T]) Set(x, y, z int, v T) {
	l.grid.Set(x, y, z, v)
}

// Fill writes v into every cell of the inclusive box.
func (l *FieldLayer[T]) Fill(b Bounds, v T) {
	if b.Empty() {
		return
	}
	for z := b.Min.Z; z <= b.Max.Z; z++ {
		for y := b.Min.Y; y <= b.Max.Y; y++ {
			for x := b.Min.X; x <= b.Max.X; x++ {
				l.grid.Set(x, y, z, v)
			}
		}
	}
}

// Sample averages the box of the given radius around (x,y,z). Unmaterialized
// cells count as zero. A negative radius samples the single cell.
func Sample[T Scalar](l *FieldLayer[T], x, y, z, radius int) float64 {
	if radius < 0 {
		radius = 0
	}
	var sum float64
	count := 0
	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				sum += float64(l.grid.Get(x+dx, y+dy, z+dz))
				count++
			}
		}
	}
	return sum / float64(count)
}

// SampleVec4 averages a four-component field such as essence colour.
func SampleVec4(l *FieldLayer[mgl32.Vec4], x, y, z, radius int) mgl32.Vec4 {
	if radius < 0 {
		radius = 0
	}
	var sum mgl32.Vec4
	count := 0
	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				sum = sum.Add(l.grid.Get(x+dx, y+dy, z+dz))
				count++
			}
		}
	}
	return sum.Mul(1 / float32(count))
}
