package grid

// Chunk stores a dense 32^3 block of cells. Cells are laid out x fastest,
// then y, then z.
type Chunk[T any] struct {
	Coord ChunkCoord
	cells [ChunkVolume]T
}

func newChunk[T any](coord ChunkCoord) *Chunk[T] {
	return &Chunk[T]{Coord: coord}
}

func cellIndex(lx, ly, lz int) int {
	return lx | ly<<ChunkShift | lz<<(2*ChunkShift)
}

// Local returns the cell at local coordinates. Out of range coordinates read
// as the zero value.
func (c *Chunk[T]) Local(lx, ly, lz int) T {
	if !inChunk(lx, ly, lz) {
		var zero T
		return zero
	}
	return c.cells[cellIndex(lx, ly, lz)]
}

func (c *Chunk[T]) SetLocal(lx, ly, lz int, v T) bool {
	if !inChunk(lx, ly, lz) {
		return false
	}
	c.cells[cellIndex(lx, ly, lz)] = v
	return true
}

// ForEach visits every cell in layout order with world coordinates. Returning
// false from fn stops the walk.
func (c *Chunk[T]) ForEach(fn func(x, y, z int, v T) bool) bool {
	origin := c.Coord.Origin()
	idx := 0
	for lz := 0; lz < ChunkSize; lz++ {
		for ly := 0; ly < ChunkSize; ly++ {
			for lx := 0; lx < ChunkSize; lx++ {
				if !fn(origin.X+lx, origin.Y+ly, origin.Z+lz, c.cells[idx]) {
					return false
				}
				idx++
			}
		}
	}
	return true
}

// CellAt returns the world position of the cell at a layout index.
func (c *Chunk[T]) CellAt(index int) Coord {
	origin := c.Coord.Origin()
	return Coord{
		X: origin.X + index&ChunkMask,
		Y: origin.Y + (index>>ChunkShift)&ChunkMask,
		Z: origin.Z + (index>>(2*ChunkShift))&ChunkMask,
	}
}

// At returns the cell value at a layout index.
func (c *Chunk[T]) At(index int) T {
	return c.cells[index]
}

// Cells returns a copy of every cell in layout order.
func (c *Chunk[T]) Cells() []T {
	out := make([]T, ChunkVolume)
	copy(out, c.cells[:])
	return out
}

func (c *Chunk[T]) clone() *Chunk[T] {
	dup := &Chunk[T]{Coord: c.Coord}
	dup.cells = c.cells
	return dup
}

func inChunk(lx, ly, lz int) bool {
	return lx >= 0 && ly >= 0 && lz >= 0 &&
		lx < ChunkSize && ly < ChunkSize && lz < ChunkSize
}
