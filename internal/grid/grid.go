package grid

// Grid is sparse chunked 3D storage. A chunk exists only once a cell inside it
// has been written; reads of unmaterialized space return the zero value and
// never allocate.
//
// Chunks are kept in insertion order so ActiveChunks is deterministic for a
// given sequence of writes. Grid is not safe for concurrent use.
type Grid[T any] struct {
	index   map[ChunkKey]int
	chunks  []*Chunk[T]
	version uint64
}

func New[T any]() *Grid[T] {
	return &Grid[T]{
		index: make(map[ChunkKey]int),
	}
}

func (g *Grid[T]) chunk(key ChunkKey) *Chunk[T] {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	return g.chunks[i]
}

// Get returns the value at a world position.
func (g *Grid[T]) Get(x, y, z int) T {
	coord, lx, ly, lz := ChunkOf(x, y, z)
	ch := g.chunk(coord.Key())
	if ch == nil {
		var zero T
		return zero
	}
	return ch.cells[cellIndex(lx, ly, lz)]
}

func (g *Grid[T]) GetAt(c Coord) T {
	return g.Get(c.X, c.Y, c.Z)
}

// Set writes a value, materializing a zero-filled chunk on first write.
func (g *Grid[T]) Set(x, y, z int, v T) {
	coord, lx, ly, lz := ChunkOf(x, y, z)
	key := coord.Key()
	ch := g.chunk(key)
	if ch == nil {
		ch = newChunk[T](coord)
		g.index[key] = len(g.chunks)
		g.chunks = append(g.chunks, ch)
	}
	ch.cells[cellIndex(lx, ly, lz)] = v
	g.version++
}

func (g *Grid[T]) SetAt(c Coord, v T) {
	g.Set(c.X, c.Y, c.Z, v)
}

func (g *Grid[T]) HasChunk(cx, cy, cz int) bool {
	_, ok := g.index[PackKey(cx, cy, cz)]
	return ok
}

// Version increases on every write through the grid. Writes made through a
// *Chunk returned by Chunk are not counted.
func (g *Grid[T]) Version() uint64 {
	return g.version
}

// Chunk returns the materialized chunk or nil.
func (g *Grid[T]) Chunk(cx, cy, cz int) *Chunk[T] {
	return g.chunk(PackKey(cx, cy, cz))
}

// RemoveChunk deallocates one chunk. It reports whether the chunk existed.
func (g *Grid[T]) RemoveChunk(cx, cy, cz int) bool {
	key := PackKey(cx, cy, cz)
	i, ok := g.index[key]
	if !ok {
		return false
	}
	delete(g.index, key)
	copy(g.chunks[i:], g.chunks[i+1:])
	g.chunks[len(g.chunks)-1] = nil
	g.chunks = g.chunks[:len(g.chunks)-1]
	for j := i; j < len(g.chunks); j++ {
		g.index[g.chunks[j].Coord.Key()] = j
	}
	g.version++
	return true
}

// LoadChunk replaces one chunk with cells given in layout order. It reports
// false and changes nothing unless cells holds exactly ChunkVolume values.
func (g *Grid[T]) LoadChunk(cc ChunkCoord, cells []T) bool {
	if len(cells) != ChunkVolume {
		return false
	}
	key := cc.Key()
	ch := g.chunk(key)
	if ch == nil {
		ch = newChunk[T](cc)
		g.index[key] = len(g.chunks)
		g.chunks = append(g.chunks, ch)
	}
	copy(ch.cells[:], cells)
	g.version++
	return true
}

// ActiveChunks lists materialized chunks in insertion order.
func (g *Grid[T]) ActiveChunks() []ChunkCoord {
	out := make([]ChunkCoord, len(g.chunks))
	for i, ch := range g.chunks {
		out[i] = ch.Coord
	}
	return out
}

func (g *Grid[T]) ChunkCount() int {
	return len(g.chunks)
}

// Neighbors6 returns the six face neighbours in Offsets6 order.
func (g *Grid[T]) Neighbors6(x, y, z int) [6]T {
	var out [6]T
	for i, off := range Offsets6 {
		out[i] = g.Get(x+off.X, y+off.Y, z+off.Z)
	}
	return out
}

// ForEachCell visits every cell of one materialized chunk, x fastest, then y,
// then z. It reports false when the chunk does not exist or fn stopped early.
func (g *Grid[T]) ForEachCell(cx, cy, cz int, fn func(x, y, z int, v T) bool) bool {
	ch := g.chunk(PackKey(cx, cy, cz))
	if ch == nil {
		return false
	}
	return ch.ForEach(fn)
}

// Clear drops every chunk.
func (g *Grid[T]) Clear() {
	for i := range g.chunks {
		g.chunks[i] = nil
	}
	g.chunks = g.chunks[:0]
	g.index = make(map[ChunkKey]int)
	g.version++
}

// CopyFrom makes g an exact copy of src, reusing g's chunk buffers where both
// grids hold the same chunk.
func (g *Grid[T]) CopyFrom(src *Grid[T]) {
	reuse := make(map[ChunkKey]*Chunk[T], len(g.chunks))
	for _, ch := range g.chunks {
		reuse[ch.Coord.Key()] = ch
	}
	g.chunks = g.chunks[:0]
	g.index = make(map[ChunkKey]int, len(src.chunks))
	for _, ch := range src.chunks {
		key := ch.Coord.Key()
		dst, ok := reuse[key]
		if ok {
			dst.cells = ch.cells
		} else {
			dst = ch.clone()
		}
		g.index[key] = len(g.chunks)
		g.chunks = append(g.chunks, dst)
	}
	g.version++
}
