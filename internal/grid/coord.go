package grid

import "fmt"

const (
	// ChunkSize is the edge length of a chunk in cells.
	ChunkSize   = 32
	ChunkShift  = 5
	ChunkMask   = ChunkSize - 1
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize

	keyAxisBits = 21
	keyAxisMask = 1<<keyAxisBits - 1
)

// Coord describes a cell position in world space.
type Coord struct {
	X int
	Y int
	Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

func (c Coord) Add(o Coord) Coord {
	return Coord{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// ChunkCoord identifies a chunk in chunk space.
type ChunkCoord struct {
	X int
	Y int
	Z int
}

// Origin returns the world position of the chunk's (0,0,0) cell.
func (c ChunkCoord) Origin() Coord {
	return Coord{X: c.X << ChunkShift, Y: c.Y << ChunkShift, Z: c.Z << ChunkShift}
}

func (c ChunkCoord) Key() ChunkKey {
	return PackKey(c.X, c.Y, c.Z)
}

// Bounds is an axis-aligned box with inclusive min/max corners in world space.
type Bounds struct {
	Min Coord
	Max Coord
}

func (b Bounds) Contains(c Coord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X &&
		c.Y >= b.Min.Y && c.Y <= b.Max.Y &&
		c.Z >= b.Min.Z && c.Z <= b.Max.Z
}

// Empty reports whether any axis has max < min.
func (b Bounds) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// Volume returns the number of cells inside the box.
func (b Bounds) Volume() int {
	if b.Empty() {
		return 0
	}
	return (b.Max.X - b.Min.X + 1) * (b.Max.Y - b.Min.Y + 1) * (b.Max.Z - b.Min.Z + 1)
}

// ChunkKey is a packed chunk coordinate: x in the top 22 bits, then 21 bits of
// y and 21 bits of z, both two's complement.
type ChunkKey uint64

// PackKey packs a chunk coordinate into a ChunkKey.
func PackKey(cx, cy, cz int) ChunkKey {
	return ChunkKey(uint64(int64(cx))<<(2*keyAxisBits) |
		(uint64(int64(cy))&keyAxisMask)<<keyAxisBits |
		uint64(int64(cz))&keyAxisMask)
}

// Unpack recovers the chunk coordinate, sign-extending the y and z fields.
func (k ChunkKey) Unpack() ChunkCoord {
	const shift = 64 - keyAxisBits
	v := int64(k)
	return ChunkCoord{
		X: int(v >> (2 * keyAxisBits)),
		Y: int((v >> keyAxisBits) << shift >> shift),
		Z: int(v << shift >> shift),
	}
}

// ChunkOf splits a world position into its chunk and local coordinates.
// Arithmetic shift floors negative positions (x=-1 lands in chunk -1, local 31).
func ChunkOf(x, y, z int) (ChunkCoord, int, int, int) {
	return ChunkCoord{X: x >> ChunkShift, Y: y >> ChunkShift, Z: z >> ChunkShift},
		x & ChunkMask, y & ChunkMask, z & ChunkMask
}

// CellKey packs a world position into one integer for visited sets. Each axis
// keeps 21 bits, so positions must stay within ±2^20 cells.
func CellKey(x, y, z int) uint64 {
	return (uint64(int64(x))&keyAxisMask)<<(2*keyAxisBits) |
		(uint64(int64(y))&keyAxisMask)<<keyAxisBits |
		uint64(int64(z))&keyAxisMask
}

// Cell positions CellKey can pack without aliasing.
const (
	MinCell = -1 << (keyAxisBits - 1)
	MaxCell = 1<<(keyAxisBits-1) - 1
)

// Addressable reports whether a position and all of its face neighbours have
// distinct cell keys.
func Addressable(x, y, z int) bool {
	return inCellRange(x) && inCellRange(y) && inCellRange(z)
}

func inCellRange(v int) bool {
	return v > MinCell && v < MaxCell
}

// UnpackCellKey is the inverse of CellKey.
func UnpackCellKey(k uint64) Coord {
	const shift = 64 - keyAxisBits
	v := int64(k)
	return Coord{
		X: int((v >> (2 * keyAxisBits)) << shift >> shift),
		Y: int((v >> keyAxisBits) << shift >> shift),
		Z: int(v << shift >> shift),
	}
}

// Offsets6 lists face neighbours in the fixed order +x,-x,+y,-y,+z,-z.
var Offsets6 = [6]Coord{
	{X: 1},
	{X: -1},
	{Y: 1},
	{Y: -1},
	{Z: 1},
	{Z: -1},
}

// Lateral lists the four horizontal neighbours.
var Lateral = [4]Coord{
	{X: 1},
	{X: -1},
	{Z: 1},
	{Z: -1},
}
