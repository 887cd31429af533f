package engine

import (
	"fmt"

	"voxelsim/internal/grid"
	"voxelsim/internal/terrain"
)

// ChunkStore persists density chunks keyed by grid.ChunkKey.
type ChunkStore interface {
	Save(key uint64, cells []float32) error
	Delete(key uint64) error
	ForEach(fn func(key uint64, cells []float32) bool) error
}

func (w *World) markDirty(cc grid.ChunkCoord) {
	if w.dirty == nil {
		w.dirty = make(map[grid.ChunkKey]struct{})
	}
	w.dirty[cc.Key()] = struct{}{}
}

func (w *World) markAllDirty() {
	for _, cc := range w.density.ActiveChunks() {
		w.markDirty(cc)
	}
}

// Save writes every density chunk changed since the previous Save or Restore
// and deletes chunks that were pruned. It returns the number of records written.
func (w *World) Save(store ChunkStore) (int, error) {
	written := 0
	for key := range w.dirty {
		cc := key.Unpack()
		ch := w.density.Chunk(cc.X, cc.Y, cc.Z)
		var err error
		if ch == nil {
			err = store.Delete(uint64(key))
		} else {
			err = store.Save(uint64(key), ch.Cells())
		}
		if err != nil {
			return written, fmt.Errorf("save chunk %v: %w", cc, err)
		}
		delete(w.dirty, key)
		written++
	}
	if written > 0 {
		w.logger.Printf("saved %d chunks", written)
	}
	return written, nil
}

// Restore loads every stored chunk into the density field. Solid cells are
// painted with stone since materials are not persisted.
func (w *World) Restore(store ChunkStore) (int, error) {
	loaded := 0
	var loadErr error
	err := store.ForEach(func(key uint64, cells []float32) bool {
		cc := grid.ChunkKey(key).Unpack()
		if !w.density.LoadChunk(cc, cells) {
			loadErr = fmt.Errorf("restore chunk %v: got %d cells want %d", cc, len(cells), grid.ChunkVolume)
			return false
		}
		w.density.ForEachCell(cc.X, cc.Y, cc.Z, func(x, y, z int, v float32) bool {
			if v >= w.cfg.Structure.DensityThreshold {
				w.essence.Set(x, y, z, terrain.Stone)
			}
			return true
		})
		loaded++
		return true
	})
	if err == nil {
		err = loadErr
	}
	if err != nil {
		return loaded, err
	}
	clear(w.dirty)
	w.chunks.Store(int64(w.density.ChunkCount()))
	w.logger.Printf("restored %d chunks", loaded)
	return loaded, nil
}
