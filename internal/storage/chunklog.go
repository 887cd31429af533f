// Package storage persists density chunks in an append-only log file.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	opDelete byte = 0
	opSet    byte = 1

	// op, key, payload size
	headerSize = 1 + 8 + 4
)

type recordMeta struct {
	offset int64
	size   uint32
}

// ChunkLog stores one float32 slice per packed chunk key. Every Save or Delete
// appends a record; the latest record for a key wins when the file is reopened.
type ChunkLog struct {
	file    *os.File
	mu      sync.RWMutex
	records map[uint64]recordMeta
}

// Open opens or creates the log at path and indexes its records.
func Open(path string) (*ChunkLog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create chunk log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chunk log: %w", err)
	}
	l := &ChunkLog{
		file:    f,
		records: make(map[uint64]recordMeta),
	}
	if err := l.loadIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *ChunkLog) loadIndex() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind chunk log: %w", err)
	}

	header := make([]byte, headerSize)
	var offset int64
	for {
		if _, err := io.ReadFull(l.file, header); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				return fmt.Errorf("truncated chunk header: %w", err)
			}
			return fmt.Errorf("read chunk header: %w", err)
		}
		op := header[0]
		key := binary.LittleEndian.Uint64(header[1:9])
		size := binary.LittleEndian.Uint32(header[9:13])
		recordOffset := offset
		offset += headerSize + int64(size)

		if _, err := l.file.Seek(int64(size), io.SeekCurrent); err != nil {
			return fmt.Errorf("seek past payload: %w", err)
		}
		if op == opSet {
			l.records[key] = recordMeta{offset: recordOffset, size: size}
		} else {
			delete(l.records, key)
		}
	}
	return nil
}

// Len is the number of live keys.
func (l *ChunkLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *ChunkLog) Load(key uint64) ([]float32, bool, error) {
	l.mu.RLock()
	meta, ok := l.records[key]
	l.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	payload := make([]byte, meta.size)
	if _, err := l.file.ReadAt(payload, meta.offset+headerSize); err != nil {
		return nil, false, fmt.Errorf("read payload: %w", err)
	}
	var cells []float32
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&cells); err != nil {
		return nil, false, fmt.Errorf("decode chunk %#x: %w", key, err)
	}
	return cells, true, nil
}

func (l *ChunkLog) Save(key uint64, cells []float32) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(cells); err != nil {
		return fmt.Errorf("encode chunk %#x: %w", key, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offset, err := l.append(opSet, key, payload.Bytes())
	if err != nil {
		return err
	}
	l.records[key] = recordMeta{offset: offset, size: uint32(payload.Len())}
	return nil
}

func (l *ChunkLog) Delete(key uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[key]; !ok {
		return nil
	}
	if _, err := l.append(opDelete, key, nil); err != nil {
		return err
	}
	delete(l.records, key)
	return nil
}

// append writes one record at the end of the file. The caller holds mu.
func (l *ChunkLog) append(op byte, key uint64, payload []byte) (int64, error) {
	header := make([]byte, headerSize)
	header[0] = op
	binary.LittleEndian.PutUint64(header[1:9], key)
	binary.LittleEndian.PutUint32(header[9:13], uint32(len(payload)))

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek chunk log end: %w", err)
	}
	if _, err := l.file.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := l.file.Write(payload); err != nil {
			return 0, fmt.Errorf("write payload: %w", err)
		}
	}
	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync chunk log: %w", err)
	}
	return offset, nil
}

// ForEach visits live keys in ascending order. It stops at the first record
// that cannot be read or decoded and returns that error.
func (l *ChunkLog) ForEach(fn func(key uint64, cells []float32) bool) error {
	l.mu.RLock()
	keys := make([]uint64, 0, len(l.records))
	for key := range l.records {
		keys = append(keys, key)
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		cells, ok, err := l.Load(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(key, cells) {
			break
		}
	}
	return nil
}

func (l *ChunkLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
