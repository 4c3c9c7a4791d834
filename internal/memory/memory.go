package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Interface reads and writes raw target memory.
//
// Implementations must return exactly length bytes on success. A short read
// is an error.
type Interface interface {
	ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error)
	WriteMemory(ctx context.Context, addr uint64, data []byte) error
}

// UnmappedError is returned by Image when an access touches an address that
// no region covers.
type UnmappedError struct {
	Address uint64
	Length  int
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("unmapped memory access at 0x%08x (%d bytes)", e.Address, e.Length)
}

type region struct {
	start uint64
	data  []byte
}

func (r *region) end() uint64 {
	return r.start + uint64(len(r.data))
}

// Image is a sparse target memory made of non-overlapping regions.
// An access must fall entirely inside one region.
type Image struct {
	mu      sync.Mutex
	regions []*region
}

// NewImage returns an empty image.
func NewImage() *Image {
	return &Image{}
}

// Map adds a region at start backed by a copy of data. Overlapping an
// existing region is an error.
func (m *Image) Map(start uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &region{start: start, data: append([]byte(nil), data...)}
	for _, existing := range m.regions {
		if r.start < existing.end() && existing.start < r.end() {
			return fmt.Errorf("region 0x%08x-0x%08x overlaps 0x%08x-0x%08x",
				r.start, r.end(), existing.start, existing.end())
		}
	}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].start < m.regions[j].start })
	return nil
}

// MapZero adds a zero-filled region of size bytes.
func (m *Image) MapZero(start uint64, size int) error {
	return m.Map(start, make([]byte, size))
}

func (m *Image) find(addr uint64, length int) (*region, error) {
	for _, r := range m.regions {
		if addr >= r.start && addr+uint64(length) <= r.end() {
			return r, nil
		}
	}
	return nil, &UnmappedError{Address: addr, Length: length}
}

// ReadMemory implements Interface.
func (m *Image) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("negative read length %d", length)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.find(addr, length)
	if err != nil {
		return nil, err
	}
	off := addr - r.start
	out := make([]byte, length)
	copy(out, r.data[off:off+uint64(length)])
	return out, nil
}

// WriteMemory implements Interface.
func (m *Image) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.find(addr, len(data))
	if err != nil {
		return err
	}
	copy(r.data[addr-r.start:], data)
	return nil
}
