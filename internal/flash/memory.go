// internal/flash/memory.go
package flash

import (
	"fmt"
	"io"
)

// MemoryMedia is a RAM-backed NOR array.
type MemoryMedia struct {
	cells []byte
}

// NewMemoryMedia returns size bytes of media, every cell set to initial.
func NewMemoryMedia(size uint32, initial byte) *MemoryMedia {
	m := &MemoryMedia{cells: make([]byte, size)}
	fill(m.cells, initial)
	return m
}

func (m *MemoryMedia) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.cells)) {
		return 0, io.EOF
	}
	n := copy(p, m.cells[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryMedia) EraseSector(addr, size uint32) error {
	if err := m.bounds(addr, size); err != nil {
		return err
	}
	fill(m.cells[addr:addr+size], ErasedByte)
	return nil
}

func (m *MemoryMedia) ProgramPage(addr uint32, data []byte) error {
	if err := m.bounds(addr, uint32(len(data))); err != nil {
		return err
	}
	program(m.cells[addr:], data)
	return nil
}

func (m *MemoryMedia) Close() error { return nil }

func (m *MemoryMedia) bounds(addr, size uint32) error {
	if uint64(addr)+uint64(size) > uint64(len(m.cells)) {
		return fmt.Errorf("memory media: 0x%08X+%d beyond %d bytes", addr, size, len(m.cells))
	}
	return nil
}
