// internal/flash/file.go
package flash

import (
	"bytes"
	"fmt"
	"os"
)

// FileMedia keeps the NOR array in an image file, one byte per cell.
type FileMedia struct {
	f    *os.File
	size uint32
}

// OpenFileMedia opens or creates an image of exactly size bytes.
// A new image is filled with initial.
func OpenFileMedia(path string, size uint32, initial byte) (*FileMedia, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	switch {
	case st.Size() == 0:
		if err := format(f, size, initial); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("file media: format %s: %w", path, err)
		}
	case st.Size() != int64(size):
		_ = f.Close()
		return nil, fmt.Errorf("file media: %s is %d bytes, want %d", path, st.Size(), size)
	}

	return &FileMedia{f: f, size: size}, nil
}

func format(f *os.File, size uint32, initial byte) error {
	if initial == 0 {
		return f.Truncate(int64(size))
	}

	chunk := bytes.Repeat([]byte{initial}, 64<<10)
	for off := uint32(0); off < size; {
		n := min(uint32(len(chunk)), size-off)
		if _, err := f.WriteAt(chunk[:n], int64(off)); err != nil {
			return err
		}
		off += n
	}
	return f.Sync()
}

func (m *FileMedia) ReadAt(p []byte, off int64) (int, error) {
	return m.f.ReadAt(p, off)
}

func (m *FileMedia) EraseSector(addr, size uint32) error {
	if err := m.bounds(addr, size); err != nil {
		return err
	}
	_, err := m.f.WriteAt(bytes.Repeat([]byte{ErasedByte}, int(size)), int64(addr))
	return err
}

func (m *FileMedia) ProgramPage(addr uint32, data []byte) error {
	if err := m.bounds(addr, uint32(len(data))); err != nil {
		return err
	}

	cur := make([]byte, len(data))
	if _, err := m.f.ReadAt(cur, int64(addr)); err != nil {
		return err
	}
	program(cur, data)

	_, err := m.f.WriteAt(cur, int64(addr))
	return err
}

func (m *FileMedia) Sync() error { return m.f.Sync() }

func (m *FileMedia) Close() error { return m.f.Close() }

func (m *FileMedia) bounds(addr, size uint32) error {
	if uint64(addr)+uint64(size) > uint64(m.size) {
		return fmt.Errorf("file media: 0x%08X+%d beyond %d bytes", addr, size, m.size)
	}
	return nil
}
