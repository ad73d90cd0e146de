// internal/flash/badger.go
package flash

import (
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
)

// BadgerMedia stores the NOR array one sector per key.
// Sectors never written read back as the initial byte.
type BadgerMedia struct {
	db         *badger.DB
	size       uint32
	sectorSize uint32
	initial    byte
}

// BadgerOptions configures OpenBadgerMedia.
type BadgerOptions struct {
	Path       string
	InMemory   bool
	Size       uint32
	SectorSize uint32
	Initial    byte
}

func OpenBadgerMedia(o BadgerOptions) (*BadgerMedia, error) {
	if o.SectorSize == 0 || o.Size%o.SectorSize != 0 {
		return nil, fmt.Errorf("badger media: size %d not a multiple of sector size %d", o.Size, o.SectorSize)
	}

	opts := badger.DefaultOptions(o.Path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerMedia{
		db:         db,
		size:       o.Size,
		sectorSize: o.SectorSize,
		initial:    o.Initial,
	}, nil
}

func sectorKey(base uint32) []byte {
	return []byte(fmt.Sprintf("nv/sector/%08x", base))
}

// loadSector returns a private copy of the sector at base.
func (m *BadgerMedia) loadSector(txn *badger.Txn, base uint32) ([]byte, error) {
	item, err := txn.Get(sectorKey(base))
	if errors.Is(err, badger.ErrKeyNotFound) {
		s := make([]byte, m.sectorSize)
		fill(s, m.initial)
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	s, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	if uint32(len(s)) != m.sectorSize {
		return nil, fmt.Errorf("badger media: sector 0x%08X holds %d bytes, want %d", base, len(s), m.sectorSize)
	}
	return s, nil
}

func (m *BadgerMedia) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(m.size) {
		return 0, io.EOF
	}

	want := len(p)
	if rem := int64(m.size) - off; int64(want) > rem {
		want = int(rem)
	}

	n := 0
	err := m.db.View(func(txn *badger.Txn) error {
		for n < want {
			addr := uint32(off) + uint32(n)
			base := addr - addr%m.sectorSize

			s, err := m.loadSector(txn, base)
			if err != nil {
				return err
			}
			n += copy(p[n:want], s[addr-base:])
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *BadgerMedia) EraseSector(addr, size uint32) error {
	if addr%m.sectorSize != 0 || size != m.sectorSize || addr >= m.size {
		return fmt.Errorf("badger media: erase 0x%08X+%d is not one sector", addr, size)
	}

	erasedSector := make([]byte, m.sectorSize)
	fill(erasedSector, ErasedByte)

	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sectorKey(addr), erasedSector)
	})
}

func (m *BadgerMedia) ProgramPage(addr uint32, data []byte) error {
	base := addr - addr%m.sectorSize
	if uint64(addr)+uint64(len(data)) > uint64(base)+uint64(m.sectorSize) || base >= m.size {
		return fmt.Errorf("badger media: page 0x%08X+%d crosses a sector", addr, len(data))
	}

	return m.db.Update(func(txn *badger.Txn) error {
		s, err := m.loadSector(txn, base)
		if err != nil {
			return err
		}
		program(s[addr-base:], data)
		return txn.Set(sectorKey(base), s)
	})
}

func (m *BadgerMedia) Close() error { return m.db.Close() }
