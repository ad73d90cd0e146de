// internal/flash/device.go
package flash

import (
	"fmt"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

// ErasedByte is the content of an erased NOR cell.
const ErasedByte byte = 0xFF

// Device is the byte-addressable storage the parameter store sits on.
// Calls block until the transfer is complete; a completed Write is
// observed by every later Read of the same window.
type Device interface {
	Read(addr uint32, n int) ([]byte, error)
	Write(addr uint32, data []byte) error
	Geometry() Geometry
	Close() error
}

// Geometry describes the addressable window of a device.
type Geometry struct {
	Size        uint32 // bytes
	SectorSize  uint32 // erase unit
	PageSize    uint32 // program unit
	Granularity uint32 // native transfer width; address and length must be multiples
}

// RangeError reports a transfer outside the device window.
type RangeError struct {
	Addr uint32
	Len  int
	Size uint32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("flash: window addr=0x%08X len=%d outside device of %d bytes", e.Addr, e.Len, e.Size)
}

// AlignmentError reports a transfer that does not match the native width.
type AlignmentError struct {
	Addr        uint32
	Len         int
	Granularity uint32
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("flash: window addr=0x%08X len=%d not aligned to %d bytes", e.Addr, e.Len, e.Granularity)
}

// Check validates one transfer window. Failures are transfer faults and
// are returned before the media is touched.
func (g Geometry) Check(op string, addr uint32, n int) error {
	if n <= 0 || uint64(addr)+uint64(n) > uint64(g.Size) {
		return fault.Transfer(op, &RangeError{Addr: addr, Len: n, Size: g.Size})
	}
	if g.Granularity > 1 && (addr%g.Granularity != 0 || uint32(n)%g.Granularity != 0) {
		return fault.Transfer(op, &AlignmentError{Addr: addr, Len: n, Granularity: g.Granularity})
	}
	return nil
}

func (g Geometry) validateNOR() error {
	if g.Size == 0 || g.SectorSize == 0 || g.PageSize == 0 {
		return fmt.Errorf("flash: geometry size=%d sector=%d page=%d must be non-zero", g.Size, g.SectorSize, g.PageSize)
	}
	if g.Size%g.SectorSize != 0 || g.SectorSize%g.PageSize != 0 {
		return fmt.Errorf("flash: geometry size=%d sector=%d page=%d not nested", g.Size, g.SectorSize, g.PageSize)
	}
	return nil
}
