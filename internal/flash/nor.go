// internal/flash/nor.go
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

// Media is the raw NOR array behind a Flash.
// ProgramPage can only clear bits; EraseSector sets a sector back to ErasedByte.
type Media interface {
	io.ReaderAt
	EraseSector(addr, size uint32) error
	ProgramPage(addr uint32, data []byte) error
	Close() error
}

// syncer is implemented by media that buffer writes (image files).
type syncer interface {
	Sync() error
}

// Flash emulates a serial NOR part on top of a Media.
// Write follows the W25Qxx driver: read each touched sector, merge, erase,
// re-program page by page.
type Flash struct {
	media Media
	geo   Geometry
	log   logrus.FieldLogger
}

// NewFlash wraps media with NOR write semantics.
func NewFlash(media Media, geo Geometry, log logrus.FieldLogger) (*Flash, error) {
	if media == nil {
		return nil, errors.New("flash: media required")
	}
	if err := geo.validateNOR(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flash{media: media, geo: geo, log: log}, nil
}

func (f *Flash) Geometry() Geometry { return f.geo }

func (f *Flash) Close() error { return f.media.Close() }

func (f *Flash) Read(addr uint32, n int) ([]byte, error) {
	if err := f.geo.Check("flash read", addr, n); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	got, err := f.media.ReadAt(buf, int64(addr))
	if got != n {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fault.Transfer("flash read", fmt.Errorf("addr=0x%08X got %d of %d bytes: %w", addr, got, n, err))
	}
	return buf, nil
}

func (f *Flash) Write(addr uint32, data []byte) error {
	if err := f.geo.Check("flash write", addr, len(data)); err != nil {
		return err
	}

	ss := f.geo.SectorSize
	end := addr + uint32(len(data))
	sector := make([]byte, ss)

	for base := addr - addr%ss; base < end; base += ss {
		if got, err := f.media.ReadAt(sector, int64(base)); got != int(ss) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fault.Transfer("flash write", fmt.Errorf("read sector 0x%08X: %w", base, err))
		}

		lo := max(addr, base)
		hi := min(end, base+ss)
		window := data[lo-addr : hi-addr]

		if bytes.Equal(sector[lo-base:hi-base], window) {
			continue
		}
		copy(sector[lo-base:hi-base], window)

		if err := f.media.EraseSector(base, ss); err != nil {
			return fault.Transfer("flash write", fmt.Errorf("erase sector 0x%08X: %w", base, err))
		}

		for off := uint32(0); off < ss; off += f.geo.PageSize {
			page := sector[off : off+f.geo.PageSize]
			if erased(page) {
				continue
			}
			if err := f.media.ProgramPage(base+off, page); err != nil {
				return fault.Transfer("flash write", fmt.Errorf("program page 0x%08X: %w", base+off, err))
			}
		}

		f.log.WithFields(logrus.Fields{
			"sector": fmt.Sprintf("0x%08X", base),
			"bytes":  hi - lo,
		}).Debug("flash: sector rewritten")
	}

	if s, ok := f.media.(syncer); ok {
		if err := s.Sync(); err != nil {
			return fault.Transfer("flash write", fmt.Errorf("sync: %w", err))
		}
	}
	return nil
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != ErasedByte {
			return false
		}
	}
	return true
}

// program clears bits of dst according to src (NOR page program).
func program(dst, src []byte) {
	for i := range src {
		dst[i] &= src[i]
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
