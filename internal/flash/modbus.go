// internal/flash/modbus.go
package flash

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

// Protocol limits per request (Modbus application protocol v1.1b3).
const (
	maxReadRegisters  = 125
	maxWriteRegisters = 123
)

// registerClient is the subset of modbus.Client the device uses.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// ModbusDevice keeps the flash window in holding registers of a remote
// controller, two bytes per register, big-endian, starting at a base register.
// It serializes requests; one connection, one outstanding request.
type ModbusDevice struct {
	mu      sync.Mutex
	client  registerClient
	closer  io.Closer
	geo     Geometry
	baseReg uint16
}

// ModbusOptions is minimal transport config.
type ModbusOptions struct {
	Mode         string // tcp | rtu
	Address      string
	UnitID       uint8
	BaseRegister uint16
	Timeout      time.Duration

	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	Size        uint32
	Granularity uint32
}

// DialModbus connects to the register bank.
func DialModbus(o ModbusOptions) (*ModbusDevice, error) {
	if o.Address == "" {
		return nil, errors.New("flash modbus: address required")
	}

	switch o.Mode {
	case "", "tcp":
		h := modbus.NewTCPClientHandler(o.Address)
		h.Timeout = o.Timeout
		h.SlaveId = o.UnitID
		if err := h.Connect(); err != nil {
			return nil, err
		}
		return newModbusDevice(modbus.NewClient(h), h, o)

	case "rtu":
		h := modbus.NewRTUClientHandler(o.Address)
		h.BaudRate = o.BaudRate
		h.DataBits = o.DataBits
		h.Parity = o.Parity
		h.StopBits = o.StopBits
		h.Timeout = o.Timeout
		h.SlaveId = o.UnitID
		if err := h.Connect(); err != nil {
			return nil, err
		}
		return newModbusDevice(modbus.NewClient(h), h, o)

	default:
		return nil, fmt.Errorf("flash modbus: unsupported mode %q", o.Mode)
	}
}

func newModbusDevice(client registerClient, closer io.Closer, o ModbusOptions) (*ModbusDevice, error) {
	gran := o.Granularity
	if gran == 0 {
		gran = 2
	}
	if gran%2 != 0 || o.Size == 0 || o.Size%2 != 0 {
		return nil, fmt.Errorf("flash modbus: size %d and granularity %d must be even", o.Size, gran)
	}
	if uint32(o.BaseRegister)+o.Size/2 > 1<<16 {
		return nil, fmt.Errorf("flash modbus: %d registers from %d exceed the register space", o.Size/2, o.BaseRegister)
	}

	return &ModbusDevice{
		client: client,
		closer: closer,
		geo: Geometry{
			Size:        o.Size,
			SectorSize:  o.Size,
			PageSize:    maxWriteRegisters * 2,
			Granularity: gran,
		},
		baseReg: o.BaseRegister,
	}, nil
}

func (d *ModbusDevice) Geometry() Geometry { return d.geo }

func (d *ModbusDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *ModbusDevice) Read(addr uint32, n int) ([]byte, error) {
	if err := d.geo.Check("modbus read", addr, n); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]byte, 0, n)
	reg := d.register(addr)
	left := n / 2

	for left > 0 {
		qty := min(left, maxReadRegisters)

		p, err := d.client.ReadHoldingRegisters(reg, uint16(qty))
		if err != nil {
			return nil, fault.Transfer("modbus read", fmt.Errorf("reg=%d qty=%d: %w", reg, qty, err))
		}
		if len(p) != qty*2 {
			return nil, fault.Transfer("modbus read", fmt.Errorf("reg=%d qty=%d: got %d bytes", reg, qty, len(p)))
		}

		out = append(out, p...)
		reg += uint16(qty)
		left -= qty
	}
	return out, nil
}

func (d *ModbusDevice) Write(addr uint32, data []byte) error {
	if err := d.geo.Check("modbus write", addr, len(data)); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	reg := d.register(addr)
	for off := 0; off < len(data); {
		qty := min((len(data)-off)/2, maxWriteRegisters)

		if _, err := d.client.WriteMultipleRegisters(reg, uint16(qty), data[off:off+qty*2]); err != nil {
			return fault.Transfer("modbus write", fmt.Errorf("reg=%d qty=%d: %w", reg, qty, err))
		}

		reg += uint16(qty)
		off += qty * 2
	}
	return nil
}

func (d *ModbusDevice) register(addr uint32) uint16 {
	return d.baseReg + uint16(addr/2)
}
